package telegram

import (
	"testing"
	"time"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/crosstalk/internal/a2a"
	"github.com/nextlevelbuilder/crosstalk/internal/channels"
	"github.com/nextlevelbuilder/crosstalk/internal/config"
)

func TestToIncoming(t *testing.T) {
	date := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC).Unix()
	m := &telego.Message{
		MessageID: 42,
		Date:      date,
		Chat:      telego.Chat{ID: -1001, Type: "supergroup", Title: "Daily Standup"},
		From:      &telego.User{ID: 7, IsBot: true, FirstName: "Kelly", Username: "kelly_bot"},
		Text:      "over to Solus",
		ReplyToMessage: &telego.Message{
			MessageID: 41,
			From:      &telego.User{ID: 8, IsBot: true, FirstName: "Solus", Username: "solus_bot"},
		},
	}

	in := toIncoming(m)
	if in.PlatformMessageID != "42" || in.ChatID != "-1001" || in.ChatName != "Daily Standup" {
		t.Errorf("ids = %+v", in)
	}
	if in.SenderID != "7|kelly_bot" || in.SenderName != "Kelly" || !in.IsBot {
		t.Errorf("sender = %q %q %v", in.SenderID, in.SenderName, in.IsBot)
	}
	if in.SentAt.Unix() != date {
		t.Errorf("SentAt = %v", in.SentAt)
	}
	if in.ReplyToAuthorID != "8" || in.ReplyToAuthorName != "Solus" || !in.ReplyToIsBot {
		t.Errorf("reply = %q %q %v", in.ReplyToAuthorID, in.ReplyToAuthorName, in.ReplyToIsBot)
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name string
		user telego.User
		want string
	}{
		{"first and last", telego.User{FirstName: "Ana", LastName: "Lima", Username: "ana"}, "Ana Lima"},
		{"first only", telego.User{FirstName: "Ana"}, "Ana"},
		{"username fallback", telego.User{Username: "ana"}, "ana"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := displayName(&tt.user); got != tt.want {
				t.Errorf("displayName = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSenderID(t *testing.T) {
	if got := senderID(&telego.User{ID: 5, Username: "ana"}); got != "5|ana" {
		t.Errorf("senderID = %q", got)
	}
	if got := senderID(&telego.User{ID: 5}); got != "5" {
		t.Errorf("senderID = %q", got)
	}
}

func TestChatName(t *testing.T) {
	tests := []struct {
		name string
		chat telego.Chat
		want string
	}{
		{"group title", telego.Chat{Title: "knowledge-intake", Username: "ki"}, "knowledge-intake"},
		{"public username", telego.Chat{Username: "ana"}, "ana"},
		{"private chat", telego.Chat{FirstName: "Ana", LastName: "Lima"}, "Ana Lima"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := chatName(&tt.chat); got != tt.want {
				t.Errorf("chatName = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMessageText(t *testing.T) {
	tests := []struct {
		name string
		msg  telego.Message
		want string
	}{
		{"text", telego.Message{Text: "hi"}, "hi"},
		{"caption with photo", telego.Message{Caption: "look", Photo: []telego.PhotoSize{{FileID: "p"}}}, "look\n<media:image>"},
		{"voice only", telego.Message{Voice: &telego.Voice{FileID: "v"}}, "<media:voice>"},
		{"document", telego.Message{Document: &telego.Document{FileID: "d"}}, "<media:document>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := messageText(&tt.msg); got != tt.want {
				t.Errorf("messageText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsServiceMessage(t *testing.T) {
	if !isServiceMessage(&telego.Message{NewChatMembers: []telego.User{{ID: 1}}}) {
		t.Error("member join should be a service message")
	}
	if isServiceMessage(&telego.Message{Text: "hello"}) {
		t.Error("text message is not a service message")
	}
	if isServiceMessage(&telego.Message{Sticker: &telego.Sticker{FileID: "s"}}) {
		t.Error("sticker is user content")
	}
}

func TestRewriteHandles(t *testing.T) {
	dir := channels.NewDirectory(a2a.NewRoster([]config.RosterEntry{
		{ID: "solus", Name: "Solus"},
		{ID: "vince", Name: "VINCE", Aliases: config.FlexibleStringSlice{"vince_hl_bot"}},
	}))
	dir.RegisterUsername(Platform, "@Solus_Bot", "solus")
	c := &Channel{BaseChannel: channels.NewBaseChannel(Platform, "kelly", nil, nil, dir, nil)}

	tests := []struct {
		in   string
		want string
	}{
		{"@solus_bot, you're up", "@Solus, you're up"},
		{"thanks @vince_hl_bot. @solus_bot go", "thanks @VINCE. @Solus go"},
		{"ping @ana_lima about it", "ping @ana_lima about it"},
		{"mail ops@example.com", "mail ops@example.com"},
		{"no handles here", "no handles here"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := rewriteHandles(tt.in, c.handleName); got != tt.want {
				t.Errorf("rewriteHandles = %q, want %q", got, tt.want)
			}
		})
	}

	in := toIncoming(&telego.Message{MessageID: 1, Chat: telego.Chat{ID: -1}, Text: "@solus_bot you're up"})
	if !a2a.NewAddressMatcher([]string{"solus"}).Addresses(rewriteHandles(in.Text, c.handleName)) {
		t.Error("bot username should address Solus after rewriting")
	}
}
