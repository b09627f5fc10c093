package discord

import (
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/crosstalk/internal/a2a"
	"github.com/nextlevelbuilder/crosstalk/internal/channels"
	"github.com/nextlevelbuilder/crosstalk/internal/config"
)

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name   string
		member *discordgo.Member
		user   *discordgo.User
		want   string
	}{
		{"nick wins", &discordgo.Member{Nick: "Sol"}, &discordgo.User{GlobalName: "Solus", Username: "solus_bot"}, "Sol"},
		{"global name", &discordgo.Member{}, &discordgo.User{GlobalName: "Solus", Username: "solus_bot"}, "Solus"},
		{"username", nil, &discordgo.User{Username: "solus_bot"}, "solus_bot"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := displayName(tt.member, tt.user); got != tt.want {
				t.Errorf("displayName = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToIncoming(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m := &discordgo.Message{
		ID:        "m2",
		ChannelID: "c1",
		Content:   "Solus, you're up",
		Timestamp: ts,
		Author:    &discordgo.User{ID: "200", Username: "kelly_bot", GlobalName: "Kelly", Bot: true},
		Attachments: []*discordgo.MessageAttachment{
			{URL: "https://cdn.example/notes.txt"},
		},
		ReferencedMessage: &discordgo.Message{
			ID:     "m1",
			Author: &discordgo.User{ID: "100", Username: "solus_bot", Bot: true},
		},
	}

	in := toIncoming(m, "daily-standup", nil)
	if in.PlatformMessageID != "m2" || in.ChatID != "c1" || in.ChatName != "daily-standup" {
		t.Errorf("ids = %+v", in)
	}
	if in.SenderID != "200|kelly_bot" || in.SenderName != "Kelly" || !in.IsBot {
		t.Errorf("sender = %q %q %v", in.SenderID, in.SenderName, in.IsBot)
	}
	if in.Text != "Solus, you're up\n[attachment: https://cdn.example/notes.txt]" {
		t.Errorf("text = %q", in.Text)
	}
	if !in.SentAt.Equal(ts) {
		t.Errorf("SentAt = %v", in.SentAt)
	}
	if in.ReplyToAuthorID != "100" || in.ReplyToAuthorName != "solus_bot" || !in.ReplyToIsBot {
		t.Errorf("reply = %q %q %v", in.ReplyToAuthorID, in.ReplyToAuthorName, in.ReplyToIsBot)
	}
}

func TestToIncoming_NoReference(t *testing.T) {
	in := toIncoming(&discordgo.Message{ID: "m1", ChannelID: "c1", Content: "hi", Author: &discordgo.User{ID: "5", Username: "ana"}}, "", nil)
	if in.ReplyToAuthorID != "" || in.ReplyToAuthorName != "" {
		t.Errorf("unexpected reply fields: %+v", in)
	}
	if in.IsBot {
		t.Error("human marked as bot")
	}
}

func TestToIncoming_Mentions(t *testing.T) {
	dir := channels.NewDirectory(a2a.NewRoster([]config.RosterEntry{{ID: "solus", Name: "Solus"}}))
	dir.Register(Platform, "222", "solus")
	c := &Channel{BaseChannel: channels.NewBaseChannel(Platform, "kelly", nil, nil, dir, nil)}

	m := &discordgo.Message{
		ID:        "m3",
		ChannelID: "c1",
		Content:   "<@222> you're up. cc <@!333>",
		Author:    &discordgo.User{ID: "200", Username: "kelly_bot", Bot: true},
		Mentions: []*discordgo.User{
			{ID: "222", Username: "solus_bot", Bot: true},
			{ID: "333", Username: "ana", GlobalName: "Ana"},
		},
	}
	in := toIncoming(m, "daily-standup", c.mentionName)
	if in.Text != "@Solus you're up. cc @Ana" {
		t.Fatalf("text = %q", in.Text)
	}
	if !a2a.NewAddressMatcher([]string{"solus"}).Addresses(in.Text) {
		t.Error("rewritten mention should address Solus")
	}

	if got := toIncoming(m, "", nil).Text; got != "@solus_bot you're up. cc @Ana" {
		t.Errorf("default naming = %q", got)
	}
}
