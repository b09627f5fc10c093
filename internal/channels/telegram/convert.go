package telegram

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/crosstalk/internal/channels"
)

// toIncoming maps a Telegram message to neutral ingress fields.
func toIncoming(m *telego.Message) channels.Incoming {
	in := channels.Incoming{
		PlatformMessageID: strconv.Itoa(m.MessageID),
		ChatID:            strconv.FormatInt(m.Chat.ID, 10),
		ChatName:          chatName(&m.Chat),
		Text:              messageText(m),
		SentAt:            time.Unix(m.Date, 0).UTC(),
	}
	if u := m.From; u != nil {
		in.SenderID = senderID(u)
		in.SenderName = displayName(u)
		in.IsBot = u.IsBot
	}
	if r := m.ReplyToMessage; r != nil && r.From != nil {
		in.ReplyToAuthorID = strconv.FormatInt(r.From.ID, 10)
		in.ReplyToAuthorName = displayName(r.From)
		in.ReplyToIsBot = r.From.IsBot
	}
	return in
}

var handleRe = regexp.MustCompile(`@([A-Za-z0-9_]{3,32})\b`)

// rewriteHandles replaces @handles that resolve to a known agent with "@Name", so a
// bot username like @solus_bot reads as @Solus to address detection.
func rewriteHandles(text string, resolve func(handle string) (string, bool)) string {
	if resolve == nil || !strings.Contains(text, "@") {
		return text
	}
	return handleRe.ReplaceAllStringFunc(text, func(tok string) string {
		if name, ok := resolve(tok[1:]); ok {
			return "@" + name
		}
		return tok
	})
}

// senderID returns "id|username" so allowlists may name either.
func senderID(u *telego.User) string {
	id := strconv.FormatInt(u.ID, 10)
	if u.Username != "" {
		return id + "|" + u.Username
	}
	return id
}

// displayName returns "First Last", falling back to the username.
func displayName(u *telego.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	return u.Username
}

// chatName returns the group title, or the peer's name for private chats.
func chatName(chat *telego.Chat) string {
	if chat.Title != "" {
		return chat.Title
	}
	if chat.Username != "" {
		return chat.Username
	}
	return strings.TrimSpace(chat.FirstName + " " + chat.LastName)
}

// messageText joins text and caption and tags media-only messages.
func messageText(m *telego.Message) string {
	var parts []string
	if m.Text != "" {
		parts = append(parts, m.Text)
	}
	if m.Caption != "" {
		parts = append(parts, m.Caption)
	}
	if tag := mediaTag(m); tag != "" {
		parts = append(parts, tag)
	}
	return strings.Join(parts, "\n")
}

func mediaTag(m *telego.Message) string {
	switch {
	case len(m.Photo) > 0:
		return "<media:image>"
	case m.Document != nil:
		return "<media:document>"
	case m.Voice != nil:
		return "<media:voice>"
	case m.Audio != nil:
		return "<media:audio>"
	case m.Video != nil, m.VideoNote != nil, m.Animation != nil:
		return "<media:video>"
	case m.Sticker != nil:
		return "<media:sticker>"
	}
	return ""
}

// isServiceMessage reports messages with no user content (member joins, title changes).
func isServiceMessage(msg *telego.Message) bool {
	if msg.Text != "" || msg.Caption != "" {
		return false
	}
	if msg.Photo != nil || msg.Audio != nil || msg.Video != nil ||
		msg.Document != nil || msg.Voice != nil || msg.VideoNote != nil ||
		msg.Sticker != nil || msg.Animation != nil || msg.Contact != nil ||
		msg.Location != nil || msg.Venue != nil || msg.Poll != nil {
		return false
	}
	return true
}
