package discord

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/crosstalk/internal/channels"
)

// toIncoming maps a Discord message to neutral ingress fields. Native mentions become
// "@name" using mentionName (nil = the user's display name).
func toIncoming(m *discordgo.Message, channelName string, mentionName func(*discordgo.User) string) channels.Incoming {
	if mentionName == nil {
		mentionName = func(u *discordgo.User) string { return displayName(nil, u) }
	}
	in := channels.Incoming{
		PlatformMessageID: m.ID,
		ChatID:            m.ChannelID,
		ChatName:          channelName,
		Text:              messageText(m, mentionName),
		SentAt:            m.Timestamp,
	}
	if m.Author != nil {
		in.SenderID = m.Author.ID + "|" + m.Author.Username
		in.SenderName = displayName(m.Member, m.Author)
		in.IsBot = m.Author.Bot
	}
	if ref := m.ReferencedMessage; ref != nil && ref.Author != nil {
		in.ReplyToAuthorID = ref.Author.ID
		in.ReplyToAuthorName = displayName(ref.Member, ref.Author)
		in.ReplyToIsBot = ref.Author.Bot
	}
	return in
}

// messageText returns the content with mentions named and attachment URLs appended.
func messageText(m *discordgo.Message, mentionName func(*discordgo.User) string) string {
	var b strings.Builder
	b.WriteString(replaceMentions(m.Content, m.Mentions, mentionName))
	for _, att := range m.Attachments {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[attachment: %s]", att.URL)
	}
	return b.String()
}

// replaceMentions rewrites <@id> and <@!id> tokens of the mentioned users to "@name".
func replaceMentions(content string, mentions []*discordgo.User, name func(*discordgo.User) string) string {
	for _, u := range mentions {
		if u == nil || u.ID == "" {
			continue
		}
		at := "@" + name(u)
		content = strings.ReplaceAll(content, "<@"+u.ID+">", at)
		content = strings.ReplaceAll(content, "<@!"+u.ID+">", at)
	}
	return content
}

// displayName returns the best available name for a Discord author.
// Priority: server nickname > global display name > username.
func displayName(member *discordgo.Member, user *discordgo.User) string {
	if member != nil && member.Nick != "" {
		return member.Nick
	}
	if user.GlobalName != "" {
		return user.GlobalName
	}
	return user.Username
}
