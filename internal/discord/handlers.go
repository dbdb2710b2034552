package discord

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/chris/helpem/internal/conversation"
	"github.com/chris/helpem/internal/scheduler"
)

const maxMessageLen = 2000

func (b *Bot) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Ignore own messages
	if m.Author.ID == s.State.User.ID {
		return
	}

	// Only respond to DMs or when mentioned
	isDM := m.GuildID == ""
	isMentioned := false
	for _, u := range m.Mentions {
		if u.ID == s.State.User.ID {
			isMentioned = true
			break
		}
	}
	if !isDM && !isMentioned {
		return
	}

	content := strings.TrimSpace(stripMention(m.Content, s.State.User.ID))
	if content == "" {
		return
	}

	_ = s.ChannelTyping(m.ChannelID)

	for _, chunk := range b.reply(context.Background(), message{
		channelID: m.ChannelID,
		authorID:  m.Author.ID,
		content:   content,
		isDM:      isDM,
	}) {
		if _, err := s.ChannelMessageSend(m.ChannelID, chunk); err != nil {
			b.logger.Warn("sending reply", zap.String("channel", m.ChannelID), zap.Error(err))
		}
	}
}

type message struct {
	channelID string
	authorID  string
	content   string
	isDM      bool
}

// reply runs one message through the owner's session for its channel and
// returns the chunks to send. A DM also records its author as the
// recipient for scheduled messages.
func (b *Bot) reply(ctx context.Context, m message) []string {
	if m.isDM && b.notes != nil {
		if err := b.notes.SetNote(ctx, scheduler.DiscordUserNote, m.authorID); err != nil {
			b.logger.Warn("saving discord user", zap.Error(err))
		}
	}

	k := conversation.Key{UserID: b.ownerID, SessionID: "discord:" + m.channelID}
	r, err := b.conv.Handle(ctx, k, m.content)
	if err != nil {
		b.logger.Warn("handling discord message", zap.String("channel", m.channelID), zap.Error(err))
		return []string{conversation.UserMessage(err)}
	}
	return splitMessage(r.Message, maxMessageLen)
}

func stripMention(s, userID string) string {
	s = strings.ReplaceAll(s, "<@"+userID+">", "")
	s = strings.ReplaceAll(s, "<@!"+userID+">", "")
	return s
}

func splitMessage(s string, maxLen int) []string {
	if len(s) <= maxLen {
		return []string{s}
	}
	var chunks []string
	for len(s) > 0 {
		end := min(maxLen, len(s))
		// Prefer a newline boundary
		if idx := strings.LastIndex(s[:end], "\n"); idx > 0 {
			end = idx + 1
		}
		chunks = append(chunks, s[:end])
		s = s[end:]
	}
	return chunks
}
