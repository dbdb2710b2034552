// Package discord lets the owner talk to the assistant over Discord DMs or
// mentions, and delivers scheduled messages by DM.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/chris/helpem/internal/conversation"
)

// Handler is satisfied by *conversation.Manager.
type Handler interface {
	Handle(ctx context.Context, k conversation.Key, text string) (conversation.Reply, error)
}

// NoteSetter is satisfied by *db.DB.
type NoteSetter interface {
	SetNote(ctx context.Context, key, value string) error
}

type Bot struct {
	session *discordgo.Session
	conv    Handler
	notes   NoteSetter
	ownerID string
	logger  *zap.Logger
}

// NewBot connects to Discord. Every message it accepts is handled as the
// owner, in a session per channel.
func NewBot(token string, conv Handler, notes NoteSetter, ownerID string, logger *zap.Logger) (*Bot, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating Discord session: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	bot := &Bot{session: s, conv: conv, notes: notes, ownerID: ownerID, logger: logger}
	s.AddHandler(bot.onMessage)
	s.Identify.Intents = discordgo.IntentsDirectMessages | discordgo.IntentsGuildMessages

	if err := s.Open(); err != nil {
		return nil, fmt.Errorf("opening Discord connection: %w", err)
	}

	logger.Info("discord bot connected", zap.String("user", s.State.User.Username))
	return bot, nil
}

// SendDM delivers content to a user's direct message channel, split to
// Discord's message limit.
func (b *Bot) SendDM(userID, content string) error {
	ch, err := b.session.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("opening DM channel: %w", err)
	}
	for _, chunk := range splitMessage(content, maxMessageLen) {
		if _, err := b.session.ChannelMessageSend(ch.ID, chunk); err != nil {
			return fmt.Errorf("sending DM: %w", err)
		}
	}
	return nil
}

func (b *Bot) Close() {
	if err := b.session.Close(); err != nil {
		b.logger.Warn("closing discord session", zap.Error(err))
	}
}
