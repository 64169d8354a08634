// Package discord adapts a discordgo gateway session to the
// channels.Adapter contract.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/relaygrid/orchestrator/internal/channels"
	"github.com/relaygrid/orchestrator/internal/retry"
	"github.com/relaygrid/orchestrator/pkg/models"
)

const maxMessageChars = 2000

type Config struct {
	Token string
}

type Adapter struct {
	session  *discordgo.Session
	messages chan *models.Message

	mu     sync.Mutex
	closed bool
}

func NewAdapter(cfg Config) (*Adapter, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent
	return &Adapter{
		session:  session,
		messages: make(chan *models.Message, 100),
	}, nil
}

func (a *Adapter) Type() models.ChannelType { return models.ChannelDiscord }

func (a *Adapter) Messages() <-chan *models.Message { return a.messages }

func (a *Adapter) Start(ctx context.Context) error {
	a.session.AddHandler(a.onMessageCreate)

	// The gateway handshake is flaky on cold starts; retry briefly before
	// reporting the adapter down.
	result := retry.Do(ctx, retry.Config{MaxAttempts: 3, InitialDelay: time.Second}, func() error {
		return a.session.Open()
	})
	if result.Err != nil {
		return fmt.Errorf("discord open: %w", result.Err)
	}
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	err := a.session.Close()
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.messages)
	}
	a.mu.Unlock()
	return err
}

func (a *Adapter) Send(ctx context.Context, msg *models.Message) error {
	for _, chunk := range channels.SplitMessage(msg.Content, maxMessageChars) {
		send := &discordgo.MessageSend{Content: chunk}
		if msg.ReplyTo != "" {
			send.Reference = &discordgo.MessageReference{MessageID: msg.ReplyTo, ChannelID: msg.ChannelID}
		}
		if _, err := a.session.ChannelMessageSendComplex(msg.ChannelID, send, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("discord send: %w", err)
		}
	}
	return nil
}

func (a *Adapter) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}

	msg := convertMessage(m)

	// The send stays under the lock so Stop can't close the channel
	// between the closed check and the send; the default arm keeps it
	// non-blocking.
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	select {
	case a.messages <- msg:
	default:
		slog.Warn("discord inbound buffer full, dropping message", "chat", m.ChannelID)
	}
}

func convertMessage(m *discordgo.MessageCreate) *models.Message {
	msg := &models.Message{
		ID:        m.ID,
		Channel:   models.ChannelDiscord,
		ChannelID: m.ChannelID,
		SenderID:  m.Author.ID,
		Direction: models.DirectionInbound,
		Role:      models.RoleUser,
		Content:   m.Content,
		CreatedAt: time.Now().UTC(),
	}
	if ref := m.MessageReference; ref != nil {
		msg.ThreadID = ref.MessageID
	}
	for _, att := range m.Attachments {
		msg.Attachments = append(msg.Attachments, models.Attachment{
			ID:       att.ID,
			Type:     "document",
			URL:      att.URL,
			Filename: att.Filename,
			MimeType: att.ContentType,
			Size:     int64(att.Size),
		})
	}
	return msg
}
