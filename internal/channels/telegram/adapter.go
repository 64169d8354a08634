// Package telegram adapts a go-telegram long-polling bot to the
// channels.Adapter contract.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/relaygrid/orchestrator/internal/channels"
	"github.com/relaygrid/orchestrator/internal/retry"
	"github.com/relaygrid/orchestrator/pkg/models"
)

const maxMessageChars = 4096

type Config struct {
	Token string
}

type Adapter struct {
	bot      *bot.Bot
	messages chan *models.Message
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewAdapter(cfg Config) (*Adapter, error) {
	a := &Adapter{messages: make(chan *models.Message, 100)}
	b, err := bot.New(cfg.Token, bot.WithDefaultHandler(a.onUpdate))
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	a.bot = b
	return a, nil
}

func (a *Adapter) Type() models.ChannelType { return models.ChannelTelegram }

func (a *Adapter) Messages() <-chan *models.Message { return a.messages }

func (a *Adapter) Start(ctx context.Context) error {
	// Validate the token up front so a bad config fails Start instead of
	// silently polling into 401s.
	result := retry.Do(ctx, retry.Config{MaxAttempts: 3, InitialDelay: time.Second}, func() error {
		_, err := a.bot.GetMe(ctx)
		return err
	})
	if result.Err != nil {
		return fmt.Errorf("telegram auth: %w", result.Err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.bot.Start(runCtx)
	}()
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	close(a.messages)
	return nil
}

func (a *Adapter) Send(ctx context.Context, msg *models.Message) error {
	chatID, err := strconv.ParseInt(msg.ChannelID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram chat id %q: %w", msg.ChannelID, err)
	}
	for _, chunk := range channels.SplitMessage(msg.Content, maxMessageChars) {
		params := &bot.SendMessageParams{ChatID: chatID, Text: chunk}
		if msg.ThreadID != "" {
			if threadID, err := strconv.Atoi(msg.ThreadID); err == nil {
				params.MessageThreadID = threadID
			}
		}
		if _, err := a.bot.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	return nil
}

func (a *Adapter) onUpdate(ctx context.Context, b *bot.Bot, update *tgmodels.Update) {
	m := update.Message
	if m == nil || m.From == nil || m.From.IsBot {
		return
	}

	msg := convertMessage(m)
	select {
	case a.messages <- msg:
	default:
		slog.Warn("telegram inbound buffer full, dropping message", "chat", msg.ChannelID)
	}
}

func convertMessage(m *tgmodels.Message) *models.Message {
	msg := &models.Message{
		ID:        strconv.Itoa(m.ID),
		Channel:   models.ChannelTelegram,
		ChannelID: strconv.FormatInt(m.Chat.ID, 10),
		SenderID:  strconv.FormatInt(m.From.ID, 10),
		Direction: models.DirectionInbound,
		Role:      models.RoleUser,
		Content:   m.Text,
		CreatedAt: time.Unix(int64(m.Date), 0).UTC(),
	}
	if m.MessageThreadID != 0 {
		msg.ThreadID = strconv.Itoa(m.MessageThreadID)
	}
	if msg.Content == "" && m.Caption != "" {
		msg.Content = m.Caption
	}
	for _, photo := range m.Photo {
		msg.Attachments = append(msg.Attachments, models.Attachment{
			ID:       photo.FileID,
			Type:     "image",
			Size:     int64(photo.FileSize),
			MimeType: "image/jpeg",
		})
	}
	if doc := m.Document; doc != nil {
		msg.Attachments = append(msg.Attachments, models.Attachment{
			ID:       doc.FileID,
			Type:     "document",
			Filename: doc.FileName,
			MimeType: doc.MimeType,
			Size:     int64(doc.FileSize),
		})
	}
	return msg
}
