// Package slack adapts Slack Socket Mode to the channels.Adapter contract.
// Message and app-mention events become inbound models.Message values;
// reaction_added events are surfaced through channels.ReactionSource so
// emoji replies can resolve pending approvals.
package slack

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/relaygrid/orchestrator/internal/channels"
	"github.com/relaygrid/orchestrator/pkg/models"
)

const maxMessageChars = 40000

type Config struct {
	BotToken string // xoxb- token for API calls
	AppToken string // xapp- token for Socket Mode
}

type Adapter struct {
	cfg       Config
	client    *slack.Client
	socket    *socketmode.Client
	messages  chan *models.Message
	reactions chan channels.Reaction
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu        sync.Mutex
	botUserID string
}

func NewAdapter(cfg Config) *Adapter {
	client := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))
	return &Adapter{
		cfg:       cfg,
		client:    client,
		socket:    socketmode.New(client),
		messages:  make(chan *models.Message, 100),
		reactions: make(chan channels.Reaction, 16),
	}
}

func (a *Adapter) Type() models.ChannelType { return models.ChannelSlack }

func (a *Adapter) Messages() <-chan *models.Message { return a.messages }

func (a *Adapter) Reactions() <-chan channels.Reaction { return a.reactions }

func (a *Adapter) Start(ctx context.Context) error {
	auth, err := a.client.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth: %w", err)
	}
	a.mu.Lock()
	a.botUserID = auth.UserID
	a.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		if err := a.socket.RunContext(runCtx); err != nil && runCtx.Err() == nil {
			slog.Error("slack socket mode stopped", "error", err)
		}
	}()
	go a.drainEvents(runCtx)
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
	close(a.reactions)
	return nil
}

func (a *Adapter) Send(ctx context.Context, msg *models.Message) error {
	for _, chunk := range channels.SplitMessage(msg.Content, maxMessageChars) {
		opts := []slack.MsgOption{slack.MsgOptionText(chunk, false)}
		if msg.ThreadID != "" {
			opts = append(opts, slack.MsgOptionTS(msg.ThreadID))
		}
		if _, _, err := a.client.PostMessageContext(ctx, msg.ChannelID, opts...); err != nil {
			return fmt.Errorf("slack post: %w", err)
		}
	}
	return nil
}

func (a *Adapter) drainEvents(ctx context.Context) {
	defer a.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-a.socket.Events:
			if !ok {
				return
			}
			switch ev.Type {
			case socketmode.EventTypeEventsAPI:
				apiEvent, ok := ev.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				if ev.Request != nil {
					a.socket.Ack(*ev.Request)
				}
				a.handleCallback(ctx, apiEvent)
			case socketmode.EventTypeSlashCommand, socketmode.EventTypeInteractive:
				if ev.Request != nil {
					a.socket.Ack(*ev.Request)
				}
			case socketmode.EventTypeConnectionError:
				slog.Warn("slack connection error", "data", ev.Data)
			}
		}
	}
}

func (a *Adapter) handleCallback(ctx context.Context, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		if ev.BotID != "" || ev.SubType != "" {
			return
		}
		a.deliver(convertMessage(ev.Channel, ev.User, ev.Text, ev.ThreadTimeStamp, ev.TimeStamp))
	case *slackevents.AppMentionEvent:
		a.mu.Lock()
		self := a.botUserID
		a.mu.Unlock()
		if ev.User == self {
			return
		}
		a.deliver(convertMessage(ev.Channel, ev.User, stripMention(ev.Text, self), ev.ThreadTimeStamp, ev.TimeStamp))
	case *slackevents.ReactionAddedEvent:
		a.handleReaction(ctx, ev)
	}
}

func (a *Adapter) deliver(msg *models.Message) {
	select {
	case a.messages <- msg:
	default:
		slog.Warn("slack inbound buffer full, dropping message", "chat", msg.ChannelID)
	}
}

// handleReaction looks up the reacted-to message so the caller can match an
// approval request id embedded in its text.
func (a *Adapter) handleReaction(ctx context.Context, ev *slackevents.ReactionAddedEvent) {
	if ev.Item.Type != "message" || ev.Item.Channel == "" {
		return
	}
	history, err := a.client.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: ev.Item.Channel,
		Latest:    ev.Item.Timestamp,
		Inclusive: true,
		Limit:     1,
	})
	if err != nil || len(history.Messages) == 0 {
		return
	}
	re := channels.Reaction{
		Channel:     models.ChannelSlack,
		ChatID:      ev.Item.Channel,
		MessageText: history.Messages[0].Text,
		Names:       []string{ev.Reaction},
	}
	select {
	case a.reactions <- re:
	default:
	}
}

func convertMessage(channelID, userID, text, threadTS, ts string) *models.Message {
	return &models.Message{
		ID:        ts,
		Channel:   models.ChannelSlack,
		ChannelID: channelID,
		SenderID:  userID,
		ThreadID:  threadTS,
		Direction: models.DirectionInbound,
		Role:      models.RoleUser,
		Content:   text,
		CreatedAt: time.Now().UTC(),
	}
}

func stripMention(text, botUserID string) string {
	if botUserID == "" {
		return text
	}
	return strings.TrimSpace(strings.ReplaceAll(text, "<@"+botUserID+">", ""))
}
