package channels

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/relaygrid/orchestrator/pkg/models"
)

type fakeAdapter struct {
	typ       models.ChannelType
	inbound   chan *models.Message
	reactions chan Reaction
	startErr  error
	started   bool
	stopped   bool
	sent      []*models.Message
}

func newFakeAdapter(typ models.ChannelType) *fakeAdapter {
	return &fakeAdapter{
		typ:       typ,
		inbound:   make(chan *models.Message, 4),
		reactions: make(chan Reaction, 4),
	}
}

func (f *fakeAdapter) Type() models.ChannelType { return f.typ }

func (f *fakeAdapter) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakeAdapter) Stop(ctx context.Context) error {
	f.stopped = true
	close(f.inbound)
	close(f.reactions)
	return nil
}

func (f *fakeAdapter) Messages() <-chan *models.Message { return f.inbound }

func (f *fakeAdapter) Reactions() <-chan Reaction { return f.reactions }

func (f *fakeAdapter) Send(ctx context.Context, msg *models.Message) error {
	f.sent = append(f.sent, msg)
	return nil
}

func TestStartAllSkipsFailingAdapter(t *testing.T) {
	reg := NewRegistry()
	good := newFakeAdapter(models.ChannelSlack)
	bad := newFakeAdapter(models.ChannelDiscord)
	bad.startErr = errors.New("no token")
	reg.Register(good)
	reg.Register(bad)

	err := reg.StartAll(context.Background())
	if err == nil {
		t.Fatal("expected joined start error")
	}
	if !good.started {
		t.Fatal("good adapter should have started despite sibling failure")
	}

	if err := reg.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll: %v", err)
	}
	if !good.stopped {
		t.Fatal("started adapter not stopped")
	}
	if bad.stopped {
		t.Fatal("never-started adapter should not be stopped")
	}
}

func TestAggregateMessagesMergesAdapters(t *testing.T) {
	reg := NewRegistry()
	slackA := newFakeAdapter(models.ChannelSlack)
	telegramA := newFakeAdapter(models.ChannelTelegram)
	reg.Register(slackA)
	reg.Register(telegramA)
	if err := reg.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	merged := reg.AggregateMessages(ctx)

	slackA.inbound <- &models.Message{ID: "s1", Channel: models.ChannelSlack}
	telegramA.inbound <- &models.Message{ID: "t1", Channel: models.ChannelTelegram}

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case msg := <-merged:
			seen[msg.ID] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for merged messages")
		}
	}
	if !seen["s1"] || !seen["t1"] {
		t.Fatalf("missing messages: %v", seen)
	}

	// Closing every adapter stream closes the merged stream.
	if err := reg.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll: %v", err)
	}
	select {
	case _, ok := <-merged:
		if ok {
			t.Fatal("expected merged channel to close")
		}
	case <-time.After(time.Second):
		t.Fatal("merged channel did not close")
	}
}

func TestAggregateReactions(t *testing.T) {
	reg := NewRegistry()
	slackA := newFakeAdapter(models.ChannelSlack)
	reg.Register(slackA)
	if err := reg.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	merged := reg.AggregateReactions(ctx)
	slackA.reactions <- Reaction{Channel: models.ChannelSlack, ChatID: "C1", Names: []string{"white_check_mark"}}

	select {
	case re := <-merged:
		if re.ChatID != "C1" || len(re.Names) != 1 {
			t.Fatalf("unexpected reaction: %+v", re)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reaction")
	}
}

func TestGetOutbound(t *testing.T) {
	reg := NewRegistry()
	slackA := newFakeAdapter(models.ChannelSlack)
	reg.Register(slackA)

	if _, ok := reg.GetOutbound(models.ChannelDiscord); ok {
		t.Fatal("unexpected adapter for unregistered platform")
	}
	a, ok := reg.GetOutbound(models.ChannelSlack)
	if !ok {
		t.Fatal("expected slack adapter")
	}
	if err := a.Send(context.Background(), &models.Message{Content: "hi"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(slackA.sent) != 1 {
		t.Fatalf("expected one sent message, got %d", len(slackA.sent))
	}
}
