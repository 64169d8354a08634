package telegram

import (
	"testing"

	tgmodels "github.com/go-telegram/bot/models"

	"github.com/relaygrid/orchestrator/pkg/models"
)

func TestConvertMessage(t *testing.T) {
	m := &tgmodels.Message{
		ID:   42,
		Date: 1722500000,
		Chat: tgmodels.Chat{ID: 987654321},
		From: &tgmodels.User{ID: 1111},
		Text: "schedule the backup",
	}

	msg := convertMessage(m)
	if msg.Channel != models.ChannelTelegram {
		t.Fatalf("channel = %s", msg.Channel)
	}
	if msg.ID != "42" || msg.ChannelID != "987654321" || msg.SenderID != "1111" {
		t.Fatalf("provenance lost: %+v", msg)
	}
	if msg.CreatedAt.Unix() != 1722500000 {
		t.Fatalf("timestamp = %v", msg.CreatedAt)
	}
}

func TestConvertMessageCaptionFallback(t *testing.T) {
	m := &tgmodels.Message{
		ID:      1,
		Chat:    tgmodels.Chat{ID: 5},
		From:    &tgmodels.User{ID: 2},
		Caption: "the chart",
		Photo:   []tgmodels.PhotoSize{{FileID: "f1", FileSize: 512}},
	}
	msg := convertMessage(m)
	if msg.Content != "the chart" {
		t.Fatalf("caption fallback failed: %q", msg.Content)
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].Type != "image" {
		t.Fatalf("photo attachment lost: %+v", msg.Attachments)
	}
}

func TestConvertMessageThread(t *testing.T) {
	m := &tgmodels.Message{
		ID:              2,
		Chat:            tgmodels.Chat{ID: 5},
		From:            &tgmodels.User{ID: 2},
		Text:            "in thread",
		MessageThreadID: 77,
	}
	if msg := convertMessage(m); msg.ThreadID != "77" {
		t.Fatalf("thread id = %q", msg.ThreadID)
	}
}
