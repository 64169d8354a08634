package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMessageJSONRoundTrip(t *testing.T) {
	in := Message{
		ID:        "m1",
		SessionID: "s1",
		Channel:   ChannelSlack,
		ChannelID: "C123",
		SenderID:  "U456",
		ThreadID:  "1722500000.000100",
		Direction: DirectionInbound,
		Role:      RoleUser,
		Content:   "deploy the staging build",
		Attachments: []Attachment{
			{ID: "a1", Type: "image", URL: "https://example.com/x.png", MimeType: "image/png", Size: 1024},
		},
		Metadata:  map[string]any{"team": "T1"},
		CreatedAt: time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Message
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.ID != in.ID || out.Channel != in.Channel || out.SenderID != in.SenderID {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	if out.ThreadID != in.ThreadID {
		t.Fatalf("thread id lost: %q", out.ThreadID)
	}
	if len(out.Attachments) != 1 || out.Attachments[0].MimeType != "image/png" {
		t.Fatalf("attachments lost: %+v", out.Attachments)
	}
}

func TestOutboundOnlyFieldsOmitted(t *testing.T) {
	data, err := json.Marshal(Message{ID: "m2", Channel: ChannelTelegram, Direction: DirectionInbound, Role: RoleUser, Content: "hi"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"reply_to", "parse_mode", "thread_id", "sender_id"} {
		if _, ok := m[key]; ok {
			t.Fatalf("expected %q omitted from %s", key, data)
		}
	}
}

func TestToolCallInputIsRawJSON(t *testing.T) {
	call := ToolCall{ID: "c1", Name: "read_file", Input: json.RawMessage(`{"path":"notes.txt"}`)}
	data, err := json.Marshal(call)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out ToolCall
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var params map[string]string
	if err := json.Unmarshal(out.Input, &params); err != nil {
		t.Fatalf("input not preserved as raw JSON: %v", err)
	}
	if params["path"] != "notes.txt" {
		t.Fatalf("unexpected input: %v", params)
	}
}
