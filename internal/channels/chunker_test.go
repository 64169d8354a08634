package channels

import (
	"strings"
	"testing"
)

func TestSplitMessageShortTextUntouched(t *testing.T) {
	chunks := SplitMessage("hello", 2000)
	if len(chunks) != 1 || chunks[0] != "hello" {
		t.Fatalf("unexpected chunks: %v", chunks)
	}
}

func TestSplitMessagePrefersParagraphBreaks(t *testing.T) {
	text := strings.Repeat("a", 50) + "\n\n" + strings.Repeat("b", 50)
	chunks := SplitMessage(text, 60)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %v", len(chunks), chunks)
	}
	if !strings.HasPrefix(chunks[0], "a") || strings.Contains(chunks[0], "b") {
		t.Fatalf("first chunk should stop at the paragraph break: %q", chunks[0])
	}
}

func TestSplitMessageHardBreakWithoutSeparator(t *testing.T) {
	text := strings.Repeat("x", 250)
	chunks := SplitMessage(text, 100)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if len([]rune(c)) > 100 {
			t.Fatalf("chunk over limit: %d runes", len([]rune(c)))
		}
	}
	if strings.Join(chunks, "") != text {
		t.Fatal("hard break lost content")
	}
}

func TestSplitMessageMultibyteSafe(t *testing.T) {
	text := strings.Repeat("한", 150)
	chunks := SplitMessage(text, 100)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if strings.Join(chunks, "") != text {
		t.Fatal("multibyte content corrupted by split")
	}
}
