package streambuf

import (
	"encoding/json"
	"regexp"
	"strings"
)

// CLI protocol framing markers.
const (
	FinalStart      = "<<ORCH_FINAL>>"
	FinalEnd        = "<<ORCH_FINAL_END>>"
	ToolCallsStart  = "<<ORCH_TOOL_CALLS>>"
	ToolCallsEnd    = "<<ORCH_TOOL_CALLS_END>>"
)

// ToolCallRequest is one entry of an <<ORCH_TOOL_CALLS>> block.
type ToolCallRequest struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type toolCallsEnvelope struct {
	ToolCalls []ToolCallRequest `json:"tool_calls"`
}

// ExtractFinal returns the body of the last <<ORCH_FINAL>>...<<ORCH_FINAL_END>>
// block in output. If the end marker hasn't arrived yet but a start marker
// has, it returns the in-progress body since the start marker (partial,
// true) so streaming callers can show a live preview.
func ExtractFinal(output string) (body string, complete bool) {
	lastStart := strings.LastIndex(output, FinalStart)
	if lastStart == -1 {
		return "", false
	}
	afterStart := output[lastStart+len(FinalStart):]
	end := strings.Index(afterStart, FinalEnd)
	if end == -1 {
		return afterStart, false
	}
	return afterStart[:end], true
}

// ExtractToolCalls parses the last <<ORCH_TOOL_CALLS>> block in output, if
// any, and returns its tool_calls list.
func ExtractToolCalls(output string) ([]ToolCallRequest, bool) {
	lastStart := strings.LastIndex(output, ToolCallsStart)
	if lastStart == -1 {
		return nil, false
	}
	afterStart := output[lastStart+len(ToolCallsStart):]
	end := strings.Index(afterStart, ToolCallsEnd)
	if end == -1 {
		return nil, false
	}
	body := strings.TrimSpace(afterStart[:end])
	var envelope toolCallsEnvelope
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		return nil, false
	}
	return envelope.ToolCalls, true
}

// jsonEvent is the common shape of one line of a JSON-event-stream CLI's
// output: a discriminated "type" plus an optional nested item.
type jsonEvent struct {
	Type string `json:"type"`
	Item *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"item"`
	Delta string `json:"delta"`
	Text  string `json:"text"`
}

// itemTypes that carry reconstructable assistant-visible text in an
// "item.completed" event.
var completableItemTypes = map[string]bool{
	"agent_message":     true,
	"assistant_message": true,
	"message":           true,
	"reasoning":         true,
}

// JSONLineDelta walks a JSON-event-stream CLI's line sequence and
// reconstructs final text by tracking lastFullText and computing each
// line's delta from item.completed events. It returns the
// full reconstructed text and whether a terminal event (turn.completed or
// a *message.completed* type) was observed.
func JSONLineDelta(lines []string) (full string, complete bool) {
	var lastFullText string
	var sb strings.Builder

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var ev jsonEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		switch {
		case ev.Type == "item.completed" && ev.Item != nil && completableItemTypes[ev.Item.Type]:
			text := ev.Item.Text
			if strings.HasPrefix(text, lastFullText) {
				sb.WriteString(text[len(lastFullText):])
			} else {
				sb.WriteString(text)
			}
			lastFullText = text
		case strings.Contains(ev.Type, "delta"):
			sb.WriteString(ev.Delta)
		case strings.Contains(ev.Type, "message.completed"), ev.Type == "turn.completed":
			complete = true
		case ev.Type == "assistant" && ev.Text != "":
			sb.WriteString(ev.Text)
		}
	}
	return sb.String(), complete
}

// RichestOf returns whichever of the marker-framed extraction or the
// JSON-line reconstruction carries more text: both channels are parsed
// and the richer of the two wins.
func RichestOf(markerBody string, jsonBody string) string {
	if len(jsonBody) > len(markerBody) {
		return jsonBody
	}
	return markerBody
}

// providerErrorPrefixes are well-known provider failure signatures scanned
// for verbatim.
var providerErrorPrefixes = []string{
	"error calling",
	"not logged in",
	"please run /login",
	"stream disconnected",
}

// ExtractError scans lines of output for a known provider error prefix and
// returns the first matching line verbatim, so callers can surface or
// retry it. ok is false if no known error signature was found.
func ExtractError(output string) (line string, ok bool) {
	for _, raw := range strings.Split(output, "\n") {
		lower := strings.ToLower(raw)
		for _, prefix := range providerErrorPrefixes {
			if strings.Contains(lower, prefix) {
				return strings.TrimSpace(raw), true
			}
		}
	}
	return "", false
}

// injectionPatterns flag lines of fetched/extracted web content that look
// like an attempt to redirect the model's instructions.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore (all )?previous instructions`),
	regexp.MustCompile(`(?i)you are now (in )?developer mode`),
	regexp.MustCompile(`(?i)disregard (your|the) (system )?prompt`),
	regexp.MustCompile(`(?i)\bnew instructions?:\s`),
}

// SanitizeInjections removes any line matching a known prompt-injection
// pattern from text, returning the cleaned text and how many lines were
// stripped.
func SanitizeInjections(text string) (clean string, stripped int) {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		flagged := false
		for _, pattern := range injectionPatterns {
			if pattern.MatchString(line) {
				flagged = true
				break
			}
		}
		if flagged {
			stripped++
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n"), stripped
}

// Truncate clips s to maxChars, replacing the removed middle with a marker
// that names how many characters were cut.
func Truncate(s string, maxChars int) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	// The cut count never has more digits than len(s).
	keep := maxChars - len("…[truncated  chars]…") - len(itoa(len(s)))
	if keep < 2 {
		return s[:maxChars]
	}
	head := keep / 2
	tail := keep - head
	cut := len(s) - head - tail
	return s[:head] + "…[truncated " + itoa(cut) + " chars]…" + s[len(s)-tail:]
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
