// Package approval implements the text/reaction decision parser and the
// inbound-message resolution service described for the Tool Registry's
// approval lifecycle (toolregistry.ApprovalRequest): turning a human's free
// text reply, or a Slack reaction, into an approve/deny/defer/cancel/
// clarify decision, and driving resolve→execute against the tool registry.
//
// The token-set classifier is a closed, fixed vocabulary scored by
// substring counting, not a parsing or NLP problem an ecosystem dependency
// would meaningfully help with.
package approval

import "strings"

// Decision is one of the five terminal/clarify outcomes the parser can
// produce, or "unknown" when nothing matches.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionDeny    Decision = "deny"
	DecisionDefer   Decision = "defer"
	DecisionCancel  Decision = "cancel"
	DecisionClarify Decision = "clarify"
	DecisionUnknown Decision = "unknown"
)

// tokenSets holds the disjoint English/Korean/emoji vocabularies for each
// decision.
var tokenSets = map[Decision][]string{
	DecisionApprove: {
		"approve", "approved", "yes", "yep", "yeah", "ok", "okay", "sure", "go ahead", "do it", "confirm", "confirmed", "allow", "allowed", "proceed", "lgtm",
		"승인", "허용", "네", "예", "좋아", "진행",
		"✅", "👍", "✔️", "☑️",
	},
	DecisionDeny: {
		"deny", "denied", "no", "nope", "reject", "rejected", "stop", "don't", "do not", "cancel that", "disallow", "block",
		"거부", "아니", "안돼", "안 돼", "중지",
		"❌", "👎", "🚫", "✋",
	},
	DecisionDefer: {
		"later", "defer", "deferred", "not now", "wait", "hold on", "hold off", "snooze", "remind me later", "postpone",
		"나중에", "보류", "대기",
		"⏳", "⌛", "🕒",
	},
	DecisionCancel: {
		"cancel", "cancelled", "abort", "nevermind", "never mind", "forget it", "withdraw",
		"취소", "철회",
		"🛑", "⛔",
	},
	DecisionClarify: {
		"clarify", "what", "explain", "why", "which one", "what do you mean", "unsure", "not sure", "huh", "？",
		"뭐", "설명", "왜",
		"❓", "❔",
	},
}

var decisionOrder = []Decision{DecisionApprove, DecisionDeny, DecisionDefer, DecisionCancel, DecisionClarify}

// Parser classifies free text into a decision with a confidence score.
type Parser struct{}

// NewParser returns a stateless text/reaction decision parser.
func NewParser() *Parser { return &Parser{} }

// Parse implements toolregistry.ApprovalParser: pattern-match text against
// the five token sets, score each by pattern-count, and pick the top
// decision. Confidence is min(1, 0.5+0.2*(top-second)); a tie or empty
// input yields "unknown" with low confidence.
func (p *Parser) Parse(text string) (string, float64) {
	decision, confidence, _ := p.classify(text)
	return string(decision), confidence
}

// ParseNormalized is Parse plus the lowercased, trimmed text the score was
// computed against, yielding the {decision, confidence, normalized}
// output shape.
func (p *Parser) ParseNormalized(text string) (Decision, float64, string) {
	return p.classify(text)
}

func (p *Parser) classify(text string) (Decision, float64, string) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return DecisionUnknown, 0.1, normalized
	}

	scores := make(map[Decision]int, len(decisionOrder))
	for _, d := range decisionOrder {
		scores[d] = countMatches(normalized, tokenSets[d])
	}

	top, second := DecisionUnknown, 0
	topScore := 0
	for _, d := range decisionOrder {
		s := scores[d]
		if s > topScore {
			second = topScore
			topScore = s
			top = d
		} else if s > second {
			second = s
		}
	}

	if topScore == 0 {
		return DecisionUnknown, 0.1, normalized
	}
	// A tie at the top is ambiguous: walk again to detect a second decision
	// at the same score as the winner.
	tied := false
	for _, d := range decisionOrder {
		if d != top && scores[d] == topScore {
			tied = true
			break
		}
	}
	if tied {
		return DecisionUnknown, 0.3, normalized
	}

	confidence := 0.5 + 0.2*float64(topScore-second)
	if confidence > 1 {
		confidence = 1
	}
	return top, confidence, normalized
}

func countMatches(normalized string, tokens []string) int {
	count := 0
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		if strings.Contains(normalized, strings.ToLower(tok)) {
			count++
		}
	}
	return count
}

// reactionMap maps Slack reaction names to decisions's
// reaction path.
var reactionMap = map[string]Decision{
	"white_check_mark":  DecisionApprove,
	"heavy_check_mark":  DecisionApprove,
	"thumbsup":          DecisionApprove,
	"+1":                DecisionApprove,
	"thumbsdown":        DecisionDeny,
	"-1":                DecisionDeny,
	"x":                 DecisionDeny,
	"negative_squared_cross_mark": DecisionDeny,
	"octagonal_sign":    DecisionCancel,
	"no_entry":          DecisionCancel,
	"hourglass":         DecisionDefer,
	"hourglass_flowing_sand": DecisionDefer,
	"question":          DecisionClarify,
	"grey_question":     DecisionClarify,
}

// MapReaction returns the decision a Slack reaction name represents, if any.
func MapReaction(name string) (Decision, bool) {
	d, ok := reactionMap[strings.ToLower(strings.TrimSpace(strings.Trim(name, ":")))]
	return d, ok
}
