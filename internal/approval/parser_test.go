package approval

import "testing"

func TestParseApprove(t *testing.T) {
	p := NewParser()
	decision, confidence := p.Parse("yes, go ahead and approve it")
	if decision != string(DecisionApprove) {
		t.Fatalf("decision = %q, want approve", decision)
	}
	if confidence <= 0.5 {
		t.Fatalf("confidence = %v, want > 0.5", confidence)
	}
}

func TestParseDenyKorean(t *testing.T) {
	p := NewParser()
	decision, _ := p.Parse("아니 거부")
	if decision != string(DecisionDeny) {
		t.Fatalf("decision = %q, want deny", decision)
	}
}

func TestParseEmoji(t *testing.T) {
	p := NewParser()
	decision, _ := p.Parse("✅")
	if decision != string(DecisionApprove) {
		t.Fatalf("decision = %q, want approve", decision)
	}
}

func TestParseEmptyIsUnknown(t *testing.T) {
	p := NewParser()
	decision, confidence := p.Parse("")
	if decision != string(DecisionUnknown) {
		t.Fatalf("decision = %q, want unknown", decision)
	}
	if confidence >= 0.5 {
		t.Fatalf("confidence = %v, want low", confidence)
	}
}

func TestParseNoMatchIsUnknown(t *testing.T) {
	p := NewParser()
	decision, _ := p.Parse("the weather is nice today")
	if decision != string(DecisionUnknown) {
		t.Fatalf("decision = %q, want unknown", decision)
	}
}

func TestParseTieIsUnknown(t *testing.T) {
	p := NewParser()
	// "no" (deny) and "wait" (defer) each match exactly once: a tie.
	decision, confidence := p.Parse("no wait")
	if decision != string(DecisionUnknown) {
		t.Fatalf("decision = %q, want unknown on tie", decision)
	}
	if confidence >= 0.5 {
		t.Fatalf("confidence = %v, want low on tie", confidence)
	}
}

func TestMapReactionKnown(t *testing.T) {
	d, ok := MapReaction("white_check_mark")
	if !ok || d != DecisionApprove {
		t.Fatalf("MapReaction(white_check_mark) = %v,%v, want approve,true", d, ok)
	}
}

func TestMapReactionUnknown(t *testing.T) {
	if _, ok := MapReaction("party_parrot"); ok {
		t.Fatal("expected unmapped reaction to report false")
	}
}
