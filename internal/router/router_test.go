package router

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/relaygrid/orchestrator/internal/agent"
	"github.com/relaygrid/orchestrator/internal/eventlog"
	"github.com/relaygrid/orchestrator/internal/secretvault"
	"github.com/relaygrid/orchestrator/internal/skills"
	"github.com/relaygrid/orchestrator/internal/toolregistry"
	"github.com/relaygrid/orchestrator/pkg/models"
)

// scriptedProvider replays one chunk sequence per call, in order, looping
// on the last sequence if Complete is called more times than scripted.
type scriptedProvider struct {
	turns [][]*agent.CompletionChunk
	calls int
}

func (p *scriptedProvider) Name() string                { return "scripted" }
func (p *scriptedProvider) Models() []agent.Model        { return nil }
func (p *scriptedProvider) SupportsTools() bool          { return true }
func (p *scriptedProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	idx := p.calls
	if idx >= len(p.turns) {
		idx = len(p.turns) - 1
	}
	p.calls++

	ch := make(chan *agent.CompletionChunk, len(p.turns[idx]))
	for _, c := range p.turns[idx] {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func textTurn(text string) []*agent.CompletionChunk {
	return []*agent.CompletionChunk{{Text: text}, {Done: true}}
}

func newReq(content string) *Request {
	return &Request{
		Provider:  "telegram",
		ChatID:    "chat-1",
		SessionID: "sess-1",
		Message:   &models.Message{Role: models.RoleUser, Content: content},
	}
}

func TestClassifyKeywordHeuristics(t *testing.T) {
	c := Classifier{}
	if m := c.Classify(context.Background(), "remind me every day at 9am to stretch"); m != ModeTask {
		t.Fatalf("expected ModeTask, got %s", m)
	}
	if m := c.Classify(context.Background(), "search for the latest Go release notes"); m != ModeAgent {
		t.Fatalf("expected ModeAgent, got %s", m)
	}
	if m := c.Classify(context.Background(), "what's 2+2?"); m != ModeOnce {
		t.Fatalf("expected ModeOnce, got %s", m)
	}
}

func TestFindEscalationTokenExactLineStart(t *testing.T) {
	if tok := findEscalationToken("well, NEED_TASK_LOOP is mentioned in passing"); tok != "" {
		t.Fatalf("expected no match for mid-line mention, got %q", tok)
	}
	if tok := findEscalationToken("some text\nNEED_TASK_LOOP please continue"); tok != NeedTaskLoop {
		t.Fatalf("expected NEED_TASK_LOOP at start of line, got %q", tok)
	}
}

func TestRouterRunOnce(t *testing.T) {
	provider := &scriptedProvider{turns: [][]*agent.CompletionChunk{textTurn("hello there")}}
	r := &Router{Classifier: Classifier{}, Provider: provider, Model: "test-model"}

	res, err := r.Execute(context.Background(), newReq("what's 2+2?"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != ModeOnce {
		t.Fatalf("expected ModeOnce, got %s", res.Mode)
	}
	if res.Reply != "hello there" {
		t.Fatalf("unexpected reply: %q", res.Reply)
	}
}

func TestRouterEscalationFromOnceToAgent(t *testing.T) {
	provider := &scriptedProvider{turns: [][]*agent.CompletionChunk{
		textTurn("NEED_AGENT_LOOP\nlet me look that up"),
		textTurn("found it: the answer is 42"),
	}}
	r := &Router{Classifier: Classifier{}, Provider: provider, Model: "test-model"}

	res, err := r.Execute(context.Background(), newReq("what's 2+2?"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != ModeAgent {
		t.Fatalf("expected escalation to ModeAgent, got %s", res.Mode)
	}
	if res.Reply != "found it: the answer is 42" {
		t.Fatalf("unexpected reply: %q", res.Reply)
	}
}

type fakeTool struct{ name string }

func (f fakeTool) Name() string                 { return f.name }
func (f fakeTool) Description() string          { return "a fake tool for tests" }
func (f fakeTool) Schema() map[string]any       { return map[string]any{"type": "object"} }
func (f fakeTool) Validate(json.RawMessage) error { return nil }
func (f fakeTool) Execute(ec toolregistry.ExecContext, params json.RawMessage) (toolregistry.Result, error) {
	return toolregistry.Result{Content: "tool ran ok"}, nil
}

func TestRouterAgentModeExecutesToolThenAnswers(t *testing.T) {
	toolCallChunk := &agent.CompletionChunk{
		ToolCall: &models.ToolCall{ID: "tc-1", Name: "lookup", Input: json.RawMessage(`{}`)},
	}
	provider := &scriptedProvider{turns: [][]*agent.CompletionChunk{
		{toolCallChunk, {Done: true}},
		textTurn("here is what I found"),
	}}

	registry := toolregistry.NewRegistry()
	registry.Register(fakeTool{name: "lookup"})

	r := &Router{Classifier: Classifier{}, Provider: provider, Tools: registry, Model: "test-model"}

	res, err := r.Execute(context.Background(), newReq("search for the weather"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != ModeAgent {
		t.Fatalf("expected ModeAgent, got %s", res.Mode)
	}
	if res.ToolCallsCount != 1 {
		t.Fatalf("expected 1 tool call, got %d", res.ToolCallsCount)
	}
	if res.Reply != "here is what I found" {
		t.Fatalf("unexpected reply: %q", res.Reply)
	}
}

func TestRouterTaskModeRecordsEventLog(t *testing.T) {
	provider := &scriptedProvider{turns: [][]*agent.CompletionChunk{textTurn("scheduled")}}
	log := eventlog.NewLog(eventlog.NewMemoryStore())

	r := &Router{Classifier: Classifier{}, Provider: provider, Model: "test-model", EventLog: log}

	req := newReq("remind me every day to water the plants")
	res, err := r.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != ModeTask {
		t.Fatalf("expected ModeTask, got %s", res.Mode)
	}

	st, err := log.State(context.Background(), taskIDFor(req))
	if err != nil {
		t.Fatalf("unexpected error reading task state: %v", err)
	}
	if st.Status != eventlog.StatusCompleted {
		t.Fatalf("expected task to complete, got status %s", st.Status)
	}
}

func TestSecretGateBlocksUnresolvedReferences(t *testing.T) {
	dir := t.TempDir()
	vault, err := secretvault.Open(dir)
	if err != nil {
		t.Fatalf("open vault: %v", err)
	}

	provider := &scriptedProvider{turns: [][]*agent.CompletionChunk{textTurn("should never run")}}
	r := &Router{Classifier: Classifier{}, Provider: provider, Model: "test-model", Secrets: vault}

	res, err := r.Execute(context.Background(), newReq("use {{secret:missing_key}} to log in"))
	if err == nil {
		t.Fatal("expected secret gate error")
	}
	if res.Reply != "" {
		t.Fatalf("expected no reply when gated, got %q", res.Reply)
	}
	if provider.calls != 0 {
		t.Fatalf("expected provider not to be called, got %d calls", provider.calls)
	}
}

func TestRecommendSkillsScoresKeywordOverlap(t *testing.T) {
	entries := []*skills.SkillEntry{
		{Name: "weather-lookup", Description: "Checks current weather conditions for a city"},
		{Name: "unrelated-skill", Description: "Does something about invoices and billing"},
	}
	lister := staticLister(entries)

	recommended := recommendSkills(lister, "what's the weather like in Seattle today?")
	if len(recommended) == 0 || recommended[0].Name != "weather-lookup" {
		t.Fatalf("expected weather-lookup to be recommended first, got %+v", recommended)
	}
}

type staticLister []*skills.SkillEntry

func (s staticLister) ListEligible() []*skills.SkillEntry { return s }

func TestResumeAdapterReDispatchesTaskMode(t *testing.T) {
	provider := &scriptedProvider{turns: [][]*agent.CompletionChunk{textTurn("resumed and finished")}}
	log := eventlog.NewLog(eventlog.NewMemoryStore())
	r := &Router{Classifier: Classifier{}, Provider: provider, Model: "test-model", EventLog: log}

	adapter := ResumeAdapter{Router: r}
	if err := adapter.Resume(context.Background(), "task:slack:chat-9:default"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	st, err := log.State(context.Background(), "task:slack:chat-9:default")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if st.Status != eventlog.StatusCompleted {
		t.Fatalf("expected completed status, got %s", st.Status)
	}
}
