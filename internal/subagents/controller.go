package subagents

import "context"

// Handoff is a request the controller makes to mention another agent; each
// is deduplicated by Key before an outbound mention message is emitted.
type Handoff struct {
	Alias       string `json:"alias"`
	Instruction string `json:"instruction"`
}

// Key returns the dedup key for a handoff within one run.
func (h Handoff) Key() string { return h.Alias + "\x00" + h.Instruction }

// ControllerRequest is what the controller sees each iteration: the task,
// how many iterations have run, and the executor's last output.
type ControllerRequest struct {
	Task               string
	Iteration          int
	LastExecutorOutput string
}

// ControllerResponse is the strict-JSON shape the controller must return.
type ControllerResponse struct {
	Done           bool      `json:"done"`
	ExecutorPrompt string    `json:"executor_prompt"`
	FinalAnswer    string    `json:"final_answer"`
	Reason         string    `json:"reason"`
	Handoffs       []Handoff `json:"handoffs"`
}

// Controller plans the next step of a subagent run given the task history
// so far. Implementations are expected to query a model with a JSON-only
// schema instruction and parse the strict response described above.
type Controller interface {
	Plan(ctx context.Context, req ControllerRequest) (ControllerResponse, error)
}

// ControllerFunc adapts a plain function to a Controller.
type ControllerFunc func(ctx context.Context, req ControllerRequest) (ControllerResponse, error)

// Plan implements Controller.
func (f ControllerFunc) Plan(ctx context.Context, req ControllerRequest) (ControllerResponse, error) {
	return f(ctx, req)
}
