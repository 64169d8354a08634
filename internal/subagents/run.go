package subagents

import (
	"context"
	"fmt"
)

const maxInnerToolRounds = 5

// execute drives one subagent's controller/executor loop:
//  1. ask the controller for the next step given task/iteration/last output
//  2. emit a deduplicated handoff mention for each new handoff
//  3. if done, adopt final_answer and stop
//  4. if no executor_prompt, stop with the last output
//  5. otherwise run the executor, streaming chunks out
//  6. drive the executor's tool calls through a bounded inner loop
//  7. repeat until done, no prompt, max_iterations, or ctx cancellation
func (r *Registry) execute(ctx context.Context, id string) {
	r.mu.Lock()
	run, ok := r.runs[id]
	r.mu.Unlock()
	if !ok {
		return
	}
	ref := run.ref

	if r.deps.Controller == nil {
		r.complete(ctx, id, StatusFailed, "", "no controller configured")
		return
	}

	seenHandoffs := make(map[string]bool)
	lastOutput := ""

	for iter := 1; iter <= r.maxIterations; iter++ {
		select {
		case <-ctx.Done():
			return // Cancel() already marked the terminal state.
		default:
		}

		r.mu.Lock()
		r.runs[id].ref.Iterations = iter
		r.mu.Unlock()

		plan, err := r.deps.Controller.Plan(ctx, ControllerRequest{
			Task:               ref.Task,
			Iteration:          iter,
			LastExecutorOutput: lastOutput,
		})
		if err != nil {
			r.complete(ctx, id, StatusFailed, "", fmt.Sprintf("controller: %v", err))
			return
		}

		for _, h := range plan.Handoffs {
			key := h.Key()
			if seenHandoffs[key] {
				continue
			}
			seenHandoffs[key] = true
			if r.deps.Handoff != nil {
				r.deps.Handoff(ctx, ref, h)
			}
		}

		if plan.Done {
			r.complete(ctx, id, StatusCompleted, plan.FinalAnswer, "")
			return
		}

		if plan.ExecutorPrompt == "" {
			r.complete(ctx, id, StatusCompleted, lastOutput, "")
			return
		}

		output, err := r.runExecutorTurn(ctx, ref, plan.ExecutorPrompt)
		if err != nil {
			r.complete(ctx, id, StatusFailed, "", fmt.Sprintf("executor: %v", err))
			return
		}
		lastOutput = output
	}

	r.complete(ctx, id, StatusCompleted, lastOutput, "")
}

// runExecutorTurn runs one controller iteration's executor call, including
// its bounded inner tool-call loop, and returns the executor's final text.
func (r *Registry) runExecutorTurn(ctx context.Context, ref Ref, prompt string) (string, error) {
	if r.deps.Executor == nil {
		return "", fmt.Errorf("no executor configured")
	}

	onChunk := func(delta string) {
		if r.deps.StreamChunk != nil {
			r.deps.StreamChunk(ref, delta)
		}
	}

	var toolResults []ToolResult
	for round := 0; round < maxInnerToolRounds; round++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		resp, err := r.deps.Executor.Complete(ctx, ExecutorRequest{
			Prompt:      prompt,
			ToolResults: toolResults,
			OnChunk:     onChunk,
		})
		if err != nil {
			return "", err
		}
		if len(resp.ToolCalls) == 0 {
			return resp.Text, nil
		}

		toolResults = make([]ToolResult, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			if r.deps.ToolExec == nil {
				toolResults = append(toolResults, ToolResult{
					ToolCallID: call.ID,
					Content:    "tool execution unavailable",
					IsError:    true,
				})
				continue
			}
			content, err := r.deps.ToolExec(ctx, ref, call.Name, call.Args)
			if err != nil {
				toolResults = append(toolResults, ToolResult{ToolCallID: call.ID, Content: err.Error(), IsError: true})
				continue
			}
			toolResults = append(toolResults, ToolResult{ToolCallID: call.ID, Content: content})
		}
	}

	return "", fmt.Errorf("exceeded %d inner tool-call rounds", maxInnerToolRounds)
}
