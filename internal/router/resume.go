package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/relaygrid/orchestrator/pkg/models"
)

// ResumeAdapter lets a Router serve as an opsruntime.Resumer: it decodes a
// "task:<provider>:<chat_id>:<alias>" task id, synthesizes the
// "[workflow resume]" message the task loop expects, and re-dispatches it
// in task mode. Structural rather than an imported interface, so router
// doesn't need to depend on opsruntime.
type ResumeAdapter struct {
	Router *Router
}

// Resume implements the single-method interface opsruntime.Resumer expects.
func (a ResumeAdapter) Resume(ctx context.Context, taskID string) error {
	provider, chatID, alias, err := parseTaskID(taskID)
	if err != nil {
		return err
	}

	req := &Request{
		Provider:       provider,
		ChatID:         chatID,
		SessionID:      taskID,
		PreferredAlias: alias,
		Message: &models.Message{
			Role:    models.RoleUser,
			Content: "[workflow resume]",
		},
	}

	result, err := a.Router.runTask(ctx, req)
	if err != nil {
		return err
	}
	if result.Error != "" {
		return fmt.Errorf("router: resume %q: %s", taskID, result.Error)
	}
	return nil
}

// parseTaskID reverses taskIDFor's "task:<provider>:<chat_id>:<alias>"
// convention.
func parseTaskID(taskID string) (provider, chatID, alias string, err error) {
	parts := strings.SplitN(taskID, ":", 4)
	if len(parts) != 4 || parts[0] != "task" {
		return "", "", "", fmt.Errorf("router: malformed task id %q", taskID)
	}
	return parts[1], parts[2], parts[3], nil
}
