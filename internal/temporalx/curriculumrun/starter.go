package curriculumrun

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"

	"github.com/yungbote/learnmate-backend/internal/services"
)

// Starter dispatches async runs to Temporal. The workflow id is derived from
// the run id, so a duplicate start is treated as already dispatched.
type Starter struct {
	client    temporalsdkclient.Client
	taskQueue string
}

func NewStarter(c temporalsdkclient.Client, taskQueue string) *Starter {
	if c == nil {
		return nil
	}
	tq := strings.TrimSpace(taskQueue)
	if tq == "" {
		tq = "learnmate"
	}
	return &Starter{client: c, taskQueue: tq}
}

func WorkflowID(in services.RunInput) string {
	return WorkflowName + ":" + in.RunID.String()
}

func (s *Starter) StartCurriculumRun(ctx context.Context, in services.RunInput) (string, error) {
	if s == nil || s.client == nil {
		return "", fmt.Errorf("temporal not configured")
	}
	id := WorkflowID(in)
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                    id,
		TaskQueue:             s.taskQueue,
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
		WorkflowRunTimeout:    45 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    30 * time.Second,
			BackoffCoefficient: 1.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    2,
		},
	}
	_, err := s.client.ExecuteWorkflow(ctx, opts, WorkflowName, in)
	if err == nil {
		return id, nil
	}
	var already *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &already) {
		return id, nil
	}
	return "", err
}

var _ services.WorkflowStarter = (*Starter)(nil)
