package curriculumrun

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/learnmate-backend/internal/services"
)

// Workflow runs a single generation activity. The pipeline never fails on a
// backend outage, so a failed activity only means the run could not be
// recorded; it is retried a few times before the workflow gives up.
func Workflow(ctx workflow.Context, in services.RunInput) (Result, error) {
	if in.RunID == uuid.Nil {
		return Result{}, fmt.Errorf("curriculumrun: missing run_id")
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    10 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	})

	var out Result
	if err := workflow.ExecuteActivity(ctx, ActivityGenerate, in).Get(ctx, &out); err != nil {
		return out, err
	}
	workflow.GetLogger(ctx).Info("curriculum run finished", "run_id", out.RunID, "curriculum_id", out.CurriculumID, "fallback", out.Fallback)
	return out, nil
}
