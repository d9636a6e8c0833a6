package curriculumrun

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/yungbote/learnmate-backend/internal/platform/logger"
	"github.com/yungbote/learnmate-backend/internal/services"
)

type Activities struct {
	Log       *logger.Logger
	Curricula services.CurriculumService
}

func (a *Activities) Generate(ctx context.Context, in services.RunInput) (Result, error) {
	res := Result{RunID: in.RunID.String()}
	if a == nil || a.Curricula == nil {
		return res, fmt.Errorf("curriculumrun: activity not configured")
	}

	stop := startHeartbeat(ctx, 10*time.Second)
	defer stop()

	out, err := a.Curricula.ExecuteRun(ctx, in)
	if err != nil {
		if a.Log != nil {
			a.Log.Warn("curriculum run activity failed", "run_id", in.RunID, "error", err)
		}
		return res, err
	}
	if out == nil {
		res.Skipped = true
		return res, nil
	}
	if out.CurriculumID != nil {
		res.CurriculumID = out.CurriculumID.String()
	}
	res.Fallback = out.Curriculum.Fallback
	return res, nil
}

func startHeartbeat(ctx context.Context, every time.Duration) func() {
	if !activity.IsActivity(ctx) {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}
