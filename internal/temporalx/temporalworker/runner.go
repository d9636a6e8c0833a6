package temporalworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yungbote/learnmate-backend/internal/platform/logger"
	"github.com/yungbote/learnmate-backend/internal/services"
	"github.com/yungbote/learnmate-backend/internal/temporalx"
	"github.com/yungbote/learnmate-backend/internal/temporalx/curriculumrun"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

const (
	startMaxWait    = 60 * time.Second
	startBackoff    = 250 * time.Millisecond
	startBackoffMax = 5 * time.Second
)

type Runner struct {
	log       *logger.Logger
	tc        temporalsdkclient.Client
	cfg       temporalx.Config
	curricula services.CurriculumService
}

func NewRunner(log *logger.Logger, tc temporalsdkclient.Client, cfg temporalx.Config, curricula services.CurriculumService) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if curricula == nil {
		return nil, fmt.Errorf("temporal worker missing curriculum service")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Runner{log: log.With("component", "TemporalWorker"), tc: tc, cfg: cfg.Normalized(), curricula: curricula}, nil
}

// Start polls the task queue until ctx is done. A worker that fails to start
// is retried with backoff for up to a minute.
func (r *Runner) Start(ctx context.Context) error {
	if r == nil || r.tc == nil {
		return fmt.Errorf("temporal worker not initialized")
	}
	r.log.Info("starting Temporal worker", "namespace", r.cfg.Namespace, "task_queue", r.cfg.TaskQueue)

	if r.cfg.AutoRegisterNamespace {
		if err := temporalx.EnsureNamespace(ctx, r.log, r.cfg); err != nil {
			r.log.Warn("Temporal namespace ensure failed; worker will retry on start", "namespace", r.cfg.Namespace, "error", err)
		}
	}

	deadline := time.Now().Add(startMaxWait)
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		w := r.newWorker()
		startErr := w.Start()
		if startErr == nil {
			go func() {
				<-ctx.Done()
				w.Stop()
			}()
			r.log.Info("Temporal worker started", "task_queue", r.cfg.TaskQueue, "attempts", attempt)
			return nil
		}
		w.Stop()

		var nfe *serviceerror.NamespaceNotFound
		if errors.As(startErr, &nfe) {
			if !r.cfg.AutoRegisterNamespace {
				return fmt.Errorf("temporal namespace not found (namespace=%s): %w", r.cfg.Namespace, startErr)
			}
			_ = temporalx.EnsureNamespace(ctx, r.log, r.cfg)
		}
		if time.Now().After(deadline) {
			return startErr
		}
		r.log.Warn("Temporal worker failed to start; retrying", "attempt", attempt, "error", startErr)
		time.Sleep(temporalx.ClampBackoff(startBackoff, startBackoffMax, attempt))
	}
}

func (r *Runner) newWorker() worker.Worker {
	w := worker.New(r.tc, r.cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     r.cfg.WorkerConcurrency,
		MaxConcurrentWorkflowTaskExecutionSize: r.cfg.WorkerConcurrency,
	})
	acts := &curriculumrun.Activities{Log: r.log, Curricula: r.curricula}
	w.RegisterWorkflowWithOptions(curriculumrun.Workflow, workflow.RegisterOptions{Name: curriculumrun.WorkflowName})
	w.RegisterActivityWithOptions(acts.Generate, activity.RegisterOptions{Name: curriculumrun.ActivityGenerate})
	return w
}
