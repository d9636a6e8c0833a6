package orchestrator

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/learnmate-backend/internal/observability"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

// -------------------- Public API --------------------

type RetryPolicy struct {
	MaxAttempts int
	Retryable   func(err error) bool

	MinBackoff time.Duration // default 1s
	MaxBackoff time.Duration // default 30s
	JitterFrac float64       // default 0.20
}

type Event string

const (
	EventStart  Event = "start"
	EventDone   Event = "done"
	EventFailed Event = "failed"
)

// Update is what observers see at every stage boundary.
type Update struct {
	Stage   string
	Event   Event
	Percent int
	Message string
	Attempt int
	Err     error
}

// Observer runs on the committed state at each boundary and returns the state
// the engine continues with.
type Observer[S any] func(ctx context.Context, st S, u Update) S

type Stage[S any] struct {
	Name string

	Pct      int // progress reported when the stage starts
	StartMsg string
	DoneMsg  string
	Timeout  time.Duration
	Retry    RetryPolicy
	Run      func(ctx context.Context, st S) (S, error)
}

// StageError is returned when a stage exhausts its attempts.
type StageError struct {
	Stage    string
	Attempts int
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %q failed after %d attempt(s): %v", e.Stage, e.Attempts, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

type Engine[S any] struct {
	Log       *logger.Logger
	Clone     func(S) S
	Observers []Observer[S]
	Metrics   *observability.Metrics // default observability.Current()

	SpanPrefix string

	Sleep func(ctx context.Context, d time.Duration) error
}

func NewEngine[S any](log *logger.Logger, clone func(S) S, observers ...Observer[S]) *Engine[S] {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine[S]{
		Log:       log.With("service", "StageEngine"),
		Clone:     clone,
		Observers: observers,
		Sleep:     sleepCtx,
	}
}

// Run executes stages in order. Each attempt works on a clone of the committed
// state; only a successful attempt's result is committed. On failure the last
// committed state is returned together with a *StageError.
func (e *Engine[S]) Run(ctx context.Context, stages []Stage[S], st S) (S, *RunState, error) {
	rs := &RunState{}
	rs.ensure()
	if err := validateStages(stages); err != nil {
		return st, rs, err
	}
	for i := range stages {
		def := stages[i]
		ss := rs.EnsureStage(def.Name)
		st = e.startStage(ctx, rs, def, ss, st)

		next, err := e.runStage(ctx, def, ss, st)
		if err != nil {
			ss.Status = StageFailed
			markFinished(ss, errString(err))
			rs.FailedStage = def.Name
			st = e.notify(ctx, st, Update{
				Stage:   def.Name,
				Event:   EventFailed,
				Percent: rs.LastProgress,
				Message: err.Error(),
				Attempt: ss.Attempts,
				Err:     err,
			})
			for _, rest := range stages[i+1:] {
				rs.EnsureStage(rest.Name).Status = StageSkipped
			}
			return st, rs, &StageError{Stage: def.Name, Attempts: ss.Attempts, Err: err}
		}
		st = next
		ss.Status = StageSucceeded
		markFinished(ss, "")
		st = e.notify(ctx, st, Update{
			Stage:   def.Name,
			Event:   EventDone,
			Percent: rs.LastProgress,
			Message: msgOr(def.DoneMsg, "Done "+def.Name),
			Attempt: ss.Attempts,
		})
	}
	return st, rs, nil
}

// -------------------- tight helpers --------------------

func (e *Engine[S]) startStage(ctx context.Context, rs *RunState, def Stage[S], ss *StageState, st S) S {
	pct := setProgress(rs, def.Pct)
	ss.Status = StageRunning
	markStarted(ss)
	return e.notify(ctx, st, Update{
		Stage:   def.Name,
		Event:   EventStart,
		Percent: pct,
		Message: msgOr(def.StartMsg, "Starting "+def.Name),
	})
}

func (e *Engine[S]) runStage(ctx context.Context, def Stage[S], ss *StageState, st S) (S, error) {
	ctx, span := observability.Tracer().Start(ctx, e.spanName(def.Name),
		trace.WithAttributes(attribute.String("stage.name", def.Name)))
	defer span.End()

	started := time.Now()
	for {
		ss.Attempts++
		if err := ctx.Err(); err != nil {
			e.finishSpan(span, def, ss, started, err)
			return st, err
		}
		out, err := safeRun(ctx, def, e.clone(st))
		if err == nil {
			e.finishSpan(span, def, ss, started, nil)
			return out, nil
		}
		ss.LastError = errString(err)
		if !shouldRetry(def.Retry, ss.Attempts, err) || ctx.Err() != nil {
			e.finishSpan(span, def, ss, started, err)
			return st, err
		}
		delay := computeBackoff(def.Retry, ss.Attempts)
		e.logger().Warn("stage attempt failed; retrying",
			"stage", def.Name, "attempt", ss.Attempts, "backoff", delay.String(), "error", err)
		if werr := e.sleep(ctx, delay); werr != nil {
			e.finishSpan(span, def, ss, started, werr)
			return st, werr
		}
	}
}

func (e *Engine[S]) finishSpan(span trace.Span, def Stage[S], ss *StageState, started time.Time, err error) {
	span.SetAttributes(attribute.Int("stage.attempts", ss.Attempts))
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	e.metrics().ObserveStage(def.Name, status, time.Since(started))
}

func (e *Engine[S]) notify(ctx context.Context, st S, u Update) S {
	for _, obs := range e.Observers {
		if obs == nil {
			continue
		}
		st = e.safeObserve(ctx, obs, st, u)
	}
	return st
}

func (e *Engine[S]) safeObserve(ctx context.Context, obs Observer[S], st S, u Update) (out S) {
	out = st
	defer func() {
		if r := recover(); r != nil {
			e.logger().Error("observer panicked", "stage", u.Stage, "event", string(u.Event), "panic", fmt.Sprint(r))
			out = st
		}
	}()
	return obs(ctx, st, u)
}

func (e *Engine[S]) logger() *logger.Logger {
	if e.Log == nil {
		return logger.Nop()
	}
	return e.Log
}

func (e *Engine[S]) clone(st S) S {
	if e.Clone == nil {
		return st
	}
	return e.Clone(st)
}

func (e *Engine[S]) spanName(stage string) string {
	if e.SpanPrefix == "" {
		return stage
	}
	return e.SpanPrefix + stage
}

func (e *Engine[S]) metrics() *observability.Metrics {
	if e.Metrics != nil {
		return e.Metrics
	}
	return observability.Current()
}

func (e *Engine[S]) sleep(ctx context.Context, d time.Duration) error {
	if e.Sleep != nil {
		return e.Sleep(ctx, d)
	}
	return sleepCtx(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// -------------------- safety + validation --------------------

func validateStages[S any](stages []Stage[S]) error {
	seen := map[string]bool{}
	last := -1
	for _, s := range stages {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("stage missing Name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate stage name %q", s.Name)
		}
		seen[s.Name] = true
		if s.Pct < 0 || s.Pct > 100 {
			return fmt.Errorf("stage %q: progress must be 0..100", s.Name)
		}
		if s.Pct < last {
			return fmt.Errorf("stage %q: Pct must be >= previous stage Pct", s.Name)
		}
		last = s.Pct
		if s.Run == nil {
			return fmt.Errorf("stage %q: Run is nil", s.Name)
		}
	}
	return nil
}

// safeRun converts panics into errors and enforces the stage timeout. A timed
// out attempt keeps running in the background on its own clone; its result is
// discarded.
func safeRun[S any](ctx context.Context, def Stage[S], st S) (S, error) {
	run := func(ctx context.Context) (out S, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("stage %q panicked: %v", def.Name, r)
			}
		}()
		return def.Run(ctx, st)
	}
	if def.Timeout <= 0 {
		return run(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, def.Timeout)
	defer cancel()
	type result struct {
		st  S
		err error
	}
	ch := make(chan result, 1)
	go func() {
		s, err := run(tctx)
		ch <- result{st: s, err: err}
	}()
	select {
	case <-tctx.Done():
		var zero S
		return zero, fmt.Errorf("stage %q timed out: %w", def.Name, tctx.Err())
	case r := <-ch:
		return r.st, r.err
	}
}

// -------------------- progress + timestamps --------------------

// setProgress never lets reported progress move backwards.
func setProgress(rs *RunState, pct int) int {
	if pct < rs.LastProgress {
		return rs.LastProgress
	}
	rs.LastProgress = pct
	return pct
}

func markStarted(ss *StageState) {
	if ss == nil || ss.StartedAt != nil {
		return
	}
	now := time.Now().UTC()
	ss.StartedAt = &now
}

func markFinished(ss *StageState, lastErr string) {
	if ss == nil {
		return
	}
	now := time.Now().UTC()
	ss.FinishedAt = &now
	if strings.TrimSpace(lastErr) != "" {
		ss.LastError = lastErr
	}
}

// -------------------- retry/backoff --------------------

func shouldRetry(r RetryPolicy, attempts int, err error) bool {
	if r.MaxAttempts <= 0 || attempts >= r.MaxAttempts {
		return false
	}
	if r.Retryable == nil {
		return true
	}
	return r.Retryable(err)
}

func computeBackoff(r RetryPolicy, attempts int) time.Duration {
	minB := r.MinBackoff
	maxB := r.MaxBackoff
	j := r.JitterFrac
	if minB <= 0 {
		minB = 1 * time.Second
	}
	if maxB <= 0 {
		maxB = 30 * time.Second
	}
	if j <= 0 {
		j = 0.20
	}
	if attempts < 1 {
		attempts = 1
	}
	d := time.Duration(float64(minB) * math.Pow(2, float64(attempts-1)))
	if d > maxB {
		d = maxB
	}
	delta := float64(d) * j
	low := float64(d) - delta
	high := float64(d) + delta
	if low < 0 {
		low = 0
	}
	return time.Duration(low + rand.Float64()*(high-low))
}

// -------------------- misc --------------------

func msgOr(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
