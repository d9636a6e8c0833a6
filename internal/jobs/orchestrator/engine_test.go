package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

type doc struct {
	Steps []string
	Log   []string
}

func cloneDoc(d doc) doc {
	return doc{
		Steps: append([]string(nil), d.Steps...),
		Log:   append([]string(nil), d.Log...),
	}
}

func appendStep(name string) func(context.Context, doc) (doc, error) {
	return func(_ context.Context, d doc) (doc, error) {
		d.Steps = append(d.Steps, name)
		return d, nil
	}
}

func recorder(events *[]Update) Observer[doc] {
	return func(_ context.Context, d doc, u Update) doc {
		*events = append(*events, u)
		d.Log = append(d.Log, string(u.Event)+":"+u.Stage)
		return d
	}
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestEngineRunsStagesInOrder(t *testing.T) {
	var events []Update
	e := NewEngine(logger.Nop(), cloneDoc, recorder(&events))
	out, rs, err := e.Run(context.Background(), []Stage[doc]{
		{Name: "a", Pct: 10, Run: appendStep("a")},
		{Name: "b", Pct: 40, Run: appendStep("b")},
		{Name: "c", Pct: 90, Run: appendStep("c")},
	}, doc{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, out.Steps)
	assert.Equal(t, []string{"start:a", "done:a", "start:b", "done:b", "start:c", "done:c"}, out.Log)
	assert.Equal(t, 90, rs.LastProgress)
	assert.Equal(t, []string{"a", "b", "c"}, rs.Order)
	for _, name := range rs.Order {
		assert.Equal(t, StageSucceeded, rs.Status(name))
		assert.Equal(t, 1, rs.Stages[name].Attempts)
	}
	require.Len(t, events, 6)
	assert.Equal(t, 40, events[2].Percent)
}

func TestEngineFailureKeepsCommittedState(t *testing.T) {
	boom := errors.New("boom")
	var events []Update
	e := NewEngine(logger.Nop(), cloneDoc, recorder(&events))
	out, rs, err := e.Run(context.Background(), []Stage[doc]{
		{Name: "a", Pct: 10, Run: appendStep("a")},
		{Name: "b", Pct: 20, Run: func(_ context.Context, d doc) (doc, error) {
			d.Steps = append(d.Steps, "partial")
			return d, boom
		}},
		{Name: "c", Pct: 30, Run: appendStep("c")},
	}, doc{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "b", se.Stage)

	assert.Equal(t, []string{"a"}, out.Steps)
	assert.Equal(t, "failed:b", out.Log[len(out.Log)-1])
	assert.Equal(t, StageFailed, rs.Status("b"))
	assert.Equal(t, StageSkipped, rs.Status("c"))
	assert.Equal(t, "b", rs.FailedStage)
	assert.Equal(t, boom, events[len(events)-1].Err)
}

func TestEngineRetries(t *testing.T) {
	var calls int32
	e := NewEngine[doc](logger.Nop(), cloneDoc)
	e.Sleep = noSleep
	out, rs, err := e.Run(context.Background(), []Stage[doc]{{
		Name:  "flaky",
		Retry: RetryPolicy{MaxAttempts: 3},
		Run: func(_ context.Context, d doc) (doc, error) {
			d.Steps = append(d.Steps, "try")
			if atomic.AddInt32(&calls, 1) < 3 {
				return d, errors.New("transient")
			}
			return d, nil
		},
	}}, doc{})
	require.NoError(t, err)
	assert.Equal(t, []string{"try"}, out.Steps)
	assert.Equal(t, 3, rs.Stages["flaky"].Attempts)

	calls = 0
	_, rs, err = e.Run(context.Background(), []Stage[doc]{{
		Name: "permanent",
		Retry: RetryPolicy{MaxAttempts: 5, Retryable: func(error) bool {
			return false
		}},
		Run: func(_ context.Context, d doc) (doc, error) {
			atomic.AddInt32(&calls, 1)
			return d, errors.New("bad input")
		},
	}}, doc{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls)
	assert.Equal(t, 1, rs.Stages["permanent"].Attempts)
}

func TestEngineRecoversPanicsAndTimeouts(t *testing.T) {
	e := NewEngine[doc](logger.Nop(), cloneDoc)
	_, _, err := e.Run(context.Background(), []Stage[doc]{{
		Name: "panics",
		Run:  func(context.Context, doc) (doc, error) { panic("kaboom") },
	}}, doc{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")

	_, _, err = e.Run(context.Background(), []Stage[doc]{{
		Name:    "slow",
		Timeout: 10 * time.Millisecond,
		Run: func(ctx context.Context, d doc) (doc, error) {
			<-ctx.Done()
			time.Sleep(5 * time.Millisecond)
			return d, nil
		},
	}}, doc{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEngineObserverPanicIsContained(t *testing.T) {
	e := NewEngine(logger.Nop(), cloneDoc, func(context.Context, doc, Update) doc { panic("observer") })
	out, _, err := e.Run(context.Background(), []Stage[doc]{{Name: "a", Run: appendStep("a")}}, doc{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, out.Steps)
}

func TestEngineProgressNeverMovesBackwards(t *testing.T) {
	rs := &RunState{}
	assert.Equal(t, 50, setProgress(rs, 50))
	assert.Equal(t, 50, setProgress(rs, 20))
	assert.Equal(t, 70, setProgress(rs, 70))
}

func TestValidateStages(t *testing.T) {
	run := appendStep("x")
	cases := [][]Stage[doc]{
		{{Name: "", Run: run}},
		{{Name: "a", Run: run}, {Name: "a", Run: run}},
		{{Name: "a", Pct: 120, Run: run}},
		{{Name: "a", Pct: 50, Run: run}, {Name: "b", Pct: 40, Run: run}},
		{{Name: "a"}},
	}
	for _, c := range cases {
		assert.Error(t, validateStages(c))
	}
	assert.NoError(t, validateStages([]Stage[doc]{{Name: "a", Pct: 10, Run: run}, {Name: "b", Pct: 10, Run: run}}))
}

func TestComputeBackoffBounds(t *testing.T) {
	r := RetryPolicy{MinBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond, JitterFrac: 0.1}
	for attempt := 1; attempt <= 6; attempt++ {
		d := computeBackoff(r, attempt)
		assert.GreaterOrEqual(t, d, 90*time.Millisecond)
		assert.LessOrEqual(t, d, 330*time.Millisecond)
	}
}
