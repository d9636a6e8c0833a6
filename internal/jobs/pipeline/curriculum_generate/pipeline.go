package curriculum_generate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/learnmate-backend/internal/jobs/orchestrator"
	"github.com/yungbote/learnmate-backend/internal/jobs/progress"
	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/state"
	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/steps"
	"github.com/yungbote/learnmate-backend/internal/observability"
)

// Generate runs every stage and always returns a document. Any stage-fatal
// error moves the run to ERROR, and the fallback document is returned with
// fallback set.
func (p *Pipeline) Generate(ctx context.Context, req state.Request) state.Curriculum {
	final := p.Run(ctx, req)
	if final.FinalCurriculum == nil {
		doc := steps.FallbackCurriculum(state.State{SessionID: final.SessionID}, "no document produced", p.now())
		return doc
	}
	return *final.FinalCurriculum
}

// Run is Generate returning the whole final state, including phase history
// and recorded errors.
func (p *Pipeline) Run(ctx context.Context, req state.Request) state.State {
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	st := state.New(req, p.now())
	log := p.log.With("session_id", st.SessionID)
	log.Info("curriculum generation started", "topic", st.Topic)

	engine := orchestrator.NewEngine(p.log, state.State.Clone, p.observe)
	engine.SpanPrefix = "curriculum."

	final, rs, err := engine.Run(ctx, p.stages(), st)
	if err != nil {
		log.Warn("curriculum generation failed; using fallback", "stage", rs.FailedStage, "error", err)
		final = p.fallback(ctx, final, err)
		observability.Current().IncGeneration("fallback")
		return final
	}

	now := p.now()
	if err := final.Advance(state.PhaseCompleted, state.PhaseCompleted.Info().Name, now); err != nil {
		log.Warn("completion transition rejected", "error", err)
	}
	p.finish(&final, now)
	p.writeProgress(ctx, final.SessionID, state.PhaseCompleted, "커리큘럼 생성이 완료되었습니다", now)
	observability.Current().IncGeneration("ok")
	log.Info("curriculum generation completed",
		"weeks", final.DurationWeeks,
		"modules", len(final.DetailedModules),
		"seconds", final.ProcessingTimeSeconds,
	)
	return final
}

// fallback builds the fallback document from whatever parameters the failed run
// had committed. A panic while building it falls back to defaults only.
func (p *Pipeline) fallback(ctx context.Context, st state.State, cause error) (out state.State) {
	now := p.now()
	reason := cause.Error()
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("fallback synthesis panicked", "panic", fmt.Sprint(r))
			bare := state.State{SessionID: st.SessionID, StartedAt: st.StartedAt}
			doc := steps.FallbackCurriculum(bare, reason, now)
			out = st
			out.FinalCurriculum = &doc
		}
	}()

	doc := steps.FallbackCurriculum(st, reason, now)
	st.FinalCurriculum = &doc
	if err := st.Advance(state.PhaseCompleted, "fallback curriculum", now); err != nil {
		p.log.Warn("completion transition rejected", "error", err)
	}
	p.finish(&st, now)
	p.writeProgress(ctx, st.SessionID, state.PhaseCompleted, "기본 커리큘럼으로 대체되었습니다", now)
	return st
}

func (p *Pipeline) finish(st *state.State, now time.Time) {
	st.CompletedAt = now
	if !st.StartedAt.IsZero() && now.After(st.StartedAt) {
		st.ProcessingTimeSeconds = float64(now.Sub(st.StartedAt).Milliseconds()) / 1000
	}
	if st.FinalCurriculum != nil {
		st.FinalCurriculum.ProcessingTimeSeconds = st.ProcessingTimeSeconds
	}
}

// observe owns phase bookkeeping and progress writes at every stage boundary.
func (p *Pipeline) observe(ctx context.Context, st state.State, u orchestrator.Update) state.State {
	phase := state.Phase(u.Stage)
	now := p.now()
	switch u.Event {
	case orchestrator.EventStart:
		if err := st.Enter(phase); err != nil {
			p.log.Warn("phase transition rejected", "session_id", st.SessionID, "error", err)
		}
		p.writeProgress(ctx, st.SessionID, phase, u.Message, now)
	case orchestrator.EventDone:
		st.Record(phase, u.Message, now)
		p.writeProgress(ctx, st.SessionID, phase, u.Message, now)
	case orchestrator.EventFailed:
		msg := fmt.Sprintf("%s: %s", phase, u.Message)
		st.Fail(msg, now)
		p.writeProgress(ctx, st.SessionID, state.PhaseError, msg, now)
	}
	return st
}

func (p *Pipeline) writeProgress(ctx context.Context, sessionID string, phase state.Phase, msg string, now time.Time) {
	if p.progress == nil {
		return
	}
	// Snapshots are written even after ctx is cancelled.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := p.progress.Save(wctx, progress.ForPhase(sessionID, phase, msg, now)); err != nil {
		p.log.Warn("progress write failed", "session_id", sessionID, "phase", string(phase), "error", err)
	}
}
