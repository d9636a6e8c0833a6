package curriculum_generate

import (
	"context"
	"fmt"

	"github.com/yungbote/learnmate-backend/internal/jobs/orchestrator"
	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/state"
	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/steps"
)

func (p *Pipeline) stage(phase state.Phase, run func(ctx context.Context, st state.State) (state.State, error)) orchestrator.Stage[state.State] {
	info := phase.Info()
	return orchestrator.Stage[state.State]{
		Name:     string(phase),
		Pct:      info.Percent,
		StartMsg: info.Name + " 중...",
		DoneMsg:  info.Name + " 완료",
		Timeout:  p.cfg.StageTimeout,
		Run:      run,
	}
}

func (p *Pipeline) stages() []orchestrator.Stage[state.State] {
	return []orchestrator.Stage[state.State]{
		p.stage(state.PhaseParameterAnalysis, p.analyzeParameters),
		p.stage(state.PhaseLearningPath, p.planLearningPath),
		p.stage(state.PhaseModuleStructure, p.designModules),
		p.stage(state.PhaseContentDetail, p.detailModules),
		p.stage(state.PhaseResourceCollection, p.collectResources),
		p.stage(state.PhaseValidation, p.validateHours),
		p.stage(state.PhaseLectureContent, p.generateLectureNotes),
		p.stage(state.PhaseIntegration, p.integrate),
	}
}

func (p *Pipeline) analyzeParameters(ctx context.Context, st state.State) (state.State, error) {
	out, err := steps.ParameterAnalyze(ctx, steps.ParameterAnalyzeDeps{
		Log:      p.log,
		LLM:      p.llm,
		Policy:   p.policy,
		Attempts: p.cfg.Attempts,
		Backoff:  p.cfg.retryBackoff(),
	}, steps.ParameterAnalyzeInput{
		Topic:       st.Topic,
		Constraints: st.Constraints,
		Goal:        st.Goal,
		UserMessage: st.UserMessage,
	})
	if err != nil {
		return st, err
	}
	st.Level = out.Level
	st.DurationWeeks = out.DurationWeeks
	st.WeeklyHours = out.WeeklyHours
	st.FocusAreas = out.FocusAreas
	p.log.Debug("parameters analyzed",
		"session_id", st.SessionID,
		"source", out.Source,
		"weeks", out.DurationWeeks,
		"weekly_hours", out.WeeklyHours,
		"duration_overridden", out.DurationOverridden,
	)
	return st, nil
}

// planLearningPath runs the free-text plan and the graph-grounded procedures
// side by side. Procedures are optional: the path alone is enough to continue.
func (p *Pipeline) planLearningPath(ctx context.Context, st state.State) (state.State, error) {
	out, rs, err := orchestrator.Fanout(ctx, state.State.Clone, st, []orchestrator.Branch[state.State]{
		{
			Name: "path",
			Run: func(ctx context.Context, s state.State) (state.State, error) {
				res, err := steps.PlanPath(ctx, steps.PathPlanDeps{Log: p.log, LLM: p.llm}, steps.PathPlanInput{
					Topic:         s.Topic,
					Goal:          s.Goal,
					Level:         s.Level,
					DurationWeeks: s.DurationWeeks,
					WeeklyHours:   s.WeeklyHours,
					FocusAreas:    s.FocusAreas,
				})
				s.PathAnalysis = res.Analysis
				return s, err
			},
			Merge: func(dst *state.State, src state.State) { dst.PathAnalysis = src.PathAnalysis },
		},
		{
			Name:     "procedures",
			Optional: true,
			Run: func(ctx context.Context, s state.State) (state.State, error) {
				res, err := steps.BuildProcedures(ctx, steps.ProceduresDeps{
					Log:         p.log,
					LLM:         p.llm,
					Graph:       p.graph,
					Content:     p.content,
					Attempts:    p.cfg.Attempts,
					Backoff:     p.cfg.retryBackoff(),
					CallTimeout: p.cfg.CallTimeout,
				}, steps.ProceduresInput{
					Topic:      s.Topic,
					Goal:       s.Goal,
					Level:      s.Level,
					FocusAreas: s.FocusAreas,
				})
				s.Procedures = res.Procedures
				return s, err
			},
			Merge: func(dst *state.State, src state.State) { dst.Procedures = src.Procedures },
		},
	})
	if err != nil {
		return st, err
	}
	if rs.Status("procedures") != orchestrator.StageSucceeded {
		p.log.Warn("procedures unavailable", "session_id", st.SessionID, "error", rs.Stages["procedures"].LastError)
	}
	return out, nil
}

func (p *Pipeline) designModules(ctx context.Context, st state.State) (state.State, error) {
	out, err := steps.DesignModules(ctx, steps.ModuleStructureDeps{Log: p.log, LLM: p.llm}, steps.ModuleStructureInput{
		Topic:         st.Topic,
		Level:         st.Level,
		DurationWeeks: st.DurationWeeks,
		WeeklyHours:   st.WeeklyHours,
		FocusAreas:    st.FocusAreas,
		PathAnalysis:  st.PathAnalysis,
	})
	if err != nil {
		return st, err
	}
	st.ModuleSkeleton = out.Modules
	st.OverallGoal = out.OverallGoal
	return st, nil
}

func (p *Pipeline) detailModules(ctx context.Context, st state.State) (state.State, error) {
	out, err := steps.DetailModules(ctx, steps.ContentDetailDeps{Log: p.log, LLM: p.llm}, steps.ContentDetailInput{
		Topic:       st.Topic,
		Level:       st.Level,
		WeeklyHours: st.WeeklyHours,
		Skeleton:    st.ModuleSkeleton,
	})
	if err != nil {
		return st, err
	}
	st.DetailedModules = out.Modules
	return st, nil
}

func (p *Pipeline) collectResources(ctx context.Context, st state.State) (state.State, error) {
	out, err := steps.CollectResources(ctx, steps.ResourceCollectDeps{
		Log:            p.log,
		Vector:         p.vector,
		Web:            p.web,
		Policy:         p.policy,
		CallTimeout:    p.cfg.CallTimeout,
		KMOOCNamespace: p.cfg.KMOOCNamespace,
		DocsNamespace:  p.cfg.DocsNamespace,
	}, steps.ResourceCollectInput{Topic: st.Topic, Modules: st.DetailedModules})
	if err != nil {
		return st, err
	}
	st.BasicResources = out.Basic
	st.ModuleResources = out.ByWeek
	return st, nil
}

func (p *Pipeline) validateHours(_ context.Context, st state.State) (state.State, error) {
	if st.WeeklyHours < 1 || st.DurationWeeks < 1 {
		return st, fmt.Errorf("validation: invalid budget %dh x %d weeks", st.WeeklyHours, st.DurationWeeks)
	}
	mods, rep := steps.ValidateHours(st.DetailedModules, st.WeeklyHours, st.DurationWeeks, p.policy.Validator)
	st.DetailedModules = mods
	if rep.Action != "none" {
		p.log.Info("module hours adjusted",
			"session_id", st.SessionID,
			"action", rep.Action,
			"budget", rep.Budget,
			"before", rep.Before,
			"after", rep.After,
		)
	}
	return st, nil
}

func (p *Pipeline) generateLectureNotes(ctx context.Context, st state.State) (state.State, error) {
	lec := p.policy.Lecture
	out, err := steps.GenerateLectureNotes(ctx, steps.LectureNotesDeps{
		Log:             p.log,
		LLM:             p.llm,
		Concurrency:     lec.Concurrency,
		MinNoteRunes:    lec.MinNoteRunes,
		SnippetRunes:    lec.SnippetRunes,
		ConceptsPerNote: lec.ConceptsPerNote,
	}, steps.LectureNotesInput{
		Topic:      st.Topic,
		Level:      st.Level,
		Modules:    st.DetailedModules,
		Procedures: st.Procedures,
	})
	if err != nil {
		return st, err
	}
	st.DetailedModules = out.Modules
	st.LectureNotesComplete = out.Complete
	return st, nil
}

func (p *Pipeline) integrate(_ context.Context, st state.State) (state.State, error) {
	doc := steps.Integrate(st, p.now())
	st.FinalCurriculum = &doc
	return st, nil
}
