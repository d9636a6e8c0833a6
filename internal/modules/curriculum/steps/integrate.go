package steps

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/state"
)

const (
	defaultTopic      = "Programming"
	maxBasicResources = 5
)

// Integrate assembles the final document from whatever the stages produced.
// Missing pieces become zero values; it never fails.
func Integrate(st state.State, now time.Time) state.Curriculum {
	mods := make([]state.DetailedModule, len(st.DetailedModules))
	for i, m := range st.DetailedModules {
		mods[i] = m.Clone()
	}
	sort.SliceStable(mods, func(i, j int) bool { return mods[i].Week < mods[j].Week })

	out := state.Curriculum{
		Title:                 fmt.Sprintf("%s Learning Path", orDefault(st.Topic, defaultTopic)),
		Level:                 st.Level,
		DurationWeeks:         st.DurationWeeks,
		WeeklyHours:           st.WeeklyHours,
		FocusAreas:            append([]string{}, st.FocusAreas...),
		Modules:               make([]state.CurriculumModule, 0, len(mods)),
		OverallGoal:           st.OverallGoal,
		BasicResources:        append([]state.Resource{}, firstNResources(st.BasicResources, maxBasicResources)...),
		SessionID:             st.SessionID,
		OriginalConstraints:   st.Constraints,
		OriginalGoal:          st.Goal,
		GeneratedAt:           now,
		ProcessingTimeSeconds: elapsedSeconds(st.StartedAt, now),
		LectureNotesComplete:  st.LectureNotesComplete,
		Procedures:            st.Procedures.Clone(),
	}
	if out.Level == "" {
		out.Level = state.LevelBeginner
	}
	for _, m := range mods {
		res, ok := st.ModuleResources[state.WeekKey(m.Week)]
		if !ok {
			res = emptyBucket()
		}
		out.Modules = append(out.Modules, state.CurriculumModule{DetailedModule: m, Resources: res.Clone()})
		out.TotalEstimatedHours += m.EstimatedHours
	}
	return out
}

// FallbackCurriculum is the deterministic document used when the pipeline
// cannot finish. It depends only on the request fields and derived
// parameters already on the state, with defaults for anything missing.
func FallbackCurriculum(st state.State, reason string, now time.Time) state.Curriculum {
	topic := orDefault(st.Topic, defaultTopic)
	weeks := st.DurationWeeks
	if weeks < 1 {
		weeks = 4
	}
	hours := st.WeeklyHours
	if hours < 1 {
		hours = 10
	}
	level := st.Level
	if level == "" {
		level = state.LevelBeginner
	}
	focus := append([]string{}, st.FocusAreas...)
	if len(focus) == 0 {
		focus = []string{"기초 개념", "실습"}
	}

	out := state.Curriculum{
		Title:                 fmt.Sprintf("%s Basic Learning Path", topic),
		Level:                 level,
		DurationWeeks:         weeks,
		WeeklyHours:           hours,
		FocusAreas:            focus,
		Modules:               make([]state.CurriculumModule, 0, weeks),
		OverallGoal:           defaultOverallGoal(topic),
		BasicResources:        []state.Resource{},
		SessionID:             st.SessionID,
		OriginalConstraints:   st.Constraints,
		OriginalGoal:          st.Goal,
		GeneratedAt:           now,
		ProcessingTimeSeconds: elapsedSeconds(st.StartedAt, now),
		Fallback:              true,
		Error:                 strings.TrimSpace(reason),
	}
	for w := 1; w <= weeks; w++ {
		sk := templateModule(topic, w)
		d := FallbackDetail(sk)
		d.EstimatedHours = hours
		out.Modules = append(out.Modules, state.CurriculumModule{DetailedModule: d, Resources: emptyBucket()})
		out.TotalEstimatedHours += hours
	}
	return out
}

func firstNResources(in []state.Resource, n int) []state.Resource {
	if len(in) > n {
		return in[:n]
	}
	return in
}

func elapsedSeconds(start, now time.Time) float64 {
	if start.IsZero() || now.Before(start) {
		return 0
	}
	return float64(now.Sub(start).Milliseconds()) / 1000
}
