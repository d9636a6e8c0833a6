package state

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition("", PhaseParameterAnalysis))
	assert.True(t, CanTransition(PhaseParameterAnalysis, PhaseLearningPath))
	assert.True(t, CanTransition(PhaseParameterAnalysis, PhaseValidation))
	assert.False(t, CanTransition(PhaseValidation, PhaseModuleStructure))
	assert.False(t, CanTransition(PhaseValidation, PhaseValidation))

	for _, p := range PhaseOrder[:len(PhaseOrder)-1] {
		assert.True(t, CanTransition(p, PhaseError), p)
	}
	assert.False(t, CanTransition(PhaseCompleted, PhaseError))
	assert.True(t, CanTransition(PhaseError, PhaseCompleted))
	assert.False(t, CanTransition(PhaseError, PhaseIntegration))
	assert.False(t, CanTransition(PhaseIntegration, Phase("bogus")))
}

func TestAdvanceRejectsBackwards(t *testing.T) {
	now := time.Unix(1700000000, 0)
	st := New(Request{Topic: " Go "}, now)
	assert.Equal(t, "Go", st.Topic)

	require.NoError(t, st.Advance(PhaseParameterAnalysis, "a", now))
	require.NoError(t, st.Advance(PhaseModuleStructure, "b", now))
	err := st.Advance(PhaseLearningPath, "c", now)
	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, PhaseModuleStructure, st.CurrentPhase)
	assert.Len(t, st.PhaseHistory, 2)

	st.Fail("boom", now)
	assert.Equal(t, PhaseError, st.CurrentPhase)
	assert.Len(t, st.Errors, 1)
	require.NoError(t, st.Advance(PhaseCompleted, "recovered", now))
	assert.Len(t, st.PhaseHistory, 4)
}

func TestCloneDoesNotAlias(t *testing.T) {
	st := New(Request{Topic: "Go"}, time.Now())
	st.FocusAreas = []string{"a"}
	st.DetailedModules = []DetailedModule{{Week: 1, Objectives: []string{"x"}}}
	st.ModuleResources[WeekKey(1)] = ModuleResources{Videos: []Resource{{Title: "v"}}}
	st.Procedures = &Procedures{Items: []Procedure{{Key: "procedure_1", Skills: []string{"s"}}}}
	st.Record(PhaseParameterAnalysis, "done", time.Now())

	c := st.Clone()
	c.FocusAreas[0] = "b"
	c.DetailedModules[0].Objectives[0] = "y"
	c.DetailedModules[0].EstimatedHours = 9
	c.ModuleResources["week_1"].Videos[0].Title = "changed"
	c.Procedures.Items[0].Skills[0] = "t"
	c.Record(PhaseLearningPath, "more", time.Now())

	assert.Equal(t, "a", st.FocusAreas[0])
	assert.Equal(t, "x", st.DetailedModules[0].Objectives[0])
	assert.Equal(t, 0, st.DetailedModules[0].EstimatedHours)
	assert.Equal(t, "v", st.ModuleResources["week_1"].Videos[0].Title)
	assert.Equal(t, "s", st.Procedures.Items[0].Skills[0])
	assert.Len(t, st.PhaseHistory, 1)
}

func TestPhaseInfoPercentagesIncrease(t *testing.T) {
	last := 0
	for i, p := range PhaseOrder {
		info := p.Info()
		assert.Greater(t, info.Percent, last, p)
		last = info.Percent
		if p != PhaseCompleted {
			assert.Equal(t, i+1, info.Step)
		}
	}
	assert.Equal(t, 100, PhaseCompleted.Info().Percent)
}

func TestParseLevel(t *testing.T) {
	l, ok := ParseLevel(" Advanced ")
	assert.True(t, ok)
	assert.Equal(t, LevelAdvanced, l)
	_, ok = ParseLevel("expert")
	assert.False(t, ok)
}
