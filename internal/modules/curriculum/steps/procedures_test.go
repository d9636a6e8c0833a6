package steps

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/state"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

var reactSkills = []string{"JSX", "Components", "Props", "State", "Hooks", "Context", "Testing Library", "Jest", "Redux"}

const validProcedures = `{
 "procedure_1": {"title": "기초", "skills": ["JSX", "Components", "Props"]},
 "procedure_2": {"title": "상태", "skills": ["State", "Hooks", "Context"]},
 "procedure_10": {"title": "테스트", "skills": ["Testing Library", "Jest", "Redux"]}
}`

func TestBuildProceduresRejectsUnknownSkillThenAccepts(t *testing.T) {
	unknown := `{
 "procedure_1": {"title": "기초", "skills": ["JSX", "Components", "Vue"]},
 "procedure_2": {"title": "상태", "skills": ["State", "Hooks", "Context"]},
 "procedure_3": {"title": "테스트", "skills": ["Testing Library", "Jest", "Redux"]}
}`
	llm := newScriptedLLM().on("학습 절차", unknown, validProcedures)
	g := &fakeGraph{
		skills: reactSkills,
		docs: map[string][]state.Document{
			"Hooks": {{Title: "Hooks Guide", Authors: []string{"Dan"}}},
			"Jest":  {{Title: "Jest Handbook"}},
		},
	}
	out, err := BuildProcedures(context.Background(), ProceduresDeps{
		Log: logger.Nop(), LLM: extractorFor(llm), Graph: g,
		Content: fakeContent{"Hooks Guide": "useState and useEffect explained"},
	}, ProceduresInput{Topic: "React"})
	require.NoError(t, err)
	assert.Equal(t, 2, llm.count("학습 절차"))

	p := out.Procedures
	require.NotNil(t, p)
	assert.False(t, p.Fallback)
	require.Len(t, p.Items, 3)
	assert.Equal(t, []string{"procedure_1", "procedure_2", "procedure_10"},
		[]string{p.Items[0].Key, p.Items[1].Key, p.Items[2].Key})

	hooks := p.Items[1].Documents["Hooks"]
	require.Len(t, hooks, 1)
	assert.Equal(t, "useState and useEffect explained", hooks[0].Content)
	assert.Equal(t, []string{"Dan"}, hooks[0].Authors)
	assert.Len(t, p.Items[2].Documents["Jest"], 1)
}

func TestBuildProceduresPausesBetweenAttempts(t *testing.T) {
	unknown := `{
 "procedure_1": {"title": "기초", "skills": ["JSX", "Components", "Vue"]},
 "procedure_2": {"title": "상태", "skills": ["State", "Hooks", "Context"]},
 "procedure_3": {"title": "테스트", "skills": ["Testing Library", "Jest", "Redux"]}
}`
	llm := newScriptedLLM().on("학습 절차", unknown)
	out, err := BuildProcedures(context.Background(), ProceduresDeps{
		Log: logger.Nop(), LLM: extractorFor(llm), Graph: &fakeGraph{skills: reactSkills},
		Attempts: 3, Backoff: 30 * time.Millisecond,
	}, ProceduresInput{Topic: "React"})
	require.NoError(t, err)
	assert.Equal(t, 3, llm.count("학습 절차"))
	assertFallbackProcedures(t, out.Procedures, "React")

	gaps := llm.gaps()
	require.Len(t, gaps, 2)
	for _, g := range gaps {
		assert.GreaterOrEqual(t, g, 30*time.Millisecond)
	}
}

func TestBuildProceduresExhaustedFallsBack(t *testing.T) {
	llm := newScriptedLLM().on("학습 절차", `{"steps": {"title": "x", "skills": ["JSX","Props","State"]}}`)
	out, err := BuildProcedures(context.Background(), ProceduresDeps{
		Log: logger.Nop(), LLM: extractorFor(llm), Graph: &fakeGraph{skills: reactSkills},
	}, ProceduresInput{Topic: "React"})
	require.NoError(t, err)
	assert.Equal(t, 3, llm.count("학습 절차"))
	assertFallbackProcedures(t, out.Procedures, "React")
}

func TestBuildProceduresGraphUnavailable(t *testing.T) {
	out, err := BuildProcedures(context.Background(), ProceduresDeps{
		Log: logger.Nop(), LLM: failingExtractor(), Graph: &fakeGraph{skillsErr: errServiceDown},
	}, ProceduresInput{Topic: "Go"})
	require.NoError(t, err)
	assertFallbackProcedures(t, out.Procedures, "Go")

	out, err = BuildProcedures(context.Background(), ProceduresDeps{Log: logger.Nop()}, ProceduresInput{})
	require.NoError(t, err)
	assertFallbackProcedures(t, out.Procedures, "Programming")
}

func TestBuildProceduresDocumentFailureKeepsProcedures(t *testing.T) {
	llm := newScriptedLLM().on("학습 절차", validProcedures)
	out, err := BuildProcedures(context.Background(), ProceduresDeps{
		Log: logger.Nop(), LLM: extractorFor(llm),
		Graph: &fakeGraph{skills: reactSkills, docsErr: errServiceDown},
	}, ProceduresInput{Topic: "React"})
	require.NoError(t, err)
	assert.False(t, out.Procedures.Fallback)
	assert.Len(t, out.Procedures.Items, 3)
}

func TestParseProceduresShape(t *testing.T) {
	known := map[string]bool{"a": true, "b": true, "c": true, "d": true, "e": true, "f": true}
	ok := `"procedure_2": {"title": "t", "skills": ["a","b","c"]}, "procedure_3": {"title": "t", "skills": ["a","b","c"]}`
	bodies := []string{
		`{"procedure_1": {"title": "t", "skills": ["a","b","c"]}}`,
		`{"procedure_1": {"title": "t", "skills": ["a","b","c","d","e","f"]}, ` + ok + `}`,
		`{"procedure_1": {"skills": ["a","b","c"]}, ` + ok + `}`,
		`{"step_1": {"title": "t", "skills": ["a","b","c"]}, ` + ok + `}`,
		`{"procedure_1": {"title": "t", "skills": "a,b,c"}, ` + ok + `}`,
	}
	for _, body := range bodies {
		var raw map[string]json.RawMessage
		require.NoError(t, json.Unmarshal([]byte(body), &raw), body)
		_, err := parseProcedures(raw, known)
		assert.Error(t, err, body)
	}

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(`{"procedure_1": {"title": "t", "skills": ["a","b","c"]}, `+ok+`}`), &raw))
	got, err := parseProcedures(raw, known)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func assertFallbackProcedures(t *testing.T, p *state.Procedures, topic string) {
	t.Helper()
	require.NotNil(t, p)
	assert.True(t, p.Fallback)
	require.Len(t, p.Items, 2)
	assert.Equal(t, topic+" 기초", p.Items[0].Title)
	assert.Equal(t, topic+" 실습", p.Items[1].Title)
	for _, item := range p.Items {
		assert.NotEmpty(t, item.Skills)
		for _, s := range item.Skills {
			require.NotEmpty(t, item.Documents[s])
			assert.NotEmpty(t, item.Documents[s][0].Authors)
		}
	}
}
