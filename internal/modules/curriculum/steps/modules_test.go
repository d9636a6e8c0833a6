package steps

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/extract"
	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/state"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

func TestDesignModulesPadsAndRenumbers(t *testing.T) {
	llm := newScriptedLLM().on("주차별 모듈", `{"modules": [
		{"week": 7, "title": "JSX", "main_topic": "문법", "learning_goals": ["JSX 이해"], "difficulty": 2},
		{"week": 9, "title": "", "main_topic": "", "learning_goals": [], "difficulty": 42}
	], "overall_goal": "React 마스터"}`)
	out, err := DesignModules(context.Background(), ModuleStructureDeps{Log: logger.Nop(), LLM: extractorFor(llm)},
		ModuleStructureInput{Topic: "React", DurationWeeks: 4})
	require.NoError(t, err)
	require.Len(t, out.Modules, 4)
	assert.False(t, out.Fallback)
	assert.Equal(t, 2, out.Padded)
	assert.Equal(t, "React 마스터", out.OverallGoal)
	for i, m := range out.Modules {
		assert.Equal(t, i+1, m.Week)
	}
	assert.Equal(t, "JSX", out.Modules[0].Title)
	assert.Equal(t, "React 학습 - 2주차", out.Modules[1].Title)
	assert.Equal(t, 4, out.Modules[1].Difficulty)
	assert.Equal(t, "React 학습 - 4주차", out.Modules[3].Title)
}

func TestDesignModulesDropsExtras(t *testing.T) {
	llm := newScriptedLLM().on("주차별 모듈", `{"modules": [{"title":"a"},{"title":"b"},{"title":"c"}]}`)
	out, err := DesignModules(context.Background(), ModuleStructureDeps{Log: logger.Nop(), LLM: extractorFor(llm)},
		ModuleStructureInput{Topic: "Go", DurationWeeks: 2})
	require.NoError(t, err)
	require.Len(t, out.Modules, 2)
	assert.Equal(t, "b", out.Modules[1].Title)
	assert.Equal(t, "Master Go", out.OverallGoal)
}

func TestDesignModulesTemplateOnFailure(t *testing.T) {
	for _, llm := range []*extract.Extractor{
		failingExtractor(),
		extractorFor(newScriptedLLM().on("주차별 모듈", `{"modules": []}`)),
	} {
		out, err := DesignModules(context.Background(), ModuleStructureDeps{Log: logger.Nop(), LLM: llm},
			ModuleStructureInput{Topic: "SQL", DurationWeeks: 10})
		require.NoError(t, err)
		assert.True(t, out.Fallback)
		require.Len(t, out.Modules, 10)
		assert.Equal(t, "Master SQL", out.OverallGoal)
		m := out.Modules[9]
		assert.Equal(t, "SQL 학습 - 10주차", m.Title)
		assert.Equal(t, "SQL 기본 개념 및 실습", m.MainTopic)
		assert.Equal(t, []string{"SQL 기본 이해", "실습을 통한 활용"}, m.LearningGoals)
		assert.Equal(t, 10, m.Difficulty)
		assert.Equal(t, 3, out.Modules[0].Difficulty)
	}

	_, err := DesignModules(context.Background(), ModuleStructureDeps{Log: logger.Nop()}, ModuleStructureInput{Topic: "SQL"})
	assert.Error(t, err)
}

var weekRE = regexp.MustCompile(`주차: (\d+)`)

func TestDetailModulesKeepsOrderUnderJitter(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	delays := make([]time.Duration, 24)
	for i := range delays {
		delays[i] = time.Duration(rng.Intn(15)) * time.Millisecond
	}
	llm := extract.CompleterFunc(func(ctx context.Context, system, user string) (string, error) {
		week, _ := strconv.Atoi(weekRE.FindStringSubmatch(user)[1])
		time.Sleep(delays[week-1])
		if week%5 == 0 {
			return "", errServiceDown
		}
		return fmt.Sprintf(`{"week": %d, "title": "detailed %d", "description": "d", "objectives": ["o"],
			"learning_outcomes": ["l"], "key_concepts": ["k%d"], "estimated_hours": 9}`, 100+week, week, week), nil
	})

	skeleton := TemplateModules("Rust", 24)
	out, err := DetailModules(context.Background(), ContentDetailDeps{Log: logger.Nop(), LLM: extractorFor(llm)},
		ContentDetailInput{Topic: "Rust", WeeklyHours: 10, Skeleton: skeleton})
	require.NoError(t, err)
	require.Len(t, out.Modules, 24)
	assert.Equal(t, 4, out.Fallbacks)
	for i, m := range out.Modules {
		assert.Equal(t, i+1, m.Week)
		if m.Week%5 == 0 {
			assert.True(t, m.Fallback)
			assert.Equal(t, 8, m.EstimatedHours)
			assert.Equal(t, skeleton[i].Title+" 모듈의 상세 학습 내용", m.Description)
			assert.Equal(t, []string{"기본 개념 이해", "실습 능력 향상"}, m.LearningOutcomes)
			assert.Equal(t, []string{skeleton[i].MainTopic}, m.KeyConcepts)
		} else {
			assert.False(t, m.Fallback)
			assert.Equal(t, fmt.Sprintf("detailed %d", m.Week), m.Title)
			assert.Equal(t, 9, m.EstimatedHours)
		}
	}
}

func TestDetailModulesPassesPreviousTitles(t *testing.T) {
	seen := make(chan string, 3)
	llm := extract.CompleterFunc(func(_ context.Context, _ string, user string) (string, error) {
		seen <- user
		return `{"estimated_hours": 5}`, nil
	})
	skeleton := []state.SkeletonModule{{Week: 1, Title: "A"}, {Week: 2, Title: "B"}, {Week: 3, Title: "C"}}
	out, err := DetailModules(context.Background(), ContentDetailDeps{Log: logger.Nop(), LLM: extractorFor(llm)},
		ContentDetailInput{Topic: "x", Skeleton: skeleton})
	require.NoError(t, err)
	close(seen)
	var third string
	for u := range seen {
		if weekRE.FindStringSubmatch(u)[1] == "3" {
			third = u
		}
	}
	assert.Contains(t, third, "이전 모듈: A / B")
	assert.Equal(t, "C", out.Modules[2].Title)
}

func TestDetailModulesEmptySkeleton(t *testing.T) {
	_, err := DetailModules(context.Background(), ContentDetailDeps{Log: logger.Nop()}, ContentDetailInput{})
	assert.Error(t, err)
}
