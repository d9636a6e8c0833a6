package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/extract"
	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/state"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

const maxDifficulty = 10

type ModuleStructureDeps struct {
	Log *logger.Logger
	LLM *extract.Extractor
}

type ModuleStructureInput struct {
	Topic         string
	Level         state.Level
	DurationWeeks int
	WeeklyHours   int
	FocusAreas    []string
	PathAnalysis  string
}

type ModuleStructureOutput struct {
	Modules     []state.SkeletonModule `json:"modules"`
	OverallGoal string                 `json:"overall_goal"`
	Fallback    bool                   `json:"fallback"`
	Padded      int                    `json:"padded"`
}

type moduleStructureReply struct {
	Modules []struct {
		Week          int      `json:"week"`
		Title         string   `json:"title"`
		MainTopic     string   `json:"main_topic"`
		LearningGoals []string `json:"learning_goals"`
		Difficulty    int      `json:"difficulty"`
	} `json:"modules"`
	OverallGoal string `json:"overall_goal"`
}

const moduleStructureSystemPrompt = `너는 커리큘럼 설계자다. 학습 경로를 주차별 모듈로 나누어 JSON 객체 하나로 답한다.
형식: {"modules": [{"week": 1, "title": "...", "main_topic": "...", "learning_goals": ["..."], "difficulty": 1-10}], "overall_goal": "..."}
- modules는 요청한 주차 수와 정확히 같아야 한다`

// DesignModules returns exactly DurationWeeks skeleton modules numbered 1..N.
func DesignModules(ctx context.Context, deps ModuleStructureDeps, in ModuleStructureInput) (ModuleStructureOutput, error) {
	if deps.Log == nil {
		return ModuleStructureOutput{}, fmt.Errorf("module_structure: missing deps")
	}
	weeks := in.DurationWeeks
	if weeks < 1 {
		return ModuleStructureOutput{}, fmt.Errorf("module_structure: duration_weeks must be positive, got %d", weeks)
	}
	topic := orDefault(in.Topic, defaultTopic)

	user := fmt.Sprintf("주제: %s\n수준: %s\n기간: %d주\n주당 학습 시간: %d시간\n중점 영역: %s\n\n학습 경로:\n%s",
		topic, in.Level, weeks, in.WeeklyHours, strings.Join(in.FocusAreas, ", "), in.PathAnalysis)

	var reply moduleStructureReply
	err := deps.LLM.ExtractObject(ctx, moduleStructureSystemPrompt, user, &reply)
	if err == nil && len(reply.Modules) == 0 {
		err = fmt.Errorf("empty module list")
	}
	if err != nil {
		if ctx.Err() != nil {
			return ModuleStructureOutput{}, ctx.Err()
		}
		deps.Log.Warn("module structure failed; using template", "error", err)
		recordFallback("module_structure")
		return ModuleStructureOutput{
			Modules:     TemplateModules(topic, weeks),
			OverallGoal: defaultOverallGoal(topic),
			Fallback:    true,
			Padded:      weeks,
		}, nil
	}

	out := ModuleStructureOutput{OverallGoal: orDefault(reply.OverallGoal, defaultOverallGoal(topic))}
	for i := 0; i < weeks; i++ {
		week := i + 1
		tmpl := templateModule(topic, week)
		if i >= len(reply.Modules) {
			out.Modules = append(out.Modules, tmpl)
			out.Padded++
			continue
		}
		m := reply.Modules[i]
		goals := cleanStrings(m.LearningGoals)
		if len(goals) == 0 {
			goals = tmpl.LearningGoals
		}
		difficulty := m.Difficulty
		if difficulty < 1 || difficulty > maxDifficulty {
			difficulty = tmpl.Difficulty
		}
		out.Modules = append(out.Modules, state.SkeletonModule{
			Week:          week,
			Title:         orDefault(m.Title, tmpl.Title),
			MainTopic:     orDefault(m.MainTopic, tmpl.MainTopic),
			LearningGoals: goals,
			Difficulty:    difficulty,
		})
	}
	if len(reply.Modules) > weeks {
		deps.Log.Debug("dropped extra modules", "returned", len(reply.Modules), "weeks", weeks)
	}
	return out, nil
}

// TemplateModules is the deterministic per-week skeleton.
func TemplateModules(topic string, weeks int) []state.SkeletonModule {
	out := make([]state.SkeletonModule, 0, weeks)
	for w := 1; w <= weeks; w++ {
		out = append(out, templateModule(topic, w))
	}
	return out
}

func templateModule(topic string, week int) state.SkeletonModule {
	return state.SkeletonModule{
		Week:          week,
		Title:         fmt.Sprintf("%s 학습 - %d주차", topic, week),
		MainTopic:     topic + " 기본 개념 및 실습",
		LearningGoals: []string{topic + " 기본 이해", "실습을 통한 활용"},
		Difficulty:    min(week+2, maxDifficulty),
	}
}

func defaultOverallGoal(topic string) string {
	return "Master " + topic
}
