package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/extract"
	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/state"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

type PathPlanDeps struct {
	Log *logger.Logger
	LLM *extract.Extractor
}

type PathPlanInput struct {
	Topic         string
	Goal          string
	Level         state.Level
	DurationWeeks int
	WeeklyHours   int
	FocusAreas    []string
}

type PathPlanOutput struct {
	Analysis string `json:"analysis"`
	Fallback bool   `json:"fallback"`
}

const pathPlanSystemPrompt = `너는 커리큘럼 설계자다. 주어진 주제와 학습자 조건으로 주차 흐름이 드러나는 학습 경로를 서술한다.
단계별 핵심 개념, 선수 지식, 실습 방향을 포함하고 마크다운 없이 평문으로 답한다.`

// PlanPath produces the free-text learning path. A completion failure degrades
// to a deterministic outline.
func PlanPath(ctx context.Context, deps PathPlanDeps, in PathPlanInput) (PathPlanOutput, error) {
	if deps.Log == nil {
		return PathPlanOutput{}, fmt.Errorf("path_plan: missing deps")
	}
	user := fmt.Sprintf("주제: %s\n목표: %s\n수준: %s\n기간: %d주\n주당 학습 시간: %d시간\n중점 영역: %s",
		in.Topic, in.Goal, in.Level, in.DurationWeeks, in.WeeklyHours, strings.Join(in.FocusAreas, ", "))

	text, err := deps.LLM.Extract(ctx, pathPlanSystemPrompt, user)
	if err == nil && strings.TrimSpace(text) != "" {
		return PathPlanOutput{Analysis: strings.TrimSpace(text)}, nil
	}
	if ctx.Err() != nil {
		return PathPlanOutput{}, ctx.Err()
	}
	deps.Log.Warn("path analysis failed; using outline", "error", err)
	recordFallback("path_analysis")
	return PathPlanOutput{Analysis: pathOutline(in), Fallback: true}, nil
}

func pathOutline(in PathPlanInput) string {
	weeks := in.DurationWeeks
	if weeks < 1 {
		weeks = 1
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s 학습 경로 (%s, %d주, 주당 %d시간)\n", in.Topic, in.Level, weeks, in.WeeklyHours)
	phases := []string{"기초 개념 정리", "핵심 기능 실습", "응용과 프로젝트 적용"}
	for i, p := range phases {
		fmt.Fprintf(&b, "%d. %s %s\n", i+1, in.Topic, p)
	}
	if len(in.FocusAreas) > 0 {
		fmt.Fprintf(&b, "중점 영역: %s", strings.Join(in.FocusAreas, ", "))
	}
	return strings.TrimSpace(b.String())
}
