package steps

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/extract"
	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/policy"
	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/state"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

type ParameterAnalyzeDeps struct {
	Log      *logger.Logger
	LLM      *extract.Extractor
	Policy   *policy.Policy
	Attempts int
	Backoff  time.Duration
}

type ParameterAnalyzeInput struct {
	Topic       string
	Constraints string
	Goal        string
	UserMessage string
}

type ParameterAnalyzeOutput struct {
	Level              state.Level `json:"level"`
	DurationWeeks      int         `json:"duration_weeks"`
	WeeklyHours        int         `json:"weekly_hours"`
	FocusAreas         []string    `json:"focus_areas"`
	Source             string      `json:"source"` // "llm" | "rules"
	DurationOverridden bool        `json:"duration_overridden"`
}

type parameterReply struct {
	Level         string   `json:"level"`
	DurationWeeks int      `json:"duration_weeks"`
	FocusAreas    []string `json:"focus_areas"`
	WeeklyHours   int      `json:"weekly_hours"`
}

const parameterSystemPrompt = `너는 학습 설계 전문가다. 학습자의 제약 조건과 목표를 읽고 학습 파라미터를 JSON 객체 하나로만 답한다.
형식: {"level": "beginner|intermediate|advanced", "duration_weeks": 1-24, "focus_areas": ["..."], "weekly_hours": 1-40}
- level: 경험이 없으면 beginner, 기본 지식이 있으면 intermediate, 전문적인 깊이를 원하면 advanced
- duration_weeks: 명시된 기간을 주 단위로 환산 (1개월 = 4주)
- weekly_hours: 주당 학습 가능 시간
- focus_areas: 집중할 세부 분야 최대 3개`

// ParameterAnalyze derives level, duration, weekly hours and focus areas. The
// completion service is tried first; after the attempts run out the keyword
// rules in the policy take over. An explicit duration in the user message
// always wins.
func ParameterAnalyze(ctx context.Context, deps ParameterAnalyzeDeps, in ParameterAnalyzeInput) (ParameterAnalyzeOutput, error) {
	out := ParameterAnalyzeOutput{}
	if deps.Log == nil || deps.Policy == nil {
		return out, fmt.Errorf("parameter_analyze: missing deps")
	}
	pol := deps.Policy

	user := fmt.Sprintf("주제: %s\n제약 조건: %s\n목표: %s", in.Topic, in.Constraints, in.Goal)
	var reply parameterReply
	err := retry(ctx, deps.Attempts, deps.Backoff, func(attempt int) error {
		reply = parameterReply{}
		if err := deps.LLM.ExtractObject(ctx, parameterSystemPrompt, user, &reply); err != nil {
			deps.Log.Debug("parameter extraction attempt failed", "attempt", attempt, "error", err)
			return err
		}
		return validateParameters(pol, reply)
	})
	if ctx.Err() != nil {
		return out, ctx.Err()
	}

	if err == nil {
		level, _ := state.ParseLevel(reply.Level)
		out = ParameterAnalyzeOutput{
			Level:         level,
			DurationWeeks: reply.DurationWeeks,
			WeeklyHours:   reply.WeeklyHours,
			FocusAreas:    firstN(cleanStrings(reply.FocusAreas), pol.Focus.Max),
			Source:        "llm",
		}
		if len(out.FocusAreas) == 0 {
			out.FocusAreas = append([]string(nil), pol.Focus.Defaults...)
		}
	} else {
		deps.Log.Warn("parameter extraction exhausted; using keyword rules", "error", err)
		recordFallback("parameter_analysis")
		text := in.Constraints + " " + in.Goal
		out = ParameterAnalyzeOutput{
			Level:         state.Level(pol.DetectLevel(text)),
			DurationWeeks: pol.ExtractDuration(text),
			WeeklyHours:   pol.ExtractHours(text),
			FocusAreas:    pol.ExtractFocus(text),
			Source:        "rules",
		}
	}

	if weeks, ok := pol.OverrideDuration(in.UserMessage); ok {
		if weeks != out.DurationWeeks {
			deps.Log.Info("duration overridden by user message", "from", out.DurationWeeks, "to", weeks)
		}
		out.DurationWeeks = weeks
		out.DurationOverridden = true
	}
	return out, nil
}

func validateParameters(pol *policy.Policy, r parameterReply) error {
	var problems []string
	if _, ok := state.ParseLevel(r.Level); !ok {
		problems = append(problems, fmt.Sprintf("level %q", r.Level))
	}
	if !pol.Duration.Contains(r.DurationWeeks) {
		problems = append(problems, fmt.Sprintf("duration_weeks %d", r.DurationWeeks))
	}
	if !pol.Hours.Contains(r.WeeklyHours) {
		problems = append(problems, fmt.Sprintf("weekly_hours %d", r.WeeklyHours))
	}
	if r.FocusAreas == nil {
		problems = append(problems, "focus_areas missing")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid parameters: %s", strings.Join(problems, ", "))
	}
	return nil
}
