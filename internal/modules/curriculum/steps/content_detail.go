package steps

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/extract"
	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/state"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

const (
	fallbackModuleHours = 8
	previousTitleCount  = 2
)

type ContentDetailDeps struct {
	Log *logger.Logger
	LLM *extract.Extractor
}

type ContentDetailInput struct {
	Topic       string
	Level       state.Level
	WeeklyHours int
	Skeleton    []state.SkeletonModule
}

type ContentDetailOutput struct {
	Modules   []state.DetailedModule `json:"modules"`
	Fallbacks int                    `json:"fallbacks"`
}

type contentDetailReply struct {
	Week             int      `json:"week"`
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Objectives       []string `json:"objectives"`
	LearningOutcomes []string `json:"learning_outcomes"`
	KeyConcepts      []string `json:"key_concepts"`
	EstimatedHours   int      `json:"estimated_hours"`
}

const contentDetailSystemPrompt = `너는 강의 설계자다. 한 주차 모듈의 상세 내용을 JSON 객체 하나로 답한다.
형식: {"week": 1, "title": "...", "description": "...", "objectives": ["..."], "learning_outcomes": ["..."], "key_concepts": ["..."], "estimated_hours": 1-40}`

// DetailModules expands every skeleton module concurrently. A module whose
// call fails gets a detail derived from its skeleton; the batch never fails.
// Output order matches the skeleton.
func DetailModules(ctx context.Context, deps ContentDetailDeps, in ContentDetailInput) (ContentDetailOutput, error) {
	if deps.Log == nil {
		return ContentDetailOutput{}, fmt.Errorf("content_detail: missing deps")
	}
	if len(in.Skeleton) == 0 {
		return ContentDetailOutput{}, fmt.Errorf("content_detail: empty module skeleton")
	}

	results := make([]state.DetailedModule, len(in.Skeleton))
	failed := make([]bool, len(in.Skeleton))

	// Plain Group: one module's failure must not cancel its siblings.
	var g errgroup.Group
	for i := range in.Skeleton {
		g.Go(func() error {
			sk := in.Skeleton[i]
			var prev []string
			for j := max(0, i-previousTitleCount); j < i; j++ {
				prev = append(prev, in.Skeleton[j].Title)
			}
			var detail state.DetailedModule
			err := guard("content_detail", func() error {
				var err error
				detail, err = detailOne(ctx, deps, in, sk, prev)
				return err
			})
			if err != nil {
				deps.Log.Warn("module detail failed; using skeleton", "week", sk.Week, "error", err)
				detail = FallbackDetail(sk)
				failed[i] = true
			}
			results[i] = detail
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return ContentDetailOutput{}, err
	}

	out := ContentDetailOutput{Modules: results}
	for _, f := range failed {
		if f {
			out.Fallbacks++
			recordFallback("content_detail")
		}
	}
	return out, nil
}

func detailOne(ctx context.Context, deps ContentDetailDeps, in ContentDetailInput, sk state.SkeletonModule, prev []string) (state.DetailedModule, error) {
	user := fmt.Sprintf("주제: %s\n수준: %s\n주차: %d\n모듈 제목: %s\n핵심 주제: %s\n학습 목표:\n%s\n이전 모듈: %s\n주당 학습 시간: %d시간",
		in.Topic, in.Level, sk.Week, sk.Title, sk.MainTopic, bulletList(sk.LearningGoals), strings.Join(prev, " / "), in.WeeklyHours)

	var r contentDetailReply
	if err := deps.LLM.ExtractObject(ctx, contentDetailSystemPrompt, user, &r); err != nil {
		return state.DetailedModule{}, err
	}
	hours := r.EstimatedHours
	if hours <= 0 {
		return state.DetailedModule{}, fmt.Errorf("invalid estimated_hours %d", r.EstimatedHours)
	}
	fb := FallbackDetail(sk)
	d := state.DetailedModule{
		Week:             sk.Week,
		Title:            orDefault(r.Title, sk.Title),
		Description:      orDefault(r.Description, fb.Description),
		Objectives:       cleanStrings(r.Objectives),
		LearningOutcomes: cleanStrings(r.LearningOutcomes),
		KeyConcepts:      cleanStrings(r.KeyConcepts),
		EstimatedHours:   hours,
	}
	if len(d.Objectives) == 0 {
		d.Objectives = fb.Objectives
	}
	if len(d.LearningOutcomes) == 0 {
		d.LearningOutcomes = fb.LearningOutcomes
	}
	if len(d.KeyConcepts) == 0 {
		d.KeyConcepts = fb.KeyConcepts
	}
	return d, nil
}

// FallbackDetail derives a module detail from its skeleton.
func FallbackDetail(sk state.SkeletonModule) state.DetailedModule {
	concepts := []string{}
	if strings.TrimSpace(sk.MainTopic) != "" {
		concepts = append(concepts, sk.MainTopic)
	}
	return state.DetailedModule{
		Week:             sk.Week,
		Title:            sk.Title,
		Description:      sk.Title + " 모듈의 상세 학습 내용",
		Objectives:       append([]string(nil), sk.LearningGoals...),
		LearningOutcomes: []string{"기본 개념 이해", "실습 능력 향상"},
		KeyConcepts:      concepts,
		EstimatedHours:   fallbackModuleHours,
		Fallback:         true,
	}
}
