package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/extract"
	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/state"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

const (
	procedurePrefix    = "procedure_"
	minProcedures      = 3
	maxProcedures      = 7
	minProcedureSkills = 3
	maxProcedureSkills = 5
	maxPromptSkills    = 300
	contentLookupLimit = 8
)

// SkillGraph is the graph view the planner needs. graph.Store satisfies it.
type SkillGraph interface {
	Skills(ctx context.Context) ([]string, error)
	DocumentsForSkills(ctx context.Context, skills []string) (map[string][]state.Document, error)
}

// ContentSource returns local document text for a title. graph.ContentLoader satisfies it.
type ContentSource interface {
	Lookup(ctx context.Context, title string) (string, error)
}

type ProceduresDeps struct {
	Log         *logger.Logger
	LLM         *extract.Extractor
	Graph       SkillGraph
	Content     ContentSource
	Attempts    int
	Backoff     time.Duration
	CallTimeout time.Duration
}

type ProceduresInput struct {
	Topic      string
	Goal       string
	Level      state.Level
	FocusAreas []string
}

type ProceduresOutput struct {
	Procedures *state.Procedures `json:"procedures"`
}

const proceduresSystemPrompt = `너는 학습 절차 설계자다. 제공된 스킬 목록만 사용해 순서가 있는 학습 절차를 JSON 객체 하나로 답한다.
형식: {"procedure_1": {"title": "...", "skills": ["...", "...", "..."]}, "procedure_2": {...}}
- 절차는 3개 이상 7개 이하
- 각 절차의 skills는 3개 이상 5개 이하이며 목록의 이름을 글자 그대로 복사한다`

// BuildProcedures asks for skill-grounded procedures and enriches them with
// documents, authors and local content. Graph or validation failures produce a
// two-procedure fallback so later stages always have a structure.
func BuildProcedures(ctx context.Context, deps ProceduresDeps, in ProceduresInput) (ProceduresOutput, error) {
	if deps.Log == nil {
		return ProceduresOutput{}, fmt.Errorf("procedures: missing deps")
	}
	log := deps.Log.With("step", "procedures")

	if deps.Graph == nil {
		recordFallback("procedures")
		return ProceduresOutput{Procedures: fallbackProcedures(in.Topic)}, nil
	}

	skillsCtx, cancel := withTimeout(ctx, deps.CallTimeout)
	skills, err := deps.Graph.Skills(skillsCtx)
	cancel()
	if err != nil || len(skills) == 0 {
		if ctx.Err() != nil {
			return ProceduresOutput{}, ctx.Err()
		}
		log.Warn("skill graph unavailable; using fallback procedures", "error", err)
		recordFallback("procedures")
		return ProceduresOutput{Procedures: fallbackProcedures(in.Topic)}, nil
	}

	known := make(map[string]bool, len(skills))
	for _, s := range skills {
		known[s] = true
	}
	user := fmt.Sprintf("주제: %s\n목표: %s\n수준: %s\n중점 영역: %s\n\n사용 가능한 스킬:\n%s",
		in.Topic, in.Goal, in.Level, strings.Join(in.FocusAreas, ", "), bulletList(firstN(skills, maxPromptSkills)))

	var items []state.Procedure
	err = retry(ctx, deps.Attempts, deps.Backoff, func(attempt int) error {
		var raw map[string]json.RawMessage
		if err := deps.LLM.ExtractObject(ctx, proceduresSystemPrompt, user, &raw); err != nil {
			log.Debug("procedure extraction failed", "attempt", attempt, "error", err)
			return err
		}
		parsed, err := parseProcedures(raw, known)
		if err != nil {
			log.Debug("procedure validation failed", "attempt", attempt, "error", err)
			return err
		}
		items = parsed
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ProceduresOutput{}, ctx.Err()
		}
		log.Warn("procedure generation exhausted; using fallback procedures", "error", err)
		recordFallback("procedures")
		return ProceduresOutput{Procedures: fallbackProcedures(in.Topic)}, nil
	}

	procs := &state.Procedures{Items: items}
	enrichDocuments(ctx, deps, log, procs)
	return ProceduresOutput{Procedures: procs}, nil
}

type procedureReply struct {
	Title  string   `json:"title"`
	Skills []string `json:"skills"`
}

// parseProcedures validates shape and skill names and returns the procedures
// ordered by their numeric suffix.
func parseProcedures(raw map[string]json.RawMessage, known map[string]bool) ([]state.Procedure, error) {
	if len(raw) < minProcedures || len(raw) > maxProcedures {
		return nil, fmt.Errorf("expected %d-%d procedures, got %d", minProcedures, maxProcedures, len(raw))
	}
	out := make([]state.Procedure, 0, len(raw))
	for key, body := range raw {
		if !strings.HasPrefix(key, procedurePrefix) {
			return nil, fmt.Errorf("key %q lacks %s prefix", key, procedurePrefix)
		}
		var r procedureReply
		if err := json.Unmarshal(body, &r); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		if strings.TrimSpace(r.Title) == "" {
			return nil, fmt.Errorf("%s: missing title", key)
		}
		if len(r.Skills) < minProcedureSkills || len(r.Skills) > maxProcedureSkills {
			return nil, fmt.Errorf("%s: expected %d-%d skills, got %d", key, minProcedureSkills, maxProcedureSkills, len(r.Skills))
		}
		for _, s := range r.Skills {
			if !known[s] {
				return nil, fmt.Errorf("%s: unknown skill %q", key, s)
			}
		}
		out = append(out, state.Procedure{Key: key, Title: strings.TrimSpace(r.Title), Skills: r.Skills})
	}
	sort.Slice(out, func(i, j int) bool {
		ni, iok := procedureOrdinal(out[i].Key)
		nj, jok := procedureOrdinal(out[j].Key)
		if iok && jok && ni != nj {
			return ni < nj
		}
		if iok != jok {
			return iok
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

func procedureOrdinal(key string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimPrefix(key, procedurePrefix))
	return n, err == nil
}

// enrichDocuments attaches documents and authors from one batched graph query,
// then fills document content from local files. Failures leave fields empty.
func enrichDocuments(ctx context.Context, deps ProceduresDeps, log *logger.Logger, procs *state.Procedures) {
	var all []string
	for _, p := range procs.Items {
		all = append(all, p.Skills...)
	}
	docCtx, cancel := withTimeout(ctx, deps.CallTimeout)
	bySkill, err := deps.Graph.DocumentsForSkills(docCtx, all)
	cancel()
	if err != nil {
		log.Warn("document enrichment failed", "error", err)
		return
	}

	titles := map[string]string{}
	if deps.Content != nil {
		for _, docs := range bySkill {
			for _, d := range docs {
				titles[d.Title] = ""
			}
		}
		keys := make([]string, 0, len(titles))
		for t := range titles {
			keys = append(keys, t)
		}
		sort.Strings(keys)
		contents := make([]string, len(keys))
		var g errgroup.Group
		g.SetLimit(contentLookupLimit)
		for i, title := range keys {
			g.Go(func() error {
				text, err := deps.Content.Lookup(ctx, title)
				if err != nil {
					log.Debug("document content lookup failed", "title", title, "error", err)
					return nil
				}
				contents[i] = text
				return nil
			})
		}
		_ = g.Wait()
		for i, t := range keys {
			titles[t] = contents[i]
		}
	}

	for i := range procs.Items {
		p := &procs.Items[i]
		p.Documents = map[string][]state.Document{}
		for _, s := range p.Skills {
			docs := bySkill[s]
			if len(docs) == 0 {
				continue
			}
			cp := make([]state.Document, len(docs))
			for j, d := range docs {
				d.Authors = append([]string(nil), d.Authors...)
				d.Content = titles[d.Title]
				cp[j] = d
			}
			p.Documents[s] = cp
		}
	}
}

func fallbackProcedures(topic string) *state.Procedures {
	topic = orDefault(topic, defaultTopic)
	const expert = "LearnMate 커리큘럼팀"
	mk := func(key, title string, skills []string, doc string) state.Procedure {
		docs := map[string][]state.Document{}
		for _, s := range skills {
			docs[s] = []state.Document{{
				Title:   fmt.Sprintf("%s: %s", doc, s),
				Authors: []string{expert},
				Content: fmt.Sprintf("%s에서 %s을(를) 다루는 기본 학습 자료입니다.", topic, s),
			}}
		}
		return state.Procedure{Key: key, Title: title, Skills: skills, Documents: docs}
	}
	return &state.Procedures{
		Fallback: true,
		Items: []state.Procedure{
			mk(procedurePrefix+"1", topic+" 기초",
				[]string{topic + " 기본 개념", topic + " 개발 환경", topic + " 핵심 문법"},
				topic+" 입문 가이드"),
			mk(procedurePrefix+"2", topic+" 실습",
				[]string{topic + " 예제 실습", topic + " 미니 프로젝트", topic + " 문제 해결"},
				topic+" 실습 가이드"),
		},
	}
}
