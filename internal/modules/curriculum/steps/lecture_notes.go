package steps

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/extract"
	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/graph"
	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/state"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

const (
	defaultLectureConcurrency = 12
	defaultMinNoteRunes       = 50
	defaultSnippetRunes       = 500
	defaultConceptsPerNote    = 2
)

type LectureNotesDeps struct {
	Log             *logger.Logger
	LLM             *extract.Extractor
	Concurrency     int
	MinNoteRunes    int
	SnippetRunes    int
	ConceptsPerNote int
}

type LectureNotesInput struct {
	Topic      string
	Level      state.Level
	Modules    []state.DetailedModule
	Procedures *state.Procedures
}

type LectureNotesOutput struct {
	Modules  []state.DetailedModule `json:"modules"`
	Complete bool                   `json:"complete"`
	Failed   int                    `json:"failed"`
}

type Snippet struct {
	Source  string `json:"source"`
	Content string `json:"content"`
}

// ContentIndex maps lowercase keywords from procedure titles and skill names to
// document snippets.
type ContentIndex map[string][]Snippet

const lectureSystemPrompt = `너는 대학 강사다. 한 주차 분량의 강의 자료를 마크다운으로 작성한다.
학습 목표, 핵심 개념 설명, 예제, 실습 과제, 정리 순서로 구성하고 제공된 참고 자료가 있으면 활용한다.`

// GenerateLectureNotes writes one note per module with at most Concurrency calls
// in flight. Failures become placeholder notes and never fail the stage.
func GenerateLectureNotes(ctx context.Context, deps LectureNotesDeps, in LectureNotesInput) (LectureNotesOutput, error) {
	if deps.Log == nil {
		return LectureNotesOutput{}, fmt.Errorf("lecture_notes: missing deps")
	}
	limit := deps.Concurrency
	if limit <= 0 {
		limit = defaultLectureConcurrency
	}
	minRunes := deps.MinNoteRunes
	if minRunes <= 0 {
		minRunes = defaultMinNoteRunes
	}
	snippetRunes := deps.SnippetRunes
	if snippetRunes <= 0 {
		snippetRunes = defaultSnippetRunes
	}
	concepts := deps.ConceptsPerNote
	if concepts <= 0 {
		concepts = defaultConceptsPerNote
	}

	index := BuildContentIndex(in.Procedures, snippetRunes)
	mods := make([]state.DetailedModule, len(in.Modules))
	ok := make([]bool, len(in.Modules))

	var g errgroup.Group
	g.SetLimit(limit)
	for i := range in.Modules {
		mods[i] = in.Modules[i].Clone()
		g.Go(func() error {
			m := mods[i]
			var note string
			err := guard("lecture_note", func() error {
				var err error
				note, err = lectureOne(ctx, deps, in, m, index.Context(m.KeyConcepts, concepts))
				return err
			})
			if err == nil && utf8.RuneCountInString(strings.TrimSpace(note)) <= minRunes {
				err = fmt.Errorf("note too short (%d chars)", utf8.RuneCountInString(strings.TrimSpace(note)))
			}
			if err != nil {
				deps.Log.Warn("lecture note failed", "week", m.Week, "error", err)
				mods[i].LectureNote = placeholderNote(m, err)
				return nil
			}
			mods[i].LectureNote = strings.TrimSpace(note)
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return LectureNotesOutput{}, err
	}

	out := LectureNotesOutput{Modules: mods, Complete: true}
	for _, good := range ok {
		if !good {
			out.Failed++
			out.Complete = false
			recordFallback("lecture_note")
		}
	}
	return out, nil
}

func lectureOne(ctx context.Context, deps LectureNotesDeps, in LectureNotesInput, m state.DetailedModule, refs []Snippet) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "주제: %s\n수준: %s\n주차: %d\n모듈: %s\n설명: %s\n", in.Topic, in.Level, m.Week, m.Title, m.Description)
	fmt.Fprintf(&b, "학습 목표:\n%s\n핵심 개념:\n%s\n학습 시간: %d시간\n", bulletList(m.Objectives), bulletList(m.KeyConcepts), m.EstimatedHours)
	if len(refs) > 0 {
		b.WriteString("\n참고 자료:\n")
		for _, r := range refs {
			fmt.Fprintf(&b, "[%s]\n%s\n", r.Source, r.Content)
		}
	}
	return deps.LLM.Extract(ctx, lectureSystemPrompt, b.String())
}

func placeholderNote(m state.DetailedModule, err error) string {
	return fmt.Sprintf("# %d주차: %s\n\n강의 자료를 생성하지 못했습니다. 잠시 후 다시 시도해 주세요.\n\n(오류: %v)", m.Week, m.Title, err)
}

// BuildContentIndex indexes document snippets by procedure title and skill name,
// plus their keywords.
func BuildContentIndex(p *state.Procedures, snippetRunes int) ContentIndex {
	idx := ContentIndex{}
	if p.Empty() {
		return idx
	}
	add := func(term string, docs []state.Document) {
		keys := append([]string{strings.ToLower(strings.TrimSpace(term))}, graph.Keywords(term)...)
		for _, d := range docs {
			content := strings.TrimSpace(d.Content)
			if content == "" {
				continue
			}
			sn := Snippet{Source: d.Title, Content: truncateRunes(content, snippetRunes)}
			for _, k := range keys {
				if k == "" || idx.has(k, sn.Source) {
					continue
				}
				idx[k] = append(idx[k], sn)
			}
		}
	}
	for _, proc := range p.Items {
		var all []state.Document
		for _, s := range proc.Skills {
			docs := proc.Documents[s]
			add(s, docs)
			all = append(all, docs...)
		}
		add(proc.Title, all)
	}
	return idx
}

func (idx ContentIndex) has(key, source string) bool {
	for _, s := range idx[key] {
		if s.Source == source {
			return true
		}
	}
	return false
}

// Lookup returns snippets for a concept: exact key first, then its keywords.
func (idx ContentIndex) Lookup(concept string) []Snippet {
	if hits := idx[strings.ToLower(strings.TrimSpace(concept))]; len(hits) > 0 {
		return hits
	}
	for _, k := range graph.Keywords(concept) {
		if hits := idx[k]; len(hits) > 0 {
			return hits
		}
	}
	return nil
}

// Context picks one snippet for each of the first maxConcepts concepts that match.
func (idx ContentIndex) Context(concepts []string, maxConcepts int) []Snippet {
	var out []Snippet
	seen := map[string]bool{}
	for _, c := range concepts {
		if len(out) >= maxConcepts {
			break
		}
		for _, sn := range idx.Lookup(c) {
			if seen[sn.Source] {
				continue
			}
			seen[sn.Source] = true
			out = append(out, sn)
			break
		}
	}
	return out
}
