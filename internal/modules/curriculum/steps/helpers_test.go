package steps

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/extract"
	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/state"
	"github.com/yungbote/learnmate-backend/internal/platform/vectorsearch"
	"github.com/yungbote/learnmate-backend/internal/platform/websearch"
)

var errServiceDown = errors.New("service down")

// scriptedLLM answers by matching a fragment of the system prompt. Replies for
// a fragment are consumed in order; the last one repeats.
type scriptedLLM struct {
	mu      sync.Mutex
	replies map[string][]string
	calls   map[string]int
	at      []time.Time
	fn      func(system, user string) (string, error)
}

func newScriptedLLM() *scriptedLLM {
	return &scriptedLLM{replies: map[string][]string{}, calls: map[string]int{}}
}

func (s *scriptedLLM) on(fragment string, replies ...string) *scriptedLLM {
	s.replies[fragment] = replies
	return s
}

func (s *scriptedLLM) count(fragment string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[fragment]
}

// gaps returns the time between consecutive calls.
func (s *scriptedLLM) gaps() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Duration
	for i := 1; i < len(s.at); i++ {
		out = append(out, s.at[i].Sub(s.at[i-1]))
	}
	return out
}

func (s *scriptedLLM) GenerateText(_ context.Context, system, user string) (string, error) {
	s.mu.Lock()
	s.at = append(s.at, time.Now())
	s.mu.Unlock()
	if s.fn != nil {
		return s.fn(system, user)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for frag, replies := range s.replies {
		if !strings.Contains(system, frag) {
			continue
		}
		n := s.calls[frag]
		s.calls[frag] = n + 1
		if n >= len(replies) {
			n = len(replies) - 1
		}
		if replies[n] == "" {
			return "", errServiceDown
		}
		return replies[n], nil
	}
	return "", errServiceDown
}

func extractorFor(llm extract.Completer) *extract.Extractor {
	return extract.New(llm, 0)
}

func failingExtractor() *extract.Extractor {
	return extract.New(extract.CompleterFunc(func(context.Context, string, string) (string, error) {
		return "", errServiceDown
	}), 0)
}

type fakeGraph struct {
	skills    []string
	skillsErr error
	docs      map[string][]state.Document
	docsErr   error
}

func (f *fakeGraph) Skills(context.Context) ([]string, error) {
	return f.skills, f.skillsErr
}

func (f *fakeGraph) DocumentsForSkills(_ context.Context, skills []string) (map[string][]state.Document, error) {
	if f.docsErr != nil {
		return nil, f.docsErr
	}
	out := map[string][]state.Document{}
	for _, s := range skills {
		if d, ok := f.docs[s]; ok {
			out[s] = d
		}
	}
	return out, nil
}

type fakeContent map[string]string

func (f fakeContent) Lookup(_ context.Context, title string) (string, error) {
	return f[title], nil
}

type fakeSearcher struct {
	fn func(req vectorsearch.Request) (*vectorsearch.Response, error)
}

func (f *fakeSearcher) Search(_ context.Context, req vectorsearch.Request) (*vectorsearch.Response, error) {
	return f.fn(req)
}

type fakeWeb struct {
	fn func(q string, k int) ([]websearch.Result, error)
}

func (f *fakeWeb) Discover(_ context.Context, q string, k int, _ []string, _ int) ([]websearch.Result, error) {
	return f.fn(q, k)
}
