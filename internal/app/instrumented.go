package app

import (
	"context"
	"time"

	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/state"
	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/steps"
	"github.com/yungbote/learnmate-backend/internal/observability"
	"github.com/yungbote/learnmate-backend/internal/platform/vectorsearch"
	"github.com/yungbote/learnmate-backend/internal/platform/websearch"
)

type instrumentedSearcher struct {
	inner   vectorsearch.Searcher
	metrics *observability.Metrics
}

func instrumentSearcher(inner vectorsearch.Searcher, m *observability.Metrics) vectorsearch.Searcher {
	if inner == nil {
		return nil
	}
	return &instrumentedSearcher{inner: inner, metrics: m}
}

func (s *instrumentedSearcher) Search(ctx context.Context, req vectorsearch.Request) (*vectorsearch.Response, error) {
	start := time.Now()
	out, err := s.inner.Search(ctx, req)
	s.metrics.ObserveBackend("vector", "search", err, time.Since(start))
	return out, err
}

type instrumentedWeb struct {
	inner   websearch.WebSearcher
	metrics *observability.Metrics
}

func instrumentWeb(inner websearch.WebSearcher, m *observability.Metrics) websearch.WebSearcher {
	if inner == nil {
		return nil
	}
	return &instrumentedWeb{inner: inner, metrics: m}
}

func (w *instrumentedWeb) Discover(ctx context.Context, q string, k int, sites []string, recency int) ([]websearch.Result, error) {
	start := time.Now()
	out, err := w.inner.Discover(ctx, q, k, sites, recency)
	w.metrics.ObserveBackend("web", "discover", err, time.Since(start))
	return out, err
}

type instrumentedGraph struct {
	inner   steps.SkillGraph
	metrics *observability.Metrics
}

func instrumentGraph(inner steps.SkillGraph, m *observability.Metrics) steps.SkillGraph {
	if inner == nil {
		return nil
	}
	return &instrumentedGraph{inner: inner, metrics: m}
}

func (g *instrumentedGraph) Skills(ctx context.Context) ([]string, error) {
	start := time.Now()
	out, err := g.inner.Skills(ctx)
	g.metrics.ObserveBackend("graph", "skills", err, time.Since(start))
	return out, err
}

func (g *instrumentedGraph) DocumentsForSkills(ctx context.Context, skills []string) (map[string][]state.Document, error) {
	start := time.Now()
	out, err := g.inner.DocumentsForSkills(ctx, skills)
	g.metrics.ObserveBackend("graph", "documents_for_skills", err, time.Since(start))
	return out, err
}
