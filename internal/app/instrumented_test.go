package app

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/learnmate-backend/internal/observability"
	"github.com/yungbote/learnmate-backend/internal/platform/vectorsearch"
	"github.com/yungbote/learnmate-backend/internal/platform/websearch"
)

type stubSearcher struct{ err error }

func (s stubSearcher) Search(context.Context, vectorsearch.Request) (*vectorsearch.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &vectorsearch.Response{Count: 1, Results: []vectorsearch.Hit{{ID: "a"}}}, nil
}

type stubWeb struct{}

func (stubWeb) Discover(context.Context, string, int, []string, int) ([]websearch.Result, error) {
	return []websearch.Result{{Title: "t"}}, nil
}

func TestInstrumentedSearcherPassesThrough(t *testing.T) {
	m := observability.NewMetrics()
	s := instrumentSearcher(stubSearcher{}, m)
	out, err := s.Search(context.Background(), vectorsearch.Request{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Count)

	failing := instrumentSearcher(stubSearcher{err: errors.New("down")}, m)
	_, err = failing.Search(context.Background(), vectorsearch.Request{Query: "q"})
	assert.Error(t, err)

	// success and error series
	n, err := testutil.GatherAndCount(m.Registry(), "learnmate_backend_call_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestInstrumentNilStaysNil(t *testing.T) {
	assert.Nil(t, instrumentSearcher(nil, nil))
	assert.Nil(t, instrumentWeb(nil, nil))
	assert.Nil(t, instrumentGraph(nil, nil))

	w := instrumentWeb(stubWeb{}, nil)
	res, err := w.Discover(context.Background(), "q", 3, nil, 0)
	require.NoError(t, err)
	assert.Len(t, res, 1)
}
