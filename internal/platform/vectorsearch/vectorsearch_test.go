package vectorsearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/learnmate-backend/internal/platform/pinecone"
)

func TestSanitizeNamespace(t *testing.T) {
	assert.Equal(t, DefaultNamespace, SanitizeNamespace(" "))
	assert.Equal(t, "컴퓨터_통신_공학", SanitizeNamespace("컴퓨터·통신/공학"))
	assert.Equal(t, "engineering_structure", SanitizeNamespace("engineering (structure)"))
}

func TestServiceClientSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "React 상태관리", req.Query)
		assert.Equal(t, DefaultNamespace, req.Namespace)
		assert.Equal(t, 5, req.TopK)
		_, _ = w.Write([]byte(`{"namespace":"engineering_structure","count":9,"results":[{"id":"k1","score":0.8,"metadata":{"title":"T"}}]}`))
	}))
	defer srv.Close()

	c, err := NewServiceClient(srv.URL+"/", 0)
	require.NoError(t, err)
	resp, err := c.Search(context.Background(), Request{Query: "React 상태관리", IncludeMetadata: true})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "T", resp.Results[0].Metadata["title"])
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, in []string) ([][]float32, error) {
	return [][]float32{{0.1, 0.2}}, nil
}

type fakeStore struct{ gotNS string }

func (f *fakeStore) QueryMatches(ctx context.Context, ns string, q []float32, topK int, filter map[string]any) ([]pinecone.VectorMatch, error) {
	f.gotNS = ns
	return []pinecone.VectorMatch{{ID: "a", Score: 0.7, Metadata: map[string]any{"title": "A"}}}, nil
}

func TestPineconeSearcher(t *testing.T) {
	store := &fakeStore{}
	s, err := NewPineconeSearcher(fakeEmbedder{}, store)
	require.NoError(t, err)

	resp, err := s.Search(context.Background(), Request{Query: "q", Namespace: "kmooc courses"})
	require.NoError(t, err)
	assert.Equal(t, "kmooc_courses", store.gotNS)
	require.Len(t, resp.Results, 1)
	assert.Nil(t, resp.Results[0].Metadata)
}
