package pinecone

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

func TestQueryMatchesSendsNamespaceAndMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "pc-key", r.Header.Get("Api-Key"))
		var req QueryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "lm:engineering_structure", req.Namespace)
		assert.Equal(t, 3, req.TopK)
		assert.True(t, req.IncludeMetadata)
		_, _ = w.Write([]byte(`{"namespace":"lm:engineering_structure","matches":[
			{"id":"c1","score":0.9,"metadata":{"title":"React 입문"}},
			{"id":"","score":0.5}
		]}`))
	}))
	defer srv.Close()

	pc, err := NewClient("pc-key", 0)
	require.NoError(t, err)
	vs, err := NewVectorStore(logger.Nop(), pc, StoreConfig{IndexHost: srv.URL, NamespacePrefix: "lm"})
	require.NoError(t, err)

	matches, err := vs.QueryMatches(context.Background(), "engineering_structure", []float32{0.1}, 3, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "c1", matches[0].ID)
	assert.Equal(t, "React 입문", matches[0].Metadata["title"])
}

func TestHostURL(t *testing.T) {
	assert.Equal(t, "https://idx.svc.pinecone.io", hostURL("idx.svc.pinecone.io/"))
	assert.Equal(t, "http://localhost:1", hostURL("http://localhost:1"))
}
