package vectorsearch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/learnmate-backend/internal/pkg/httpx"
	"github.com/yungbote/learnmate-backend/internal/platform/pinecone"
)

const DefaultNamespace = "engineering_structure"

type Request struct {
	Query           string         `json:"query"`
	TopK            int            `json:"top_k"`
	Namespace       string         `json:"namespace,omitempty"`
	Filter          map[string]any `json:"filter,omitempty"`
	IncludeMetadata bool           `json:"include_metadata"`
	Rerank          bool           `json:"rerank"`
}

type Hit struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type Response struct {
	Namespace string `json:"namespace"`
	Count     int    `json:"count"`
	Results   []Hit  `json:"results"`
}

type Searcher interface {
	Search(ctx context.Context, req Request) (*Response, error)
}

var namespaceReplacer = strings.NewReplacer("/", "_", "·", "_", " ", "_", "(", "", ")", "")

// SanitizeNamespace maps a department-style label onto an index namespace.
func SanitizeNamespace(ns string) string {
	ns = strings.TrimSpace(ns)
	if ns == "" {
		return DefaultNamespace
	}
	return namespaceReplacer.Replace(ns)
}

func normalize(req Request) Request {
	req.Namespace = SanitizeNamespace(req.Namespace)
	if req.TopK <= 0 {
		req.TopK = 5
	}
	return req
}

// ---- search service over HTTP ----

type serviceClient struct {
	baseURL string
	http    *http.Client
}

// NewServiceClient talks to a K-MOOC search service exposing POST /search.
func NewServiceClient(baseURL string, timeout time.Duration) (Searcher, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("vectorsearch: missing search service url")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &serviceClient{baseURL: baseURL, http: &http.Client{Timeout: timeout}}, nil
}

func (c *serviceClient) Search(ctx context.Context, req Request) (*Response, error) {
	req = normalize(req)
	var out Response
	err := httpx.DoJSON(ctx, c.http, httpx.Request{
		Method:  http.MethodPost,
		URL:     c.baseURL + "/search",
		Body:    req,
		Retries: 1,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("vectorsearch: %w", err)
	}
	if out.Namespace == "" {
		out.Namespace = req.Namespace
	}
	out.Count = len(out.Results)
	return &out, nil
}

// ---- direct pinecone ----

type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

type pineconeSearcher struct {
	embed Embedder
	store pinecone.VectorStore
}

// NewPineconeSearcher embeds the query and queries the index directly.
// Rerank is accepted but not applied; only the search service reranks.
func NewPineconeSearcher(embed Embedder, store pinecone.VectorStore) (Searcher, error) {
	if embed == nil || store == nil {
		return nil, fmt.Errorf("vectorsearch: embedder and vector store required")
	}
	return &pineconeSearcher{embed: embed, store: store}, nil
}

func (s *pineconeSearcher) Search(ctx context.Context, req Request) (*Response, error) {
	req = normalize(req)
	vecs, err := s.embed.Embed(ctx, []string{req.Query})
	if err != nil {
		return nil, fmt.Errorf("vectorsearch: embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("vectorsearch: embed query returned %d vectors", len(vecs))
	}
	matches, err := s.store.QueryMatches(ctx, req.Namespace, vecs[0], req.TopK, req.Filter)
	if err != nil {
		return nil, fmt.Errorf("vectorsearch: %w", err)
	}
	out := &Response{Namespace: req.Namespace, Results: make([]Hit, 0, len(matches))}
	for _, m := range matches {
		h := Hit{ID: m.ID, Score: m.Score}
		if req.IncludeMetadata {
			h.Metadata = m.Metadata
		}
		out.Results = append(out.Results, h)
	}
	out.Count = len(out.Results)
	return out, nil
}
