package pinecone

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/learnmate-backend/internal/pkg/httpx"
)

const apiVersion = "2024-07"

// Client is the subset of the Pinecone data-plane REST API the backend uses.
type Client interface {
	Query(ctx context.Context, indexHost string, req QueryRequest) (*QueryResponse, error)
}

type QueryRequest struct {
	Namespace       string         `json:"namespace,omitempty"`
	Vector          []float32      `json:"vector"`
	TopK            int            `json:"topK"`
	Filter          map[string]any `json:"filter,omitempty"`
	IncludeValues   bool           `json:"includeValues"`
	IncludeMetadata bool           `json:"includeMetadata"`
}

type QueryResponse struct {
	Namespace string  `json:"namespace"`
	Matches   []Match `json:"matches"`
}

type Match struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type restClient struct {
	apiKey string
	http   *http.Client
}

func NewClient(apiKey string, timeout time.Duration) (Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("missing PINECONE_API_KEY")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &restClient{apiKey: apiKey, http: &http.Client{Timeout: timeout}}, nil
}

func (c *restClient) Query(ctx context.Context, indexHost string, req QueryRequest) (*QueryResponse, error) {
	var out QueryResponse
	err := httpx.DoJSON(ctx, c.http, httpx.Request{
		Method: http.MethodPost,
		URL:    hostURL(indexHost) + "/query",
		Headers: map[string]string{
			"Api-Key":                c.apiKey,
			"X-Pinecone-API-Version": apiVersion,
		},
		Body:    req,
		Retries: 2,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("pinecone query: %w", err)
	}
	return &out, nil
}

func hostURL(host string) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	return "https://" + host
}
