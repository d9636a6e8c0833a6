package websearch

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/yungbote/learnmate-backend/internal/pkg/httpx"
)

const serperEndpoint = "https://google.serper.dev/search"

// Serper queries https://serper.dev (Google results).
type Serper struct {
	APIKey   string
	Endpoint string
	HTTP     *http.Client
}

func (s *Serper) Discover(ctx context.Context, q string, k int, sites []string, recency int) ([]Result, error) {
	query := q
	if len(sites) > 0 {
		parts := make([]string, 0, len(sites))
		for _, site := range sites {
			parts = append(parts, "site:"+site)
		}
		query = q + " (" + strings.Join(parts, " OR ") + ")"
	}
	payload := map[string]any{"q": query, "num": k, "gl": "kr", "hl": "ko"}
	if recency > 0 {
		payload["tbs"] = fmt.Sprintf("qdr:d%d", recency)
	}

	var raw struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	err := httpx.DoJSON(ctx, s.HTTP, httpx.Request{
		Method:  http.MethodPost,
		URL:     s.Endpoint,
		Headers: map[string]string{"X-API-KEY": s.APIKey},
		Body:    payload,
		Retries: 1,
	}, &raw)
	if err != nil {
		return nil, fmt.Errorf("serper: %w", err)
	}
	out := make([]Result, 0, len(raw.Organic))
	for _, it := range raw.Organic {
		if strings.TrimSpace(it.Link) == "" {
			continue
		}
		out = append(out, Result{Title: strings.TrimSpace(it.Title), URL: it.Link, Snippet: strings.TrimSpace(it.Snippet)})
	}
	return trimTo(out, k), nil
}
