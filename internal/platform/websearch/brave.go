package websearch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/yungbote/learnmate-backend/internal/pkg/httpx"
)

const braveEndpoint = "https://api.search.brave.com/res/v1/web/search"

// Brave queries the Brave Search web API.
type Brave struct {
	APIKey   string
	Endpoint string
	HTTP     *http.Client
}

func (b *Brave) Discover(ctx context.Context, q string, k int, sites []string, recency int) ([]Result, error) {
	query := q
	for _, site := range sites {
		query += " site:" + site
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(k))
	if recency > 0 {
		params.Set("freshness", "pd")
	}

	var raw struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	err := httpx.DoJSON(ctx, b.HTTP, httpx.Request{
		Method:  http.MethodGet,
		URL:     b.Endpoint + "?" + params.Encode(),
		Headers: map[string]string{"X-Subscription-Token": b.APIKey},
		Retries: 1,
	}, &raw)
	if err != nil {
		return nil, fmt.Errorf("brave: %w", err)
	}
	out := make([]Result, 0, len(raw.Web.Results))
	for _, r := range raw.Web.Results {
		if strings.TrimSpace(r.URL) == "" {
			continue
		}
		out = append(out, Result{Title: strings.TrimSpace(r.Title), URL: r.URL, Snippet: strings.TrimSpace(r.Description)})
	}
	return trimTo(out, k), nil
}
