package websearch

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

type WebSearcher interface {
	Discover(ctx context.Context, q string, k int, sites []string, recency int) ([]Result, error)
}

type Provider string

const (
	SerperProvider Provider = "serper"
	BraveProvider  Provider = "brave"
)

var ErrUnsupportedProvider = errors.New("websearch: unsupported provider")

func NewWebSearcher(provider Provider, apiKey string, timeout time.Duration) (WebSearcher, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("websearch: missing api key")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	hc := &http.Client{Timeout: timeout}
	switch Provider(strings.ToLower(strings.TrimSpace(string(provider)))) {
	case SerperProvider, "":
		return &Serper{APIKey: apiKey, Endpoint: serperEndpoint, HTTP: hc}, nil
	case BraveProvider:
		return &Brave{APIKey: apiKey, Endpoint: braveEndpoint, HTTP: hc}, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}

func trimTo(out []Result, k int) []Result {
	if k > 0 && len(out) > k {
		return out[:k]
	}
	return out
}
