package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerperDiscover(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("X-API-KEY"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "react 강의 (site:a.com OR site:b.com)", body["q"])
		_, _ = w.Write([]byte(`{"organic":[
			{"title":"A","link":"https://a.com/1","snippet":"s1"},
			{"title":"no link","link":""},
			{"title":"B","link":"https://b.com/2.pdf","snippet":"s2"},
			{"title":"C","link":"https://c.com/3"}
		]}`))
	}))
	defer srv.Close()

	s := &Serper{APIKey: "key", Endpoint: srv.URL, HTTP: srv.Client()}
	out, err := s.Discover(context.Background(), "react 강의", 2, []string{"a.com", "b.com"}, 0)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "https://b.com/2.pdf", out[1].URL)
}

func TestBraveDiscover(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok", r.Header.Get("X-Subscription-Token"))
		assert.Equal(t, "파이썬 입문", r.URL.Query().Get("q"))
		assert.Equal(t, "3", r.URL.Query().Get("count"))
		_, _ = w.Write([]byte(`{"web":{"results":[{"title":"P","url":"https://p.dev","description":"d"}]}}`))
	}))
	defer srv.Close()

	b := &Brave{APIKey: "tok", Endpoint: srv.URL, HTTP: srv.Client()}
	out, err := b.Discover(context.Background(), "파이썬 입문", 3, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, []Result{{Title: "P", URL: "https://p.dev", Snippet: "d"}}, out)
}

func TestNewWebSearcher(t *testing.T) {
	_, err := NewWebSearcher("bing", "k", 0)
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
	_, err = NewWebSearcher(SerperProvider, "", 0)
	assert.Error(t, err)
	ws, err := NewWebSearcher(BraveProvider, "k", 0)
	require.NoError(t, err)
	assert.IsType(t, &Brave{}, ws)
}
