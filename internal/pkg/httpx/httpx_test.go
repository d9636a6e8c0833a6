package httpx

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryableError(t *testing.T) {
	assert.False(t, IsRetryableError(nil))
	assert.True(t, IsRetryableError(context.DeadlineExceeded))
	assert.False(t, IsRetryableError(context.Canceled))
	assert.True(t, IsRetryableError(fmt.Errorf("wrapped: %w", &StatusError{StatusCode: 503})))
	assert.True(t, IsRetryableError(&StatusError{StatusCode: 429}))
	assert.False(t, IsRetryableError(&StatusError{StatusCode: 400}))
}

func TestDoJSONRetriesOnServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "k", r.Header.Get("X-Key"))
		_, _ = w.Write([]byte(`{"count":2}`))
	}))
	defer srv.Close()

	var out struct {
		Count int `json:"count"`
	}
	err := DoJSON(context.Background(), srv.Client(), Request{
		Method:  http.MethodPost,
		URL:     srv.URL,
		Headers: map[string]string{"X-Key": "k"},
		Body:    map[string]any{"q": "react"},
		Retries: 1,
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Count)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDoJSONReturnsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	err := DoJSON(context.Background(), srv.Client(), Request{URL: srv.URL, Retries: 3}, nil)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.HTTPStatusCode())
}
