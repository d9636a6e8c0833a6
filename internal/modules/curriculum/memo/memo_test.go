package memo

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPopulatesOnce(t *testing.T) {
	c := New[[]string]()
	var calls atomic.Int32
	fetch := func(context.Context) ([]string, error) {
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)
		return []string{"Go", "SQL"}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Get(context.Background(), "skills", fetch)
			assert.NoError(t, err)
			assert.Equal(t, []string{"Go", "SQL"}, v)
		}()
	}
	wg.Wait()

	_, err := c.Get(context.Background(), "skills", fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, c.Len())
}

func TestErrorsAreNotMemoized(t *testing.T) {
	var c Cache[string]
	boom := errors.New("unreachable")

	_, err := c.Get(context.Background(), "k", func(context.Context) (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
	_, ok := c.Peek("k")
	assert.False(t, ok)

	v, err := c.Get(context.Background(), "k", func(context.Context) (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}
