package steps

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/yungbote/learnmate-backend/internal/observability"
)

const (
	defaultAttempts    = 3
	defaultCallTimeout = 10 * time.Second
)

// retry calls fn up to attempts times, sleeping backoff between attempts. It
// returns nil on the first success or the last error.
func retry(ctx context.Context, attempts int, backoff time.Duration, fn func(attempt int) error) error {
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	var last error
	for i := 1; i <= attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if last = fn(i); last == nil {
			return nil
		}
		if i < attempts && backoff > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return last
}

// guard converts a panic inside fn into an error.
func guard(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panic: %v\n%s", name, r, string(debug.Stack()))
		}
	}()
	return fn()
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = defaultCallTimeout
	}
	return context.WithTimeout(ctx, d)
}

func recordFallback(component string) {
	observability.Current().IncFallback(component)
}

func cleanStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func firstN(in []string, n int) []string {
	if len(in) > n {
		return in[:n]
	}
	return in
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return strings.TrimSpace(s)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n])
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return "- (없음)"
	}
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(it)
	}
	return b.String()
}
