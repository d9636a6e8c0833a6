package ctxutil

import "context"

type metaKey struct{}

// RequestMeta identifies one API call. UserID and SessionID come from the
// gateway headers and are empty for anonymous callers.
type RequestMeta struct {
	RequestID string
	TraceID   string
	UserID    string
	SessionID string
}

func WithMeta(ctx context.Context, m *RequestMeta) context.Context {
	return context.WithValue(ctx, metaKey{}, m)
}

// Meta never returns nil.
func Meta(ctx context.Context) *RequestMeta {
	if m, ok := ctx.Value(metaKey{}).(*RequestMeta); ok && m != nil {
		return m
	}
	return &RequestMeta{}
}
