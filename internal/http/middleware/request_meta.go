package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/learnmate-backend/internal/platform/ctxutil"
)

const (
	HeaderRequestID = "X-Request-Id"
	HeaderTraceID   = "X-Trace-Id"
	HeaderUserID    = "X-User-Id"
	HeaderSessionID = "X-Session-Id"
)

// AttachRequestMeta stores request, trace and caller ids on the request
// context and echoes the request and trace ids back. The trace id prefers the
// active span so logs line up with exported traces.
func AttachRequestMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		m := &ctxutil.RequestMeta{
			RequestID: headerOr(c, HeaderRequestID, ""),
			UserID:    headerOr(c, HeaderUserID, ""),
			SessionID: headerOr(c, HeaderSessionID, ""),
		}
		if m.RequestID == "" {
			m.RequestID = uuid.NewString()
		}
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
			m.TraceID = sc.TraceID().String()
		} else {
			m.TraceID = headerOr(c, HeaderTraceID, m.RequestID)
		}

		c.Request = c.Request.WithContext(ctxutil.WithMeta(c.Request.Context(), m))
		c.Header(HeaderRequestID, m.RequestID)
		c.Header(HeaderTraceID, m.TraceID)
		c.Next()
	}
}

func headerOr(c *gin.Context, name, def string) string {
	if v := strings.TrimSpace(c.GetHeader(name)); v != "" {
		return v
	}
	return def
}
