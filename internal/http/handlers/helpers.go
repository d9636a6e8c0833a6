package handlers

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	pkgerrors "github.com/yungbote/learnmate-backend/internal/pkg/errors"
	"github.com/yungbote/learnmate-backend/internal/platform/ctxutil"
)

// callerID resolves the user id from the body first, then the X-User-Id
// header. Empty means anonymous and yields uuid.Nil.
func callerID(c *gin.Context, fromBody string) (uuid.UUID, error) {
	raw := strings.TrimSpace(fromBody)
	if raw == "" {
		raw = ctxutil.Meta(c.Request.Context()).UserID
	}
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("user_id %q: %w", raw, pkgerrors.ErrInvalidInput)
	}
	return id, nil
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param(name)))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", name, pkgerrors.ErrInvalidInput)
	}
	return id, nil
}

func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return fmt.Errorf("invalid body: %v: %w", err, pkgerrors.ErrInvalidInput)
	}
	return nil
}
