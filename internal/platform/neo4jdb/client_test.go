package neo4jdb

import (
	"context"
	"testing"

	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

func TestNewWithoutURIIsDisabled(t *testing.T) {
	c, err := New(logger.Nop(), Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c != nil {
		t.Fatalf("expected nil client without URI")
	}
	if _, err := c.Read(context.Background(), "RETURN 1", nil); err == nil {
		t.Fatalf("Read on nil client: expected error")
	}
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close on nil client: %v", err)
	}
}

func TestNewRequiresLogger(t *testing.T) {
	if _, err := New(nil, Config{URI: "neo4j://localhost:7687"}); err == nil {
		t.Fatalf("expected logger error")
	}
}
