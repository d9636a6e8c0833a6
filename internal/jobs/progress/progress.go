package progress

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/state"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

type PhaseInfo struct {
	Step        int    `json:"step"`
	Total       int    `json:"total"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Snapshot is the externally visible progress of one session. Each write
// replaces the previous one.
type Snapshot struct {
	SessionID       string      `json:"session_id"`
	CurrentPhase    state.Phase `json:"current_phase"`
	StepName        string      `json:"step_name"`
	Message         string      `json:"message"`
	ProgressPercent int         `json:"progress_percent"`
	UpdatedAt       time.Time   `json:"updated_at"`
	PhaseInfo       PhaseInfo   `json:"phase_info"`
}

type Store interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context, sessionID string) (*Snapshot, error)
}

// ForPhase builds a snapshot from the fixed per-phase table.
func ForPhase(sessionID string, phase state.Phase, message string, now time.Time) Snapshot {
	info := phase.Info()
	return Snapshot{
		SessionID:       sessionID,
		CurrentPhase:    phase,
		StepName:        info.Name,
		Message:         message,
		ProgressPercent: info.Percent,
		UpdatedAt:       now.UTC(),
		PhaseInfo: PhaseInfo{
			Step:        info.Step,
			Total:       info.Total,
			Name:        info.Name,
			Description: info.Description,
		},
	}
}

var unsafeID = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SafeID maps a session id onto a single path or key segment.
func SafeID(sessionID string) (string, error) {
	id := unsafeID.ReplaceAllString(strings.TrimSpace(sessionID), "_")
	id = strings.Trim(id, ".")
	if id == "" {
		return "", fmt.Errorf("progress: empty session id")
	}
	return id, nil
}

// Multi writes to every store and reads from the first that has the session.
type Multi struct {
	log    *logger.Logger
	stores []Store
}

func NewMulti(log *logger.Logger, stores ...Store) *Multi {
	kept := make([]Store, 0, len(stores))
	for _, s := range stores {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &Multi{log: log.With("service", "ProgressStore"), stores: kept}
}

// Save succeeds when at least one backend accepted the snapshot.
func (m *Multi) Save(ctx context.Context, snap Snapshot) error {
	var errs []error
	for _, s := range m.stores {
		if err := s.Save(ctx, snap); err != nil {
			m.log.Warn("progress write failed", "session_id", snap.SessionID, "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 && len(errs) == len(m.stores) {
		return errors.Join(errs...)
	}
	return nil
}

func (m *Multi) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	var last error
	for _, s := range m.stores {
		snap, err := s.Load(ctx, sessionID)
		if err == nil {
			return snap, nil
		}
		last = err
	}
	if last == nil {
		last = fmt.Errorf("progress: no stores configured")
	}
	return nil, last
}
