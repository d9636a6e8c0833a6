package jobs

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/learnmate-backend/internal/data/repos/testutil"
	types "github.com/yungbote/learnmate-backend/internal/domain"
)

func TestGenerationRunRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := testutil.Ctx(tx)
	repo := NewGenerationRunRepo(db, testutil.Logger(t))

	now := time.Now().UTC()
	first := &types.GenerationRun{
		SessionID: "s-1",
		JobType:   "curriculum_generate",
		Status:    types.RunStatusSucceeded,
		CreatedAt: now.Add(-time.Hour),
		UpdatedAt: now.Add(-time.Hour),
	}
	second := &types.GenerationRun{
		SessionID: "s-1",
		JobType:   "curriculum_generate",
		Status:    types.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := repo.Create(dbc, []*types.GenerationRun{first, second}); err != nil {
		t.Fatalf("create: %v", err)
	}

	latest, err := repo.GetLatestBySession(dbc, "s-1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == nil || latest.ID != second.ID {
		t.Fatalf("expected latest run %s, got %+v", second.ID, latest)
	}

	curID := uuid.New()
	if err := repo.UpdateFields(dbc, second.ID, map[string]interface{}{
		"status":        types.RunStatusSucceeded,
		"progress":      100,
		"curriculum_id": curID,
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := repo.GetByID(dbc, second.ID)
	if err != nil || got == nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != types.RunStatusSucceeded || got.Progress != 100 {
		t.Fatalf("unexpected run: %+v", got)
	}
	if got.CurriculumID == nil || *got.CurriculumID != curID {
		t.Fatalf("curriculum id not stored: %+v", got.CurriculumID)
	}

	ok, err := repo.UpdateFieldsUnlessStatus(dbc, second.ID, []string{types.RunStatusSucceeded, types.RunStatusFailed}, map[string]interface{}{
		"status": types.RunStatusRunning,
	})
	if err != nil {
		t.Fatalf("guarded update: %v", err)
	}
	if ok {
		t.Fatalf("terminal run must not be updated")
	}

	none, err := repo.GetByID(dbc, uuid.New())
	if err != nil || none != nil {
		t.Fatalf("expected nil for missing id, got %+v, %v", none, err)
	}
}
