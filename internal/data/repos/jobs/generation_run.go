package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/learnmate-backend/internal/domain"
	"github.com/yungbote/learnmate-backend/internal/pkg/dbctx"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

type GenerationRunRepo interface {
	Create(dbc dbctx.Context, runs []*types.GenerationRun) ([]*types.GenerationRun, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.GenerationRun, error)
	GetLatestBySession(dbc dbctx.Context, sessionID string) (*types.GenerationRun, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error)
}

type generationRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGenerationRunRepo(db *gorm.DB, baseLog *logger.Logger) GenerationRunRepo {
	return &generationRunRepo{
		db:  db,
		log: baseLog.With("repo", "GenerationRunRepo"),
	}
}

func (r *generationRunRepo) Create(dbc dbctx.Context, runs []*types.GenerationRun) ([]*types.GenerationRun, error) {
	if len(runs) == 0 {
		return []*types.GenerationRun{}, nil
	}
	if err := dbc.Conn(r.db).Create(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *generationRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.GenerationRun, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var run types.GenerationRun
	err := dbc.Conn(r.db).
		Where("id = ?", id).
		Limit(1).
		Find(&run).Error
	if err != nil {
		return nil, err
	}
	if run.ID == uuid.Nil {
		return nil, nil
	}
	return &run, nil
}

func (r *generationRunRepo) GetLatestBySession(dbc dbctx.Context, sessionID string) (*types.GenerationRun, error) {
	if sessionID == "" {
		return nil, nil
	}
	var run types.GenerationRun
	err := dbc.Conn(r.db).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Limit(1).
		Find(&run).Error
	if err != nil {
		return nil, err
	}
	if run.ID == uuid.Nil {
		return nil, nil
	}
	return &run, nil
}

func (r *generationRunRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return dbc.Conn(r.db).
		Model(&types.GenerationRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// UpdateFieldsUnlessStatus reports whether a row was updated. Terminal runs are
// protected by passing their statuses as disallowed.
func (r *generationRunRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}

	q := dbc.Conn(r.db).
		Model(&types.GenerationRun{}).
		Where("id = ?", id)
	if len(disallowedStatuses) == 1 {
		q = q.Where("status <> ?", disallowedStatuses[0])
	} else if len(disallowedStatuses) > 1 {
		q = q.Where("status NOT IN ?", disallowedStatuses)
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
