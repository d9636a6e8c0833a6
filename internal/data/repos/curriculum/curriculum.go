package curriculum

import (
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/learnmate-backend/internal/domain"
	"github.com/yungbote/learnmate-backend/internal/pkg/dbctx"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

type CurriculumRepo interface {
	Create(dbc dbctx.Context, rows []*types.Curriculum) ([]*types.Curriculum, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Curriculum, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.Curriculum, error)
	ListBySession(dbc dbctx.Context, sessionID string) ([]*types.Curriculum, error)
	SessionsWithCurriculum(dbc dbctx.Context, sessionIDs []string) (map[string]bool, error)
}

type curriculumRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCurriculumRepo(db *gorm.DB, baseLog *logger.Logger) CurriculumRepo {
	return &curriculumRepo{
		db:  db,
		log: baseLog.With("repo", "CurriculumRepo"),
	}
}

func (r *curriculumRepo) Create(dbc dbctx.Context, rows []*types.Curriculum) ([]*types.Curriculum, error) {
	if len(rows) == 0 {
		return []*types.Curriculum{}, nil
	}
	if err := dbc.Conn(r.db).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GetByID returns (nil, nil) when the row does not exist.
func (r *curriculumRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Curriculum, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var out []*types.Curriculum
	if err := dbc.Conn(r.db).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *curriculumRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.Curriculum, error) {
	out := []*types.Curriculum{}
	if userID == uuid.Nil {
		return out, nil
	}
	q := dbc.Conn(r.db).Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListBySession returns every document generated for a session, newest first.
func (r *curriculumRepo) ListBySession(dbc dbctx.Context, sessionID string) ([]*types.Curriculum, error) {
	out := []*types.Curriculum{}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return out, nil
	}
	if err := dbc.Conn(r.db).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *curriculumRepo) SessionsWithCurriculum(dbc dbctx.Context, sessionIDs []string) (map[string]bool, error) {
	out := map[string]bool{}
	if len(sessionIDs) == 0 {
		return out, nil
	}
	var found []string
	if err := dbc.Conn(r.db).
		Model(&types.Curriculum{}).
		Distinct("session_id").
		Where("session_id IN ?", sessionIDs).
		Pluck("session_id", &found).Error; err != nil {
		return nil, err
	}
	for _, id := range found {
		out[id] = true
	}
	return out, nil
}
