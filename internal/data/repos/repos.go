package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/learnmate-backend/internal/data/repos/curriculum"
	"github.com/yungbote/learnmate-backend/internal/data/repos/jobs"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

type CurriculumRepo = curriculum.CurriculumRepo
type GenerationRunRepo = jobs.GenerationRunRepo

func NewCurriculumRepo(db *gorm.DB, baseLog *logger.Logger) CurriculumRepo {
	return curriculum.NewCurriculumRepo(db, baseLog)
}

func NewGenerationRunRepo(db *gorm.DB, baseLog *logger.Logger) GenerationRunRepo {
	return jobs.NewGenerationRunRepo(db, baseLog)
}
