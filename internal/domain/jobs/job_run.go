package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RunStatusQueued    = "queued"
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// GenerationRun tracks one asynchronous curriculum generation, whether it runs
// in-process or as a durable workflow.
type GenerationRun struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID      `gorm:"type:uuid;index" json:"user_id"`
	SessionID    string         `gorm:"column:session_id;not null;index" json:"session_id"`
	JobType      string         `gorm:"column:job_type;not null;index" json:"job_type"`
	Status       string         `gorm:"column:status;not null;index" json:"status"`
	Stage        string         `gorm:"column:stage" json:"stage"`
	Progress     int            `gorm:"column:progress;not null;default:0" json:"progress"`
	WorkflowID   string         `gorm:"column:workflow_id" json:"workflow_id,omitempty"`
	CurriculumID *uuid.UUID     `gorm:"type:uuid;column:curriculum_id" json:"curriculum_id,omitempty"`
	Error        string         `gorm:"column:error" json:"error,omitempty"`
	Payload      datatypes.JSON `gorm:"column:payload" json:"payload"`
	CreatedAt    time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (GenerationRun) TableName() string { return "generation_run" }

func (r *GenerationRun) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
