package curriculum

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Curriculum is one generated document. Document holds the full JSON body as
// returned to clients; the other columns are for lookup.
type Curriculum struct {
	ID                  uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID              uuid.UUID      `gorm:"type:uuid;index" json:"user_id"`
	SessionID           string         `gorm:"column:session_id;not null;index" json:"session_id"`
	Topic               string         `gorm:"column:topic;not null" json:"topic"`
	Title               string         `gorm:"column:title" json:"title"`
	Level               string         `gorm:"column:level" json:"level"`
	DurationWeeks       int            `gorm:"column:duration_weeks;not null;default:0" json:"duration_weeks"`
	TotalEstimatedHours int            `gorm:"column:total_estimated_hours;not null;default:0" json:"total_estimated_hours"`
	Fallback            bool           `gorm:"column:fallback;not null;default:false;index" json:"fallback"`
	Document            datatypes.JSON `gorm:"column:document" json:"document"`
	CreatedAt           time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Curriculum) TableName() string { return "curriculum" }

func (c *Curriculum) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
