package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// FailedJob is the durable copy of a job that exhausted its attempts. The
// Redis failed set is trimmed by retention; this row is not.
type FailedJob struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	JobID     string         `gorm:"column:job_id;not null;uniqueIndex" json:"job_id"`
	Stage     string         `gorm:"column:stage;not null;index" json:"stage"`
	UserID    string         `gorm:"column:user_id;not null;index" json:"user_id"`
	Attempts  int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	Error     string         `gorm:"column:error" json:"error,omitempty"`
	Payload   datatypes.JSON `gorm:"column:payload" json:"payload"`
	FailedAt  time.Time      `gorm:"column:failed_at;not null;index" json:"failed_at"`
	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

func (FailedJob) TableName() string { return "failed_job" }

func (f *FailedJob) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}
