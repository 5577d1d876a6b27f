package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// Record is the row owned by the job domain. Payflow only reads it.
type Record struct {
	ID          string     `gorm:"type:varchar(64);primaryKey"`
	BusinessID  string     `gorm:"type:varchar(64);not null;index"`
	Title       string     `gorm:"type:text"`
	Status      Status     `gorm:"type:varchar(32);not null"`
	CompletedAt *time.Time `gorm:"index"`
	CreatedAt   time.Time  `gorm:"not null"`
}

func (Record) TableName() string { return "jobs" }

type WorkSession struct {
	ID        string     `gorm:"type:varchar(64);primaryKey"`
	JobID     string     `gorm:"type:varchar(64);not null;index"`
	WorkerID  string     `gorm:"type:varchar(64);not null"`
	StartedAt time.Time  `gorm:"not null"`
	EndedAt   *time.Time
}

func (WorkSession) TableName() string { return "work_sessions" }

// Job is the projection settlements need: the job and the worker of its
// most recent work session. WorkerID is empty when no session exists.
type Job struct {
	ID          string
	BusinessID  string
	Status      Status
	CompletedAt *time.Time
	WorkerID    string
}

func (j Job) IsCompleted() bool {
	return j.Status == StatusCompleted
}

// Directory is the read boundary to the external job domain.
type Directory interface {
	GetJob(ctx context.Context, db *gorm.DB, jobID string) (*Job, error)
	// ListCompletedWithoutSettlement returns completed jobs in [from, to) that
	// no settlement references yet. Results are ordered by id and start after
	// afterID, so callers page by passing the last id they saw.
	ListCompletedWithoutSettlement(ctx context.Context, db *gorm.DB, from, to time.Time, afterID string, limit int) ([]Job, error)
}
