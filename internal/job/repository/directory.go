package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/payflow/internal/job/domain"
	"gorm.io/gorm"
)

type directory struct{}

func Provide() domain.Directory {
	return &directory{}
}

const jobProjection = `SELECT j.id, j.business_id, j.status, j.completed_at,
	COALESCE((
		SELECT ws.worker_id FROM work_sessions ws
		WHERE ws.job_id = j.id
		ORDER BY ws.started_at DESC, ws.id DESC
		LIMIT 1
	), '') AS worker_id
	FROM jobs j`

func (d *directory) GetJob(ctx context.Context, db *gorm.DB, jobID string) (*domain.Job, error) {
	var job domain.Job
	err := db.WithContext(ctx).Raw(jobProjection+` WHERE j.id = ?`, jobID).Scan(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == "" {
		return nil, nil
	}
	return &job, nil
}

func (d *directory) ListCompletedWithoutSettlement(ctx context.Context, db *gorm.DB, from, to time.Time, afterID string, limit int) ([]domain.Job, error) {
	var jobs []domain.Job
	err := db.WithContext(ctx).Raw(
		jobProjection+`
		WHERE j.status = ?
		  AND j.completed_at >= ?
		  AND j.completed_at < ?
		  AND j.id > ?
		  AND NOT EXISTS (SELECT 1 FROM settlements s WHERE s.job_id = j.id)
		ORDER BY j.id ASC
		LIMIT ?`,
		domain.StatusCompleted,
		from,
		to,
		afterID,
		limit,
	).Scan(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}
