package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/payflow/internal/payment/domain"
	"github.com/smallbiznis/payflow/internal/settlement/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const settlementColumns = `id, worker_id, job_id, amount, fee_amount, net_amount, status, scheduled_at,
	processed_at, fail_reason, payout_reference, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, settlement *domain.Settlement) error {
	return db.WithContext(ctx).Create(settlement).Error
}

func (r *repo) InsertItems(ctx context.Context, db *gorm.DB, items []domain.Item) error {
	if len(items) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&items).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Settlement, error) {
	var settlement domain.Settlement
	err := db.WithContext(ctx).Raw(
		`SELECT `+settlementColumns+` FROM settlements WHERE id = ?`,
		id,
	).Scan(&settlement).Error
	if err != nil {
		return nil, err
	}
	if settlement.ID == 0 {
		return nil, nil
	}
	return &settlement, nil
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, settlementID snowflake.ID) ([]domain.Item, error) {
	var items []domain.Item
	err := db.WithContext(ctx).Raw(
		`SELECT id, settlement_id, payment_id, job_id, amount, fee_amount, net_amount, created_at
		 FROM settlement_items WHERE settlement_id = ? ORDER BY id`,
		settlementID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListSettleablePayments(ctx context.Context, db *gorm.DB, jobID, workerID string) ([]domain.SettleablePayment, error) {
	var payments []domain.SettleablePayment
	err := db.WithContext(ctx).Raw(
		`SELECT p.id, p.job_id, p.amount, p.fee_amount, p.net_amount
		 FROM payments p
		 WHERE p.job_id = ?
		   AND p.worker_id = ?
		   AND p.status = ?
		   AND NOT EXISTS (SELECT 1 FROM settlement_items si WHERE si.payment_id = p.id)
		 ORDER BY p.id`,
		jobID,
		workerID,
		paymentdomain.StatusCompleted,
	).Scan(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repo) CountRevokedItems(ctx context.Context, db *gorm.DB, settlementID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM settlement_items si
		 JOIN payments p ON p.id = si.payment_id
		 WHERE si.settlement_id = ?
		   AND (p.status <> ? OR p.refunded_amount > 0)`,
		settlementID,
		paymentdomain.StatusCompleted,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.Status, update domain.TransitionUpdate) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Settlement{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":           to,
			"processed_at":     update.ProcessedAt,
			"fail_reason":      update.FailReason,
			"payout_reference": update.PayoutReference,
			"updated_at":       update.At,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListDue(ctx context.Context, db *gorm.DB, now time.Time, afterID snowflake.ID, limit int) ([]domain.Settlement, error) {
	var items []domain.Settlement
	err := db.WithContext(ctx).Raw(
		`SELECT `+settlementColumns+`
		 FROM settlements
		 WHERE status = ? AND scheduled_at <= ? AND id > ?
		 ORDER BY id
		 LIMIT ?`,
		domain.StatusPending,
		now,
		afterID,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListStaleProcessing(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]domain.Settlement, error) {
	var items []domain.Settlement
	err := db.WithContext(ctx).Raw(
		`SELECT `+settlementColumns+`
		 FROM settlements
		 WHERE status = ? AND updated_at < ?
		 ORDER BY id
		 LIMIT ?`,
		domain.StatusProcessing,
		before,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Settlement, int64, error) {
	stmt := db.WithContext(ctx).Model(&domain.Settlement{})
	if filter.WorkerID != "" {
		stmt = stmt.Where("worker_id = ?", filter.WorkerID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}

	var total int64
	if err := stmt.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []domain.Settlement
	err := stmt.
		Order("scheduled_at desc, id desc").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
