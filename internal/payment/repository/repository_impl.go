package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payflow/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const paymentColumns = `id, job_id, worker_id, business_id, order_id, order_name, amount, fee_amount, fee_rate_bps, net_amount, status,
	payment_key, pg_transaction_id, method, customer_name, customer_email, customer_mobile_phone,
	approved_at, failed_at, fail_reason, cancelled_at, cancel_reason, cancel_amount, refunded_amount,
	refunded_net_amount, receipt, version, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Create(payment).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	var payment domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments WHERE id = ?`,
		id,
	).Scan(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, nil
	}
	return &payment, nil
}

func (r *repo) FindByOrderID(ctx context.Context, db *gorm.DB, orderID string) (*domain.Payment, error) {
	var payment domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = ?`,
		orderID,
	).Scan(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, nil
	}
	return &payment, nil
}

func (r *repo) InSettlement(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM settlement_items WHERE payment_id = ?`,
		id,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) CompareAndSwap(ctx context.Context, db *gorm.DB, payment *domain.Payment, expectedStatus domain.Status, expectedVersion int64) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("id = ? AND status = ? AND version = ?", payment.ID, expectedStatus, expectedVersion).
		Updates(map[string]any{
			"status":              payment.Status,
			"payment_key":         payment.PaymentKey,
			"pg_transaction_id":   payment.PgTransactionID,
			"method":              payment.Method,
			"approved_at":         payment.ApprovedAt,
			"failed_at":           payment.FailedAt,
			"fail_reason":         payment.FailReason,
			"cancelled_at":        payment.CancelledAt,
			"cancel_reason":       payment.CancelReason,
			"cancel_amount":       payment.CancelAmount,
			"refunded_amount":     payment.RefundedAmount,
			"refunded_net_amount": payment.RefundedNetAmount,
			"receipt":             payment.Receipt,
			"version":             expectedVersion + 1,
			"updated_at":          payment.UpdatedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	payment.Version = expectedVersion + 1
	return true, nil
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, filter domain.HistoryFilter) ([]domain.Payment, int64, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("(business_id = ? OR worker_id = ?)", filter.UserID, filter.UserID)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Method != "" {
		stmt = stmt.Where("method = ?", filter.Method)
	}

	var total int64
	if err := stmt.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []domain.Payment
	err := stmt.
		Order("created_at desc, id desc").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
