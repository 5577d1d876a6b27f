package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending         Status = "PENDING"
	StatusCompleted       Status = "COMPLETED"
	StatusFailed          Status = "FAILED"
	StatusCancelled       Status = "CANCELLED"
	StatusPartialRefunded Status = "PARTIAL_REFUNDED"
	// StatusRefunded is reserved for provider-initiated full refunds.
	StatusRefunded Status = "REFUNDED"
)

var transitions = map[Status][]Status{
	StatusPending:         {StatusCompleted, StatusFailed},
	StatusCompleted:       {StatusCancelled, StatusPartialRefunded},
	StatusPartialRefunded: {StatusCancelled, StatusPartialRefunded},
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed, StatusCancelled, StatusPartialRefunded, StatusRefunded:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a payment may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Payment is a single charge from a business to a worker for a job.
type Payment struct {
	ID                  snowflake.ID   `json:"id" gorm:"primaryKey"`
	JobID               string         `json:"job_id" gorm:"type:varchar(64);not null;index"`
	WorkerID            string         `json:"worker_id" gorm:"type:varchar(64);not null;index"`
	BusinessID          string         `json:"business_id" gorm:"type:varchar(64);not null;index"`
	OrderID             string         `json:"order_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_payments_order_id"`
	OrderName           string         `json:"order_name" gorm:"type:text"`
	Amount              int64          `json:"amount" gorm:"not null"`
	FeeAmount           int64          `json:"fee_amount" gorm:"not null"`
	FeeRateBps          int64          `json:"fee_rate_bps" gorm:"not null;default:0"`
	NetAmount           int64          `json:"net_amount" gorm:"not null"`
	Status              Status         `json:"status" gorm:"type:varchar(32);not null;index"`
	PaymentKey          string         `json:"payment_key,omitempty" gorm:"type:varchar(200)"`
	PgTransactionID     string         `json:"pg_transaction_id,omitempty" gorm:"type:varchar(200)"`
	Method              string         `json:"method,omitempty" gorm:"type:varchar(32)"`
	CustomerName        string         `json:"customer_name" gorm:"type:text"`
	CustomerEmail       string         `json:"customer_email" gorm:"type:text"`
	CustomerMobilePhone string         `json:"customer_mobile_phone" gorm:"type:varchar(32)"`
	ApprovedAt          *time.Time     `json:"approved_at,omitempty"`
	FailedAt            *time.Time     `json:"failed_at,omitempty"`
	FailReason          string         `json:"fail_reason,omitempty" gorm:"type:text"`
	CancelledAt         *time.Time     `json:"cancelled_at,omitempty"`
	CancelReason        string         `json:"cancel_reason,omitempty" gorm:"type:text"`
	CancelAmount        int64          `json:"cancel_amount" gorm:"not null;default:0"`
	RefundedAmount      int64          `json:"refunded_amount" gorm:"not null;default:0"`
	RefundedNetAmount   int64          `json:"refunded_net_amount" gorm:"not null;default:0"`
	Receipt             datatypes.JSON `json:"receipt,omitempty"`
	Version             int64          `json:"version" gorm:"not null;default:0"`
	CreatedAt           time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt           time.Time      `json:"updated_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

func (p Payment) RemainingAmount() int64 {
	return p.Amount - p.RefundedAmount
}
