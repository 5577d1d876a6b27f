package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusFailed:     {StatusPending},
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Settlement folds a worker's completed payments for one job into a single
// scheduled move from pending to withdrawable balance.
type Settlement struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	WorkerID        string       `json:"worker_id" gorm:"type:varchar(64);not null;index"`
	JobID           string       `json:"job_id" gorm:"type:varchar(64);not null;index"`
	Amount          int64        `json:"amount" gorm:"not null"`
	FeeAmount       int64        `json:"fee_amount" gorm:"not null"`
	NetAmount       int64        `json:"net_amount" gorm:"not null"`
	Status          Status       `json:"status" gorm:"type:varchar(32);not null;index:ix_settlements_status_scheduled,priority:1"`
	ScheduledAt     time.Time    `json:"scheduled_at" gorm:"not null;index:ix_settlements_status_scheduled,priority:2"`
	ProcessedAt     *time.Time   `json:"processed_at,omitempty"`
	FailReason      string       `json:"fail_reason,omitempty" gorm:"type:text"`
	PayoutReference string       `json:"payout_reference,omitempty" gorm:"type:varchar(128)"`
	CreatedAt       time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time    `json:"updated_at" gorm:"not null"`

	Items []Item `json:"items,omitempty" gorm:"-"`
}

func (Settlement) TableName() string { return "settlements" }

// Item is one payment folded into a settlement. PaymentID is unique so a
// payment can be settled at most once.
type Item struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	SettlementID snowflake.ID `json:"settlement_id" gorm:"not null;index"`
	PaymentID    snowflake.ID `json:"payment_id" gorm:"not null;uniqueIndex:ux_settlement_items_payment_id"`
	JobID        string       `json:"job_id" gorm:"type:varchar(64);not null"`
	Amount       int64        `json:"amount" gorm:"not null"`
	FeeAmount    int64        `json:"fee_amount" gorm:"not null"`
	NetAmount    int64        `json:"net_amount" gorm:"not null"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null"`
}

func (Item) TableName() string { return "settlement_items" }

// SettleablePayment is the slice of a payment row a settlement needs.
type SettleablePayment struct {
	ID        snowflake.ID
	JobID     string
	Amount    int64
	FeeAmount int64
	NetAmount int64
}
