package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Type string

const (
	TypePaymentCompleted    Type = "PAYMENT_COMPLETED"
	TypePaymentCancelled    Type = "PAYMENT_CANCELLED"
	TypeSettlementScheduled Type = "SETTLEMENT_SCHEDULED"
	TypeSettlementCompleted Type = "SETTLEMENT_COMPLETED"
	TypeSettlementFailed    Type = "SETTLEMENT_FAILED"
)

type Notification struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID    string       `json:"user_id" gorm:"type:varchar(64);not null;index"`
	Type      Type         `json:"type" gorm:"type:varchar(32);not null"`
	Title     string       `json:"title" gorm:"type:text;not null"`
	Message   string       `json:"message" gorm:"type:text"`
	RelatedID string       `json:"related_id" gorm:"type:varchar(64)"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
}

func (Notification) TableName() string { return "notifications" }

// Notifier delivers user notifications. Delivery is best effort and never
// reports failure to the caller.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, n *Notification) error
	ListByUser(ctx context.Context, db *gorm.DB, userID string, limit int) ([]Notification, error)
}

var ErrInvalidNotification = errors.New("invalid_notification")

// NoOp drops every notification.
type NoOp struct{}

func (NoOp) Notify(context.Context, Notification) {}
