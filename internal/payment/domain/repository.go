package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type HistoryFilter struct {
	UserID string
	Status Status
	Method string
	Limit  int
	Offset int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	FindByOrderID(ctx context.Context, db *gorm.DB, orderID string) (*Payment, error)
	// CompareAndSwap persists payment when the stored row still has
	// expectedStatus and expectedVersion, bumping the version.
	CompareAndSwap(ctx context.Context, db *gorm.DB, payment *Payment, expectedStatus Status, expectedVersion int64) (bool, error)
	ListByUser(ctx context.Context, db *gorm.DB, filter HistoryFilter) ([]Payment, int64, error)
	// InSettlement reports whether a settlement item references the payment.
	InSettlement(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
}
