package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	WorkerID string
	Status   Status
	Limit    int
	Offset   int
}

// TransitionUpdate carries the columns written together with a status change.
type TransitionUpdate struct {
	At              time.Time
	ProcessedAt     *time.Time
	FailReason      string
	PayoutReference string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, settlement *Settlement) error
	InsertItems(ctx context.Context, db *gorm.DB, items []Item) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Settlement, error)
	ListItems(ctx context.Context, db *gorm.DB, settlementID snowflake.ID) ([]Item, error)
	ListSettleablePayments(ctx context.Context, db *gorm.DB, jobID, workerID string) ([]SettleablePayment, error)
	// CountRevokedItems counts items whose payment is no longer COMPLETED or
	// has been partly refunded since the settlement was created.
	CountRevokedItems(ctx context.Context, db *gorm.DB, settlementID snowflake.ID) (int64, error)
	// Transition moves a settlement from one status to another only if it is
	// still in from. It reports whether the row changed.
	Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, update TransitionUpdate) (bool, error)
	ListDue(ctx context.Context, db *gorm.DB, now time.Time, afterID snowflake.ID, limit int) ([]Settlement, error)
	ListStaleProcessing(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]Settlement, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Settlement, int64, error)
}
