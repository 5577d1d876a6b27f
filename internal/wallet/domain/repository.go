package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Delta is a signed change applied to a wallet row in one statement.
type Delta struct {
	Pending      int64
	Withdrawable int64
	Earned       int64
	Withdrawn    int64
}

type TransactionFilter struct {
	UserID string
	Type   TransactionType
	Limit  int
	Offset int
}

type Repository interface {
	InsertWallet(ctx context.Context, db *gorm.DB, wallet *Wallet) (bool, error)
	FindByUserID(ctx context.Context, db *gorm.DB, userID string) (*Wallet, error)
	// ApplyDelta returns false when any guarded column would go negative.
	ApplyDelta(ctx context.Context, db *gorm.DB, userID string, delta Delta, at time.Time) (bool, error)
	InsertTransaction(ctx context.Context, db *gorm.DB, txn *Transaction) error
	ListTransactions(ctx context.Context, db *gorm.DB, filter TransactionFilter) ([]Transaction, int64, error)
}
