package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Bucket selects which balance of a wallet an entry touches.
type Bucket string

const (
	BucketPending      Bucket = "pending"
	BucketWithdrawable Bucket = "withdrawable"
	// BucketNone marks ledger-only entries that do not move a balance.
	BucketNone Bucket = "none"
)

func (b Bucket) IsBalance() bool {
	return b == BucketPending || b == BucketWithdrawable
}

type TransactionType string

const (
	TransactionTypePayment    TransactionType = "PAYMENT"
	TransactionTypeFee        TransactionType = "FEE"
	TransactionTypeRefund     TransactionType = "REFUND"
	TransactionTypeSettlement TransactionType = "SETTLEMENT"
	// TransactionTypePendingRelease is the pending-side leg of a settlement transfer.
	TransactionTypePendingRelease TransactionType = "PENDING_RELEASE"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypePayment,
		TransactionTypeFee,
		TransactionTypeRefund,
		TransactionTypeSettlement,
		TransactionTypePendingRelease:
		return true
	default:
		return false
	}
}

// Wallet is the per-user balance record. Balance mirrors PendingBalance + WithdrawableBalance.
type Wallet struct {
	ID                  snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID              string       `json:"user_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_wallets_user_id"`
	Balance             int64        `json:"balance" gorm:"not null;default:0"`
	PendingBalance      int64        `json:"pending_balance" gorm:"not null;default:0"`
	WithdrawableBalance int64        `json:"withdrawable_balance" gorm:"not null;default:0"`
	TotalEarned         int64        `json:"total_earned" gorm:"not null;default:0"`
	TotalWithdrawn      int64        `json:"total_withdrawn" gorm:"not null;default:0"`
	LastUpdatedAt       time.Time    `json:"last_updated_at" gorm:"not null"`
	CreatedAt           time.Time    `json:"created_at" gorm:"not null"`
}

func (Wallet) TableName() string { return "wallets" }

// Transaction is an immutable ledger entry.
type Transaction struct {
	ID          snowflake.ID    `json:"id" gorm:"primaryKey"`
	UserID      string          `json:"user_id" gorm:"type:varchar(64);not null;index:ix_wallet_transactions_user_created,priority:1"`
	Type        TransactionType `json:"type" gorm:"type:varchar(32);not null"`
	Bucket      Bucket          `json:"bucket" gorm:"type:varchar(32);not null"`
	Amount      int64           `json:"amount" gorm:"not null"`
	Description string          `json:"description" gorm:"type:text"`
	ReferenceID string          `json:"reference_id" gorm:"type:varchar(64);index"`
	CreatedAt   time.Time       `json:"created_at" gorm:"not null;index:ix_wallet_transactions_user_created,priority:2"`
}

func (Transaction) TableName() string { return "wallet_transactions" }
