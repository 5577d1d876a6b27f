package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/payflow/pkg/db/pagination"
	"gorm.io/gorm"
)

// Service is the wallet ledger. Mutations take an optional transaction so
// callers can commit them together with their own record changes; a nil tx
// runs the mutation in its own transaction.
type Service interface {
	GetWallet(ctx context.Context, userID string) (*Wallet, error)
	GetOrCreate(ctx context.Context, tx *gorm.DB, userID string) (*Wallet, error)
	Credit(ctx context.Context, tx *gorm.DB, req Mutation) (*Wallet, error)
	Debit(ctx context.Context, tx *gorm.DB, req Mutation) (*Wallet, error)
	Transfer(ctx context.Context, tx *gorm.DB, req Transfer) (*Wallet, error)
	RecordEntry(ctx context.Context, tx *gorm.DB, req Entry) (*Transaction, error)
	ListTransactions(ctx context.Context, req ListTransactionsRequest) (*ListTransactionsResponse, error)
}

type Mutation struct {
	UserID      string
	Amount      int64
	Bucket      Bucket
	Type        TransactionType
	ReferenceID string
	Description string
}

type Transfer struct {
	UserID      string
	Amount      int64
	From        Bucket
	To          Bucket
	ReferenceID string
	Description string
}

// Entry is a ledger-only record with no balance effect.
type Entry struct {
	UserID      string
	Amount      int64
	Type        TransactionType
	ReferenceID string
	Description string
}

type ListTransactionsRequest struct {
	UserID string
	Type   TransactionType
	pagination.Pagination
}

type ListTransactionsResponse struct {
	Transactions []Transaction      `json:"transactions"`
	PageInfo     pagination.PageInfo `json:"page_info"`
}

var (
	ErrInvalidUserID          = errors.New("invalid_user_id")
	ErrInvalidAmount          = errors.New("invalid_amount")
	ErrInvalidBucket          = errors.New("invalid_bucket")
	ErrInvalidTransactionType = errors.New("invalid_transaction_type")
	ErrInsufficientBalance    = errors.New("insufficient_balance")
	ErrWalletNotFound         = errors.New("wallet_not_found")
)
