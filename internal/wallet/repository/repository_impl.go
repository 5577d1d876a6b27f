package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/payflow/internal/wallet/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertWallet(ctx context.Context, db *gorm.DB, wallet *domain.Wallet) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(wallet)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByUserID(ctx context.Context, db *gorm.DB, userID string) (*domain.Wallet, error) {
	var wallet domain.Wallet
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, balance, pending_balance, withdrawable_balance, total_earned, total_withdrawn, last_updated_at, created_at
		 FROM wallets WHERE user_id = ?`,
		userID,
	).Scan(&wallet).Error
	if err != nil {
		return nil, err
	}
	if wallet.ID == 0 {
		return nil, nil
	}
	return &wallet, nil
}

func (r *repo) ApplyDelta(ctx context.Context, db *gorm.DB, userID string, delta domain.Delta, at time.Time) (bool, error) {
	balance := delta.Pending + delta.Withdrawable
	res := db.WithContext(ctx).Exec(
		`UPDATE wallets
		 SET pending_balance = pending_balance + ?,
		     withdrawable_balance = withdrawable_balance + ?,
		     balance = balance + ?,
		     total_earned = total_earned + ?,
		     total_withdrawn = total_withdrawn + ?,
		     last_updated_at = ?
		 WHERE user_id = ?
		   AND pending_balance + ? >= 0
		   AND withdrawable_balance + ? >= 0
		   AND total_earned + ? >= 0
		   AND total_withdrawn + ? >= 0`,
		delta.Pending,
		delta.Withdrawable,
		balance,
		delta.Earned,
		delta.Withdrawn,
		at,
		userID,
		delta.Pending,
		delta.Withdrawable,
		delta.Earned,
		delta.Withdrawn,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertTransaction(ctx context.Context, db *gorm.DB, txn *domain.Transaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO wallet_transactions (id, user_id, type, bucket, amount, description, reference_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID,
		txn.UserID,
		txn.Type,
		txn.Bucket,
		txn.Amount,
		txn.Description,
		txn.ReferenceID,
		txn.CreatedAt,
	).Error
}

func (r *repo) ListTransactions(ctx context.Context, db *gorm.DB, filter domain.TransactionFilter) ([]domain.Transaction, int64, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("user_id = ?", filter.UserID)
	if filter.Type != "" {
		stmt = stmt.Where("type = ?", filter.Type)
	}

	var total int64
	if err := stmt.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []domain.Transaction
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
