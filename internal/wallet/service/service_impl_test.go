package service

import (
	"context"
	"sync"
	"testing"

	"github.com/smallbiznis/payflow/internal/clock"
	"github.com/smallbiznis/payflow/internal/testutil"
	"github.com/smallbiznis/payflow/internal/wallet/domain"
	"github.com/smallbiznis/payflow/internal/wallet/repository"
	"github.com/smallbiznis/payflow/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()
	db := testutil.OpenDB(t, &domain.Wallet{}, &domain.Transaction{})
	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: testutil.Node(t),
		Repo:  repository.Provide(),
		Clock: clock.NewFakeClock(testutil.Epoch),
	})
	return svc, db
}

func sumEntries(t *testing.T, db *gorm.DB, userID string, where string, args ...any) int64 {
	t.Helper()
	var total int64
	query := "SELECT COALESCE(SUM(amount), 0) FROM wallet_transactions WHERE user_id = ?"
	if where != "" {
		query += " AND " + where
	}
	require.NoError(t, db.Raw(query, append([]any{userID}, args...)...).Scan(&total).Error)
	return total
}

func TestGetWalletCreatesZeroWallet(t *testing.T) {
	svc, _ := newTestService(t)

	wallet, err := svc.GetWallet(context.Background(), "worker-1")
	require.NoError(t, err)
	assert.Equal(t, "worker-1", wallet.UserID)
	assert.Zero(t, wallet.Balance)
	assert.Zero(t, wallet.PendingBalance)
	assert.Zero(t, wallet.WithdrawableBalance)

	again, err := svc.GetWallet(context.Background(), "worker-1")
	require.NoError(t, err)
	assert.Equal(t, wallet.ID, again.ID)
}

func TestGetWalletConcurrentFirstAccess(t *testing.T) {
	svc, db := newTestService(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.GetWallet(context.Background(), "worker-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var count int64
	require.NoError(t, db.Model(&domain.Wallet{}).Where("user_id = ?", "worker-1").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCreditPaymentRaisesPendingAndEarned(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	wallet, err := svc.Credit(ctx, nil, domain.Mutation{
		UserID:      "worker-1",
		Amount:      19000,
		Bucket:      domain.BucketPending,
		Type:        domain.TransactionTypePayment,
		ReferenceID: "pay-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(19000), wallet.PendingBalance)
	assert.Equal(t, int64(19000), wallet.Balance)
	assert.Equal(t, int64(19000), wallet.TotalEarned)
	assert.Equal(t, int64(19000), sumEntries(t, db, "worker-1", "type = ?", domain.TransactionTypePayment))
}

func TestDebitRejectsOverdraftWithoutSideEffects(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	_, err := svc.Credit(ctx, nil, domain.Mutation{
		UserID: "worker-1", Amount: 500, Bucket: domain.BucketPending, Type: domain.TransactionTypePayment,
	})
	require.NoError(t, err)

	_, err = svc.Debit(ctx, nil, domain.Mutation{
		UserID: "worker-1", Amount: 501, Bucket: domain.BucketPending, Type: domain.TransactionTypeRefund,
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	wallet, err := svc.GetWallet(ctx, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), wallet.PendingBalance)

	var count int64
	require.NoError(t, db.Model(&domain.Transaction{}).Where("type = ?", domain.TransactionTypeRefund).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDebitInsideCallerTransactionRollsBack(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	_, err := svc.Credit(ctx, nil, domain.Mutation{
		UserID: "worker-1", Amount: 1000, Bucket: domain.BucketPending, Type: domain.TransactionTypePayment,
	})
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		if _, err := svc.Debit(ctx, tx, domain.Mutation{
			UserID: "worker-1", Amount: 400, Bucket: domain.BucketPending, Type: domain.TransactionTypeRefund,
		}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	wallet, err := svc.GetWallet(ctx, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), wallet.PendingBalance)
}

func TestTransferMovesPendingToWithdrawable(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	_, err := svc.Credit(ctx, nil, domain.Mutation{
		UserID: "worker-1", Amount: 10000, Bucket: domain.BucketPending, Type: domain.TransactionTypePayment,
	})
	require.NoError(t, err)

	wallet, err := svc.Transfer(ctx, nil, domain.Transfer{
		UserID:      "worker-1",
		Amount:      7000,
		From:        domain.BucketPending,
		To:          domain.BucketWithdrawable,
		ReferenceID: "stl-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3000), wallet.PendingBalance)
	assert.Equal(t, int64(7000), wallet.WithdrawableBalance)
	assert.Equal(t, int64(10000), wallet.Balance)

	var settlements []domain.Transaction
	require.NoError(t, db.Where("type = ?", domain.TransactionTypeSettlement).Find(&settlements).Error)
	require.Len(t, settlements, 1)
	assert.Equal(t, int64(7000), settlements[0].Amount)
	assert.Equal(t, domain.BucketWithdrawable, settlements[0].Bucket)
}

func TestTransferRejectsSameBucket(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Transfer(context.Background(), nil, domain.Transfer{
		UserID: "worker-1", Amount: 1, From: domain.BucketPending, To: domain.BucketPending,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidBucket)
}

func TestRecordEntryDoesNotMoveBalances(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	entry, err := svc.RecordEntry(ctx, nil, domain.Entry{
		UserID: "business-1", Amount: 1000, Type: domain.TransactionTypeFee, ReferenceID: "pay-1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.BucketNone, entry.Bucket)

	wallet, err := svc.GetWallet(ctx, "business-1")
	require.NoError(t, err)
	assert.Zero(t, wallet.Balance)

	_, err = svc.RecordEntry(ctx, nil, domain.Entry{UserID: "business-1", Amount: 1, Type: domain.TransactionTypePayment})
	assert.ErrorIs(t, err, domain.ErrInvalidTransactionType)
}

func TestLedgerConservation(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	user := "worker-1"

	steps := []func() error{
		func() error {
			_, err := svc.Credit(ctx, nil, domain.Mutation{UserID: user, Amount: 19000, Bucket: domain.BucketPending, Type: domain.TransactionTypePayment})
			return err
		},
		func() error {
			_, err := svc.Credit(ctx, nil, domain.Mutation{UserID: user, Amount: 9500, Bucket: domain.BucketPending, Type: domain.TransactionTypePayment})
			return err
		},
		func() error {
			_, err := svc.Debit(ctx, nil, domain.Mutation{UserID: user, Amount: 4750, Bucket: domain.BucketPending, Type: domain.TransactionTypeRefund})
			return err
		},
		func() error {
			_, err := svc.Transfer(ctx, nil, domain.Transfer{UserID: user, Amount: 19000, From: domain.BucketPending, To: domain.BucketWithdrawable})
			return err
		},
		func() error {
			_, err := svc.RecordEntry(ctx, nil, domain.Entry{UserID: user, Amount: 250, Type: domain.TransactionTypeFee})
			return err
		},
	}
	for _, step := range steps {
		require.NoError(t, step())
	}

	wallet, err := svc.GetWallet(ctx, user)
	require.NoError(t, err)

	assert.Equal(t, wallet.PendingBalance, sumEntries(t, db, user, "bucket = ?", domain.BucketPending))
	assert.Equal(t, wallet.WithdrawableBalance, sumEntries(t, db, user, "bucket = ?", domain.BucketWithdrawable))
	assert.Equal(t, wallet.Balance, sumEntries(t, db, user, "type <> ?", domain.TransactionTypeFee))
	assert.Equal(t, wallet.PendingBalance+wallet.WithdrawableBalance, wallet.Balance)
}

func TestListTransactionsPaginates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Credit(ctx, nil, domain.Mutation{
			UserID: "worker-1", Amount: 100, Bucket: domain.BucketPending, Type: domain.TransactionTypePayment,
		})
		require.NoError(t, err)
	}

	res, err := svc.ListTransactions(ctx, domain.ListTransactionsRequest{
		UserID:     "worker-1",
		Pagination: pagination.Pagination{Page: 1, Limit: 2},
	})
	require.NoError(t, err)
	assert.Len(t, res.Transactions, 2)
	assert.Equal(t, int64(3), res.PageInfo.Total)
	assert.True(t, res.PageInfo.HasMore)
}
