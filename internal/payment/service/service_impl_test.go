package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/payflow/internal/clock"
	"github.com/smallbiznis/payflow/internal/fee"
	gatewaydomain "github.com/smallbiznis/payflow/internal/gateway/domain"
	"github.com/smallbiznis/payflow/internal/lock"
	notificationdomain "github.com/smallbiznis/payflow/internal/notification/domain"
	"github.com/smallbiznis/payflow/internal/payment/domain"
	"github.com/smallbiznis/payflow/internal/payment/repository"
	settlementdomain "github.com/smallbiznis/payflow/internal/settlement/domain"
	"github.com/smallbiznis/payflow/internal/testutil"
	walletdomain "github.com/smallbiznis/payflow/internal/wallet/domain"
	walletrepo "github.com/smallbiznis/payflow/internal/wallet/repository"
	walletservice "github.com/smallbiznis/payflow/internal/wallet/service"
	"github.com/smallbiznis/payflow/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Provider() string { return "mock" }

func (m *mockGateway) RequestConfirmation(ctx context.Context, req gatewaydomain.ConfirmRequest) (*gatewaydomain.Confirmation, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*gatewaydomain.Confirmation)
	return res, args.Error(1)
}

func (m *mockGateway) RequestCancellation(ctx context.Context, req gatewaydomain.CancelRequest) (*gatewaydomain.Cancellation, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*gatewaydomain.Cancellation)
	return res, args.Error(1)
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []notificationdomain.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n notificationdomain.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

func (r *recordingNotifier) count(typ notificationdomain.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, item := range r.items {
		if item.Type == typ {
			n++
		}
	}
	return n
}

type fixture struct {
	svc      domain.Service
	db       *gorm.DB
	gateway  *mockGateway
	wallet   walletdomain.Service
	locker   lock.Locker
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.OpenDB(t,
		&domain.Payment{},
		&walletdomain.Wallet{},
		&walletdomain.Transaction{},
		&settlementdomain.Settlement{},
		&settlementdomain.Item{},
	)
	node := testutil.Node(t)
	clk := clock.NewFakeClock(testutil.Epoch)

	wallet := walletservice.New(walletservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  walletrepo.Provide(),
		Clock: clk,
	})
	gw := &mockGateway{}
	locker := lock.NewLocalLocker()
	notifier := &recordingNotifier{}

	svc := NewService(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     repository.Provide(),
		Wallet:   wallet,
		Gateway:  gw,
		Fees:     fee.StaticSource{RateBps: 500},
		Locker:   locker,
		Notifier: notifier,
		Clock:    clk,
	})
	return &fixture{svc: svc, db: db, gateway: gw, wallet: wallet, locker: locker, notifier: notifier}
}

func (f *fixture) create(t *testing.T, amount int64) *domain.CreatePaymentResponse {
	t.Helper()
	res, err := f.svc.CreatePayment(context.Background(), domain.CreatePaymentRequest{
		JobID:        "job-1",
		WorkerID:     "worker-1",
		BusinessID:   "business-1",
		Amount:       amount,
		OrderName:    "Shift 2025-03-03",
		CustomerName: "Acme",
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) confirm(t *testing.T, created *domain.CreatePaymentResponse) {
	t.Helper()
	f.gateway.On("RequestConfirmation", mock.Anything, mock.MatchedBy(func(req gatewaydomain.ConfirmRequest) bool {
		return req.OrderID == created.OrderID
	})).Return(&gatewaydomain.Confirmation{
		PaymentKey:    "pk_" + created.OrderID,
		OrderID:       created.OrderID,
		TransactionID: "tx_" + created.OrderID,
		Method:        "CARD",
		TotalAmount:   created.Amount,
		ApprovedAt:    testutil.Epoch,
		Raw:           []byte(`{"status":"DONE"}`),
	}, nil).Once()

	_, err := f.svc.ConfirmPayment(context.Background(), domain.ConfirmPaymentRequest{
		PaymentKey: "pk_" + created.OrderID,
		OrderID:    created.OrderID,
		Amount:     created.Amount,
	})
	require.NoError(t, err)
}

func (f *fixture) expectCancel(amount int64) {
	f.gateway.On("RequestCancellation", mock.Anything, mock.MatchedBy(func(req gatewaydomain.CancelRequest) bool {
		return req.CancelAmount != nil && *req.CancelAmount == amount
	})).Return(&gatewaydomain.Cancellation{
		CancelAmount: amount,
		CancelledAt:  testutil.Epoch.Add(time.Hour),
	}, nil).Once()
}

func (f *fixture) entries(t *testing.T, typ walletdomain.TransactionType) []walletdomain.Transaction {
	t.Helper()
	var items []walletdomain.Transaction
	require.NoError(t, f.db.Where("type = ?", typ).Order("id").Find(&items).Error)
	return items
}

func (f *fixture) payment(t *testing.T, created *domain.CreatePaymentResponse) *domain.Payment {
	t.Helper()
	p, err := f.svc.GetPayment(context.Background(), created.PaymentID)
	require.NoError(t, err)
	return p
}

func TestCreatePaymentComputesFeeWithoutWalletEffect(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, 20000)

	assert.Contains(t, created.OrderID, "ord_")
	p := f.payment(t, created)
	assert.Equal(t, domain.StatusPending, p.Status)
	assert.Equal(t, int64(1000), p.FeeAmount)
	assert.Equal(t, int64(19000), p.NetAmount)

	var count int64
	require.NoError(t, f.db.Model(&walletdomain.Transaction{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreatePaymentValidates(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreatePayment(context.Background(), domain.CreatePaymentRequest{
		JobID: "job-1", WorkerID: "worker-1", BusinessID: "business-1", Amount: 0,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.svc.CreatePayment(context.Background(), domain.CreatePaymentRequest{
		JobID: "job-1", BusinessID: "business-1", Amount: 100,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidWorker)
}

func TestConfirmPaymentCreditsWorkerAndRecordsFee(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, 20000)
	f.confirm(t, created)

	p := f.payment(t, created)
	assert.Equal(t, domain.StatusCompleted, p.Status)
	assert.Equal(t, "CARD", p.Method)
	assert.Equal(t, "tx_"+created.OrderID, p.PgTransactionID)
	require.NotNil(t, p.ApprovedAt)

	wallet, err := f.wallet.GetWallet(context.Background(), "worker-1")
	require.NoError(t, err)
	assert.Equal(t, int64(19000), wallet.PendingBalance)
	assert.Equal(t, int64(19000), wallet.TotalEarned)

	payments := f.entries(t, walletdomain.TransactionTypePayment)
	require.Len(t, payments, 1)
	assert.Equal(t, int64(19000), payments[0].Amount)

	fees := f.entries(t, walletdomain.TransactionTypeFee)
	require.Len(t, fees, 1)
	assert.Equal(t, "business-1", fees[0].UserID)
	assert.Equal(t, int64(1000), fees[0].Amount)

	assert.Equal(t, 2, f.notifier.count(notificationdomain.TypePaymentCompleted))
}

func TestConfirmPaymentAmountGuard(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, 20000)

	_, err := f.svc.ConfirmPayment(context.Background(), domain.ConfirmPaymentRequest{
		PaymentKey: "pk_1", OrderID: created.OrderID, Amount: 19999,
	})
	assert.ErrorIs(t, err, domain.ErrAmountMismatch)
	assert.Equal(t, domain.StatusPending, f.payment(t, created).Status)
	f.gateway.AssertNotCalled(t, "RequestConfirmation", mock.Anything, mock.Anything)
}

func TestConfirmPaymentUnknownOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ConfirmPayment(context.Background(), domain.ConfirmPaymentRequest{
		PaymentKey: "pk_1", OrderID: "ord_missing", Amount: 100,
	})
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
}

func TestConfirmPaymentRejectionIsSideEffectFree(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{name: "rejected", err: &gatewaydomain.RejectedError{Code: "REJECT_CARD_COMPANY", Message: "card declined"}},
		{name: "timeout", err: gatewaydomain.ErrGatewayTimeout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			created := f.create(t, 20000)
			f.gateway.On("RequestConfirmation", mock.Anything, mock.Anything).Return(nil, tc.err).Once()

			_, err := f.svc.ConfirmPayment(context.Background(), domain.ConfirmPaymentRequest{
				PaymentKey: "pk_1", OrderID: created.OrderID, Amount: 20000,
			})
			assert.ErrorIs(t, err, gatewaydomain.ErrGatewayRejected)

			p := f.payment(t, created)
			assert.Equal(t, domain.StatusFailed, p.Status)
			assert.NotNil(t, p.FailedAt)
			assert.NotEmpty(t, p.FailReason)

			var count int64
			require.NoError(t, f.db.Model(&walletdomain.Transaction{}).Count(&count).Error)
			assert.Zero(t, count)
		})
	}
}

func TestConfirmPaymentGatewayAmountMismatchFails(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, 20000)
	f.gateway.On("RequestConfirmation", mock.Anything, mock.Anything).Return(&gatewaydomain.Confirmation{
		OrderID:     created.OrderID,
		TotalAmount: 10000,
	}, nil).Once()

	_, err := f.svc.ConfirmPayment(context.Background(), domain.ConfirmPaymentRequest{
		PaymentKey: "pk_1", OrderID: created.OrderID, Amount: 20000,
	})
	assert.ErrorIs(t, err, domain.ErrAmountMismatch)
	assert.Equal(t, domain.StatusFailed, f.payment(t, created).Status)
	assert.Empty(t, f.entries(t, walletdomain.TransactionTypePayment))
}

func TestConfirmPaymentTwiceIsRejected(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, 20000)
	f.confirm(t, created)

	_, err := f.svc.ConfirmPayment(context.Background(), domain.ConfirmPaymentRequest{
		PaymentKey: "pk_1", OrderID: created.OrderID, Amount: 20000,
	})
	assert.ErrorIs(t, err, domain.ErrPaymentNotPending)
	assert.Len(t, f.entries(t, walletdomain.TransactionTypePayment), 1)
}

func TestConfirmPaymentBusy(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, 20000)

	_, ok, err := f.locker.TryLock(context.Background(), "payment:"+created.PaymentID.String(), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.ConfirmPayment(context.Background(), domain.ConfirmPaymentRequest{
		PaymentKey: "pk_1", OrderID: created.OrderID, Amount: 20000,
	})
	assert.ErrorIs(t, err, domain.ErrPaymentBusy)
}

func TestCancelAfterCompletionReversesNet(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, 20000)
	f.confirm(t, created)
	f.expectCancel(20000)

	res, err := f.svc.CancelPayment(context.Background(), domain.CancelPaymentRequest{
		PaymentID:    created.PaymentID,
		CancelReason: "job cancelled",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, res.Status)
	assert.Equal(t, int64(20000), res.CancelAmount)

	refunds := f.entries(t, walletdomain.TransactionTypeRefund)
	require.Len(t, refunds, 1)
	assert.Equal(t, int64(-19000), refunds[0].Amount)

	wallet, err := f.wallet.GetWallet(context.Background(), "worker-1")
	require.NoError(t, err)
	assert.Zero(t, wallet.PendingBalance)

	p := f.payment(t, created)
	assert.Equal(t, int64(20000), p.RefundedAmount)
	assert.Equal(t, int64(19000), p.RefundedNetAmount)
	assert.Equal(t, 2, f.notifier.count(notificationdomain.TypePaymentCancelled))

	_, err = f.svc.CancelPayment(context.Background(), domain.CancelPaymentRequest{
		PaymentID: created.PaymentID, CancelReason: "again",
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyCancelled)
}

func TestPartialRefundsAreCapped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t, 20000)
	f.confirm(t, created)

	partial := int64(5000)
	f.expectCancel(partial)
	res, err := f.svc.CancelPayment(ctx, domain.CancelPaymentRequest{
		PaymentID: created.PaymentID, CancelReason: "short shift", CancelAmount: &partial,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPartialRefunded, res.Status)

	tooMuch := int64(15001)
	_, err = f.svc.CancelPayment(ctx, domain.CancelPaymentRequest{
		PaymentID: created.PaymentID, CancelReason: "more", CancelAmount: &tooMuch,
	})
	assert.ErrorIs(t, err, domain.ErrCancelAmountExceeded)

	f.expectCancel(15000)
	res, err = f.svc.CancelPayment(ctx, domain.CancelPaymentRequest{
		PaymentID: created.PaymentID, CancelReason: "rest",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, res.Status)

	refunds := f.entries(t, walletdomain.TransactionTypeRefund)
	require.Len(t, refunds, 2)
	assert.Equal(t, int64(-4750), refunds[0].Amount)
	assert.Equal(t, int64(-14250), refunds[1].Amount)

	wallet, err := f.wallet.GetWallet(ctx, "worker-1")
	require.NoError(t, err)
	assert.Zero(t, wallet.PendingBalance)
}

func TestCancelPendingPayment(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, 20000)

	_, err := f.svc.CancelPayment(context.Background(), domain.CancelPaymentRequest{
		PaymentID: created.PaymentID, CancelReason: "changed mind",
	})
	assert.ErrorIs(t, err, domain.ErrNotCompletedYet)

	zero := int64(0)
	_, err = f.svc.CancelPayment(context.Background(), domain.CancelPaymentRequest{
		PaymentID: created.PaymentID, CancelReason: "x", CancelAmount: &zero,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCancelAmount)
}

func TestCancelWithoutPendingBalanceNeverReachesGateway(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t, 20000)
	f.confirm(t, created)

	_, err := f.wallet.Transfer(ctx, nil, walletdomain.Transfer{
		UserID: "worker-1", Amount: 19000, From: walletdomain.BucketPending, To: walletdomain.BucketWithdrawable,
	})
	require.NoError(t, err)

	_, err = f.svc.CancelPayment(ctx, domain.CancelPaymentRequest{
		PaymentID: created.PaymentID, CancelReason: "late cancel",
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientPendingBalance)
	f.gateway.AssertNotCalled(t, "RequestCancellation", mock.Anything, mock.Anything)

	p := f.payment(t, created)
	assert.Equal(t, domain.StatusCompleted, p.Status)
	assert.Zero(t, p.RefundedAmount)
	assert.Empty(t, f.entries(t, walletdomain.TransactionTypeRefund))
}

func TestCancelRejectsPaymentInSettlement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t, 20000)
	f.confirm(t, created)

	node := testutil.Node(t)
	settlementID := node.Generate()
	require.NoError(t, f.db.Create(&settlementdomain.Settlement{
		ID:          settlementID,
		WorkerID:    "worker-1",
		JobID:       "job-1",
		Amount:      20000,
		FeeAmount:   1000,
		NetAmount:   19000,
		Status:      settlementdomain.StatusPending,
		ScheduledAt: testutil.Epoch.Add(72 * time.Hour),
		CreatedAt:   testutil.Epoch,
		UpdatedAt:   testutil.Epoch,
	}).Error)
	require.NoError(t, f.db.Create(&settlementdomain.Item{
		ID:           node.Generate(),
		SettlementID: settlementID,
		PaymentID:    created.PaymentID,
		JobID:        "job-1",
		Amount:       20000,
		FeeAmount:    1000,
		NetAmount:    19000,
		CreatedAt:    testutil.Epoch,
	}).Error)

	_, err := f.svc.CancelPayment(ctx, domain.CancelPaymentRequest{
		PaymentID: created.PaymentID, CancelReason: "job cancelled",
	})
	assert.ErrorIs(t, err, domain.ErrPaymentInSettlement)
	f.gateway.AssertNotCalled(t, "RequestCancellation", mock.Anything, mock.Anything)

	wallet, err := f.wallet.GetWallet(ctx, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, int64(19000), wallet.PendingBalance)
	assert.Equal(t, domain.StatusCompleted, f.payment(t, created).Status)
}

func TestPartialRefundUsesFeeOfCancelledAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t, 19999)
	f.confirm(t, created)

	p := f.payment(t, created)
	assert.Equal(t, int64(999), p.FeeAmount)
	assert.Equal(t, int64(500), p.FeeRateBps)

	partial := int64(10000)
	f.expectCancel(partial)
	_, err := f.svc.CancelPayment(ctx, domain.CancelPaymentRequest{
		PaymentID: created.PaymentID, CancelReason: "short shift", CancelAmount: &partial,
	})
	require.NoError(t, err)

	f.expectCancel(9999)
	_, err = f.svc.CancelPayment(ctx, domain.CancelPaymentRequest{
		PaymentID: created.PaymentID, CancelReason: "rest",
	})
	require.NoError(t, err)

	refunds := f.entries(t, walletdomain.TransactionTypeRefund)
	require.Len(t, refunds, 2)
	assert.Equal(t, int64(-9500), refunds[0].Amount)
	assert.Equal(t, int64(-9500), refunds[1].Amount)

	wallet, err := f.wallet.GetWallet(ctx, "worker-1")
	require.NoError(t, err)
	assert.Zero(t, wallet.PendingBalance)
	assert.Equal(t, int64(19000), f.payment(t, created).RefundedNetAmount)
}

func TestGetPaymentHistoryMatchesEitherParty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.create(t, 1000)
	f.create(t, 2000)
	f.confirm(t, first)

	res, err := f.svc.GetPaymentHistory(ctx, domain.HistoryRequest{
		UserID:     "business-1",
		Pagination: pagination.Pagination{Page: 1, Limit: 10},
	})
	require.NoError(t, err)
	assert.Len(t, res.Payments, 2)

	res, err = f.svc.GetPaymentHistory(ctx, domain.HistoryRequest{
		UserID: "worker-1",
		Status: domain.StatusCompleted,
	})
	require.NoError(t, err)
	require.Len(t, res.Payments, 1)
	assert.Equal(t, first.PaymentID, res.Payments[0].ID)

	_, err = f.svc.GetPaymentHistory(ctx, domain.HistoryRequest{UserID: "worker-1", Status: "BOGUS"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, domain.CanTransition(domain.StatusPending, domain.StatusCompleted))
	assert.True(t, domain.CanTransition(domain.StatusPartialRefunded, domain.StatusCancelled))
	assert.False(t, domain.CanTransition(domain.StatusFailed, domain.StatusCompleted))
	assert.False(t, domain.CanTransition(domain.StatusCancelled, domain.StatusPartialRefunded))
}
