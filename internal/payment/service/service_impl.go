package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/payflow/internal/clock"
	"github.com/smallbiznis/payflow/internal/fee"
	gatewaydomain "github.com/smallbiznis/payflow/internal/gateway/domain"
	"github.com/smallbiznis/payflow/internal/lock"
	notificationdomain "github.com/smallbiznis/payflow/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/payflow/internal/observability/metrics"
	"github.com/smallbiznis/payflow/internal/payment/domain"
	walletdomain "github.com/smallbiznis/payflow/internal/wallet/domain"
	"github.com/smallbiznis/payflow/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const paymentLockTTL = 2 * time.Minute

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Wallet     walletdomain.Service
	Gateway    gatewaydomain.Gateway
	Fees       fee.Source
	Locker     lock.Locker
	Notifier   notificationdomain.Notifier `optional:"true"`
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	wallet     walletdomain.Service
	gateway    gatewaydomain.Gateway
	fees       fee.Source
	locker     lock.Locker
	notifier   notificationdomain.Notifier
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	notifier := p.Notifier
	if notifier == nil {
		notifier = notificationdomain.NoOp{}
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		wallet:     p.Wallet,
		gateway:    p.Gateway,
		fees:       p.Fees,
		locker:     p.Locker,
		notifier:   notifier,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest) (*domain.CreatePaymentResponse, error) {
	jobID := strings.TrimSpace(req.JobID)
	if jobID == "" {
		return nil, domain.ErrInvalidJob
	}
	workerID := strings.TrimSpace(req.WorkerID)
	if workerID == "" {
		return nil, domain.ErrInvalidWorker
	}
	businessID := strings.TrimSpace(req.BusinessID)
	if businessID == "" {
		return nil, domain.ErrInvalidBusiness
	}
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	policy := s.fees.Current()
	breakdown, err := policy.Compute(req.Amount, fee.PayerRoleBusiness)
	if err != nil {
		return nil, fmt.Errorf("compute fee: %w", err)
	}

	now := s.clock.Now()
	payment := domain.Payment{
		ID:                  s.genID.Generate(),
		JobID:               jobID,
		WorkerID:            workerID,
		BusinessID:          businessID,
		OrderID:             "ord_" + ulid.Make().String(),
		OrderName:           strings.TrimSpace(req.OrderName),
		Amount:              breakdown.Gross,
		FeeAmount:           breakdown.Fee,
		FeeRateBps:          policy.RateFor(fee.PayerRoleBusiness),
		NetAmount:           breakdown.Net,
		Status:              domain.StatusPending,
		CustomerName:        strings.TrimSpace(req.CustomerName),
		CustomerEmail:       strings.TrimSpace(req.CustomerEmail),
		CustomerMobilePhone: strings.TrimSpace(req.CustomerMobilePhone),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.repo.Insert(ctx, s.db, &payment); err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}

	s.obsMetrics.RecordPaymentEvent(ctx, s.gateway.Provider(), "created")
	s.log.Info("payment.created",
		zap.String("payment_id", payment.ID.String()),
		zap.String("order_id", payment.OrderID),
		zap.String("job_id", jobID),
		zap.Int64("amount", payment.Amount),
		zap.Int64("fee_amount", payment.FeeAmount),
	)

	return &domain.CreatePaymentResponse{
		PaymentID:    payment.ID,
		OrderID:      payment.OrderID,
		Amount:       payment.Amount,
		CustomerName: payment.CustomerName,
	}, nil
}

func (s *Service) ConfirmPayment(ctx context.Context, req domain.ConfirmPaymentRequest) (*domain.ConfirmPaymentResponse, error) {
	paymentKey := strings.TrimSpace(req.PaymentKey)
	if paymentKey == "" {
		return nil, domain.ErrInvalidPaymentKey
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return nil, domain.ErrInvalidOrder
	}
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	found, err := s.repo.FindByOrderID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, domain.ErrPaymentNotFound
	}

	release, err := s.acquire(ctx, found.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	payment, err := s.repo.FindByID(ctx, s.db, found.ID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, domain.ErrPaymentNotFound
	}
	if payment.Status != domain.StatusPending {
		return nil, domain.ErrPaymentNotPending
	}
	if req.Amount != payment.Amount {
		s.log.Warn("payment.confirm.amount_mismatch",
			zap.String("payment_id", payment.ID.String()),
			zap.Int64("expected", payment.Amount),
			zap.Int64("requested", req.Amount),
		)
		return nil, domain.ErrAmountMismatch
	}

	confirmation, err := s.gateway.RequestConfirmation(ctx, gatewaydomain.ConfirmRequest{
		PaymentKey: paymentKey,
		OrderID:    payment.OrderID,
		Amount:     payment.Amount,
	})
	if err != nil {
		if !errors.Is(err, gatewaydomain.ErrGatewayRejected) {
			return nil, fmt.Errorf("confirm payment: %w", err)
		}
		if markErr := s.markFailed(ctx, payment, paymentKey, gatewaydomain.RejectionReason(err)); markErr != nil {
			return nil, errors.Join(err, markErr)
		}
		return nil, err
	}

	if confirmation.TotalAmount != payment.Amount {
		reason := fmt.Sprintf("gateway approved %d, expected %d", confirmation.TotalAmount, payment.Amount)
		s.log.Error("payment.confirm.gateway_amount_mismatch",
			zap.String("payment_id", payment.ID.String()),
			zap.Int64("expected", payment.Amount),
			zap.Int64("approved", confirmation.TotalAmount),
		)
		if markErr := s.markFailed(ctx, payment, paymentKey, reason); markErr != nil {
			return nil, errors.Join(domain.ErrAmountMismatch, markErr)
		}
		return nil, domain.ErrAmountMismatch
	}

	now := s.clock.Now()
	approvedAt := confirmation.ApprovedAt
	if approvedAt.IsZero() {
		approvedAt = now
	}

	expectedVersion := payment.Version
	payment.Status = domain.StatusCompleted
	payment.PaymentKey = paymentKey
	payment.PgTransactionID = confirmation.TransactionID
	payment.Method = confirmation.Method
	payment.ApprovedAt = &approvedAt
	payment.Receipt = datatypes.JSON(confirmation.Raw)
	payment.UpdatedAt = now

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.CompareAndSwap(ctx, tx, payment, domain.StatusPending, expectedVersion)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrConcurrentUpdate
		}

		ref := payment.ID.String()
		if payment.NetAmount > 0 {
			if _, err := s.wallet.Credit(ctx, tx, walletdomain.Mutation{
				UserID:      payment.WorkerID,
				Amount:      payment.NetAmount,
				Bucket:      walletdomain.BucketPending,
				Type:        walletdomain.TransactionTypePayment,
				ReferenceID: ref,
				Description: "payment " + payment.OrderID,
			}); err != nil {
				return fmt.Errorf("credit worker: %w", err)
			}
		}
		if payment.FeeAmount > 0 {
			if _, err := s.wallet.RecordEntry(ctx, tx, walletdomain.Entry{
				UserID:      payment.BusinessID,
				Amount:      payment.FeeAmount,
				Type:        walletdomain.TransactionTypeFee,
				ReferenceID: ref,
				Description: "platform fee " + payment.OrderID,
			}); err != nil {
				return fmt.Errorf("record fee: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error("payment.confirm.commit_failed",
			zap.String("payment_id", payment.ID.String()),
			zap.String("pg_transaction_id", payment.PgTransactionID),
			zap.Error(err),
		)
		return nil, err
	}

	s.obsMetrics.RecordPaymentEvent(ctx, s.gateway.Provider(), "completed")
	s.log.Info("payment.confirmed",
		zap.String("payment_id", payment.ID.String()),
		zap.String("order_id", payment.OrderID),
		zap.Int64("net_amount", payment.NetAmount),
	)
	s.notifyParties(ctx, payment, notificationdomain.TypePaymentCompleted, "Payment completed",
		fmt.Sprintf("Payment %s of %d completed", payment.OrderID, payment.Amount))

	return &domain.ConfirmPaymentResponse{
		PaymentID:  payment.ID,
		OrderID:    payment.OrderID,
		Status:     payment.Status,
		ApprovedAt: approvedAt,
	}, nil
}

func (s *Service) CancelPayment(ctx context.Context, req domain.CancelPaymentRequest) (*domain.CancelPaymentResponse, error) {
	if req.PaymentID == 0 {
		return nil, domain.ErrPaymentNotFound
	}
	reason := strings.TrimSpace(req.CancelReason)
	if reason == "" {
		return nil, domain.ErrInvalidCancelReason
	}
	if req.CancelAmount != nil && *req.CancelAmount <= 0 {
		return nil, domain.ErrInvalidCancelAmount
	}

	release, err := s.acquire(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	defer release()

	payment, err := s.repo.FindByID(ctx, s.db, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, domain.ErrPaymentNotFound
	}

	switch payment.Status {
	case domain.StatusCompleted, domain.StatusPartialRefunded:
	case domain.StatusCancelled, domain.StatusRefunded:
		return nil, domain.ErrAlreadyCancelled
	default:
		return nil, domain.ErrNotCompletedYet
	}

	cancelAmount := payment.RemainingAmount()
	if req.CancelAmount != nil {
		cancelAmount = *req.CancelAmount
	}
	cumulative := payment.RefundedAmount + cancelAmount
	if cumulative > payment.Amount {
		return nil, domain.ErrCancelAmountExceeded
	}

	settled, err := s.repo.InSettlement(ctx, s.db, payment.ID)
	if err != nil {
		return nil, err
	}
	if settled {
		return nil, domain.ErrPaymentInSettlement
	}

	refundNet, err := s.refundNet(payment, cancelAmount)
	if err != nil {
		return nil, err
	}
	if refundNet > 0 {
		wallet, err := s.wallet.GetWallet(ctx, payment.WorkerID)
		if err != nil {
			return nil, err
		}
		if wallet.PendingBalance < refundNet {
			s.log.Warn("payment.cancel.insufficient_pending",
				zap.String("payment_id", payment.ID.String()),
				zap.Int64("pending_balance", wallet.PendingBalance),
				zap.Int64("refund_net", refundNet),
			)
			return nil, domain.ErrInsufficientPendingBalance
		}
	}

	cancellation, err := s.gateway.RequestCancellation(ctx, gatewaydomain.CancelRequest{
		PaymentKey:     payment.PaymentKey,
		CancelReason:   reason,
		CancelAmount:   &cancelAmount,
		IdempotencyKey: fmt.Sprintf("%s-cancel-%d", payment.ID, cumulative),
	})
	if err != nil {
		s.log.Warn("payment.cancel.rejected",
			zap.String("payment_id", payment.ID.String()),
			zap.String("reason", gatewaydomain.RejectionReason(err)),
		)
		return nil, err
	}

	now := s.clock.Now()
	cancelledAt := cancellation.CancelledAt
	if cancelledAt.IsZero() {
		cancelledAt = now
	}

	prevStatus, expectedVersion := payment.Status, payment.Version
	payment.Status = domain.StatusPartialRefunded
	if cumulative == payment.Amount {
		payment.Status = domain.StatusCancelled
	}
	payment.CancelledAt = &cancelledAt
	payment.CancelReason = reason
	payment.CancelAmount = cancelAmount
	payment.RefundedAmount = cumulative
	payment.RefundedNetAmount += refundNet
	payment.UpdatedAt = now

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.CompareAndSwap(ctx, tx, payment, prevStatus, expectedVersion)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrConcurrentUpdate
		}
		settled, err := s.repo.InSettlement(ctx, tx, payment.ID)
		if err != nil {
			return err
		}
		if settled {
			return domain.ErrPaymentInSettlement
		}
		if refundNet == 0 {
			return nil
		}
		_, err = s.wallet.Debit(ctx, tx, walletdomain.Mutation{
			UserID:      payment.WorkerID,
			Amount:      refundNet,
			Bucket:      walletdomain.BucketPending,
			Type:        walletdomain.TransactionTypeRefund,
			ReferenceID: payment.ID.String(),
			Description: "refund " + payment.OrderID,
		})
		if errors.Is(err, walletdomain.ErrInsufficientBalance) {
			return domain.ErrInsufficientPendingBalance
		}
		return err
	})
	if err != nil {
		s.log.Error("payment.cancel.reconcile_required",
			zap.String("payment_id", payment.ID.String()),
			zap.String("pg_transaction_id", cancellation.TransactionID),
			zap.Int64("cancel_amount", cancelAmount),
			zap.Error(err),
		)
		return nil, err
	}

	s.obsMetrics.RecordPaymentEvent(ctx, s.gateway.Provider(), strings.ToLower(string(payment.Status)))
	s.log.Info("payment.cancelled",
		zap.String("payment_id", payment.ID.String()),
		zap.String("status", string(payment.Status)),
		zap.Int64("cancel_amount", cancelAmount),
		zap.Int64("refund_net", refundNet),
	)
	s.notifyParties(ctx, payment, notificationdomain.TypePaymentCancelled, "Payment cancelled",
		fmt.Sprintf("Payment %s: %d refunded", payment.OrderID, cancelAmount))

	return &domain.CancelPaymentResponse{
		PaymentID:    payment.ID,
		Status:       payment.Status,
		CancelledAt:  cancelledAt,
		CancelAmount: cancelAmount,
	}, nil
}

func (s *Service) GetPayment(ctx context.Context, id snowflake.ID) (*domain.Payment, error) {
	if id == 0 {
		return nil, domain.ErrPaymentNotFound
	}
	payment, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, domain.ErrPaymentNotFound
	}
	return payment, nil
}

func (s *Service) GetPaymentHistory(ctx context.Context, req domain.HistoryRequest) (*domain.HistoryResponse, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, domain.ErrInvalidUser
	}
	if req.Status != "" && !req.Status.Valid() {
		return nil, domain.ErrInvalidStatus
	}

	page := pagination.Normalize(req.Pagination)
	items, total, err := s.repo.ListByUser(ctx, s.db, domain.HistoryFilter{
		UserID: userID,
		Status: req.Status,
		Method: strings.TrimSpace(req.Method),
		Limit:  page.Limit,
		Offset: page.Offset(),
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Payment{}
	}
	return &domain.HistoryResponse{
		Payments: items,
		PageInfo: pagination.BuildPageInfo(page, total),
	}, nil
}

// refundNet is the share of the worker credit reversed by cancelling
// cancelAmount: the cancelled amount less its own fee at the rate the payment
// was charged. The refund that exhausts the payment takes whatever net is
// left so rounding can never reverse more or less than was credited.
func (s *Service) refundNet(payment *domain.Payment, cancelAmount int64) (int64, error) {
	remainingNet := payment.NetAmount - payment.RefundedNetAmount
	if payment.RefundedAmount+cancelAmount == payment.Amount {
		return remainingNet, nil
	}

	var feeShare int64
	if payment.FeeRateBps > 0 || payment.FeeAmount == 0 {
		breakdown, err := fee.Policy{RateBps: payment.FeeRateBps}.Compute(cancelAmount, fee.PayerRoleBusiness)
		if err != nil {
			return 0, domain.ErrInvalidCancelAmount
		}
		feeShare = breakdown.Fee
	} else {
		// payments without a recorded rate
		share, err := fee.Prorate(payment.FeeAmount, cancelAmount, payment.Amount)
		if err != nil {
			return 0, domain.ErrInvalidCancelAmount
		}
		feeShare = share
	}

	net := cancelAmount - feeShare
	if net > remainingNet {
		net = remainingNet
	}
	return net, nil
}

func (s *Service) markFailed(ctx context.Context, payment *domain.Payment, paymentKey, reason string) error {
	now := s.clock.Now()
	expectedVersion := payment.Version
	payment.Status = domain.StatusFailed
	payment.PaymentKey = paymentKey
	payment.FailedAt = &now
	payment.FailReason = reason
	payment.UpdatedAt = now

	ok, err := s.repo.CompareAndSwap(ctx, s.db, payment, domain.StatusPending, expectedVersion)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrConcurrentUpdate
	}

	s.obsMetrics.RecordPaymentEvent(ctx, s.gateway.Provider(), "failed")
	s.log.Warn("payment.confirm.rejected",
		zap.String("payment_id", payment.ID.String()),
		zap.String("reason", reason),
	)
	return nil
}

func (s *Service) acquire(ctx context.Context, id snowflake.ID) (func(), error) {
	key := "payment:" + id.String()
	token, ok, err := s.locker.TryLock(ctx, key, paymentLockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire payment lock: %w", err)
	}
	if !ok {
		return nil, domain.ErrPaymentBusy
	}
	return func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			s.log.Warn("payment.lock.release_failed", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

func (s *Service) notifyParties(ctx context.Context, payment *domain.Payment, typ notificationdomain.Type, title, message string) {
	for _, userID := range []string{payment.WorkerID, payment.BusinessID} {
		s.notifier.Notify(ctx, notificationdomain.Notification{
			UserID:    userID,
			Type:      typ,
			Title:     title,
			Message:   message,
			RelatedID: payment.ID.String(),
		})
	}
}
