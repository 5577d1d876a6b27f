package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payflow/internal/clock"
	obsmetrics "github.com/smallbiznis/payflow/internal/observability/metrics"
	"github.com/smallbiznis/payflow/internal/wallet/domain"
	"github.com/smallbiznis/payflow/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	Clock   clock.Clock
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    domain.Repository
	clock   clock.Clock
	metrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("wallet.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		clock:   clk,
		metrics: p.Metrics,
	}
}

func (s *Service) GetWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	return s.GetOrCreate(ctx, s.db, userID)
}

// GetOrCreate returns the wallet for userID, inserting a zeroed one on first access.
func (s *Service) GetOrCreate(ctx context.Context, tx *gorm.DB, userID string) (*domain.Wallet, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidUserID
	}
	if tx == nil {
		tx = s.db
	}

	wallet, err := s.repo.FindByUserID(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if wallet != nil {
		return wallet, nil
	}

	now := s.clock.Now()
	created, err := s.repo.InsertWallet(ctx, tx, &domain.Wallet{
		ID:            s.genID.Generate(),
		UserID:        userID,
		LastUpdatedAt: now,
		CreatedAt:     now,
	})
	if err != nil {
		return nil, fmt.Errorf("insert wallet: %w", err)
	}
	if created {
		s.log.Debug("wallet.created", zap.String("user_id", userID))
	}

	wallet, err = s.repo.FindByUserID(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, domain.ErrWalletNotFound
	}
	return wallet, nil
}

func (s *Service) Credit(ctx context.Context, tx *gorm.DB, req domain.Mutation) (*domain.Wallet, error) {
	if err := validateMutation(req); err != nil {
		return nil, err
	}

	delta := bucketDelta(req.Bucket, req.Amount)
	if req.Type == domain.TransactionTypePayment {
		delta.Earned = req.Amount
	}
	entry := s.newEntry(req.UserID, req.Type, req.Bucket, req.Amount, req.ReferenceID, req.Description)

	return s.apply(ctx, tx, "credit", req.UserID, delta, entry)
}

func (s *Service) Debit(ctx context.Context, tx *gorm.DB, req domain.Mutation) (*domain.Wallet, error) {
	if err := validateMutation(req); err != nil {
		return nil, err
	}

	delta := bucketDelta(req.Bucket, -req.Amount)
	entry := s.newEntry(req.UserID, req.Type, req.Bucket, -req.Amount, req.ReferenceID, req.Description)

	return s.apply(ctx, tx, "debit", req.UserID, delta, entry)
}

// Transfer moves an amount between the two balance buckets of one wallet.
func (s *Service) Transfer(ctx context.Context, tx *gorm.DB, req domain.Transfer) (*domain.Wallet, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, domain.ErrInvalidUserID
	}
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if !req.From.IsBalance() || !req.To.IsBalance() || req.From == req.To {
		return nil, domain.ErrInvalidBucket
	}

	delta := bucketDelta(req.From, -req.Amount)
	to := bucketDelta(req.To, req.Amount)
	delta.Pending += to.Pending
	delta.Withdrawable += to.Withdrawable

	outType, inType := domain.TransactionTypePendingRelease, domain.TransactionTypeSettlement
	if req.From == domain.BucketWithdrawable {
		outType, inType = domain.TransactionTypeSettlement, domain.TransactionTypePendingRelease
	}

	entries := []domain.Transaction{
		s.newEntry(req.UserID, outType, req.From, -req.Amount, req.ReferenceID, req.Description),
		s.newEntry(req.UserID, inType, req.To, req.Amount, req.ReferenceID, req.Description),
	}

	return s.apply(ctx, tx, "transfer", req.UserID, delta, entries...)
}

// RecordEntry appends a ledger-only entry without touching any balance.
func (s *Service) RecordEntry(ctx context.Context, tx *gorm.DB, req domain.Entry) (*domain.Transaction, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, domain.ErrInvalidUserID
	}
	if req.Type != domain.TransactionTypeFee {
		return nil, domain.ErrInvalidTransactionType
	}
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	entry := s.newEntry(req.UserID, req.Type, domain.BucketNone, req.Amount, req.ReferenceID, req.Description)
	err := s.withTx(ctx, tx, func(tx *gorm.DB) error {
		if _, err := s.GetOrCreate(ctx, tx, req.UserID); err != nil {
			return err
		}
		return s.repo.InsertTransaction(ctx, tx, &entry)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordLedgerEntry(ctx, string(entry.Type))
	return &entry, nil
}

func (s *Service) ListTransactions(ctx context.Context, req domain.ListTransactionsRequest) (*domain.ListTransactionsResponse, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, domain.ErrInvalidUserID
	}
	if req.Type != "" && !req.Type.Valid() {
		return nil, domain.ErrInvalidTransactionType
	}

	page := pagination.Normalize(req.Pagination)
	items, total, err := s.repo.ListTransactions(ctx, s.db, domain.TransactionFilter{
		UserID: userID,
		Type:   req.Type,
		Limit:  page.Limit,
		Offset: page.Offset(),
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Transaction{}
	}

	return &domain.ListTransactionsResponse{
		Transactions: items,
		PageInfo:     pagination.BuildPageInfo(page, total),
	}, nil
}

func (s *Service) apply(ctx context.Context, tx *gorm.DB, op, userID string, delta domain.Delta, entries ...domain.Transaction) (*domain.Wallet, error) {
	userID = strings.TrimSpace(userID)
	var wallet *domain.Wallet
	err := s.withTx(ctx, tx, func(tx *gorm.DB) error {
		if _, err := s.GetOrCreate(ctx, tx, userID); err != nil {
			return err
		}

		ok, err := s.repo.ApplyDelta(ctx, tx, userID, delta, s.clock.Now())
		if err != nil {
			return fmt.Errorf("apply wallet delta: %w", err)
		}
		if !ok {
			return domain.ErrInsufficientBalance
		}

		for i := range entries {
			if err := s.repo.InsertTransaction(ctx, tx, &entries[i]); err != nil {
				return fmt.Errorf("insert wallet transaction: %w", err)
			}
		}

		wallet, err = s.repo.FindByUserID(ctx, tx, userID)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			s.log.Warn("wallet."+op+".insufficient_balance",
				zap.String("user_id", userID),
				zap.Int64("pending_delta", delta.Pending),
				zap.Int64("withdrawable_delta", delta.Withdrawable),
			)
		}
		return nil, err
	}

	for _, entry := range entries {
		s.metrics.RecordLedgerEntry(ctx, string(entry.Type))
	}
	return wallet, nil
}

func (s *Service) withTx(ctx context.Context, tx *gorm.DB, fn func(tx *gorm.DB) error) error {
	if tx != nil {
		return fn(tx)
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

func (s *Service) newEntry(userID string, typ domain.TransactionType, bucket domain.Bucket, amount int64, referenceID, description string) domain.Transaction {
	return domain.Transaction{
		ID:          s.genID.Generate(),
		UserID:      strings.TrimSpace(userID),
		Type:        typ,
		Bucket:      bucket,
		Amount:      amount,
		Description: description,
		ReferenceID: referenceID,
		CreatedAt:   s.clock.Now(),
	}
}

func validateMutation(req domain.Mutation) error {
	if strings.TrimSpace(req.UserID) == "" {
		return domain.ErrInvalidUserID
	}
	if req.Amount <= 0 {
		return domain.ErrInvalidAmount
	}
	if !req.Bucket.IsBalance() {
		return domain.ErrInvalidBucket
	}
	if !req.Type.Valid() || req.Type == domain.TransactionTypeFee {
		return domain.ErrInvalidTransactionType
	}
	return nil
}

func bucketDelta(bucket domain.Bucket, amount int64) domain.Delta {
	switch bucket {
	case domain.BucketPending:
		return domain.Delta{Pending: amount}
	case domain.BucketWithdrawable:
		return domain.Delta{Withdrawable: amount}
	default:
		return domain.Delta{}
	}
}
