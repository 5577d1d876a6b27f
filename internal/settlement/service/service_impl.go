package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payflow/internal/clock"
	"github.com/smallbiznis/payflow/internal/config"
	jobdomain "github.com/smallbiznis/payflow/internal/job/domain"
	notificationdomain "github.com/smallbiznis/payflow/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/payflow/internal/observability/metrics"
	"github.com/smallbiznis/payflow/internal/settlement/domain"
	"github.com/smallbiznis/payflow/internal/settlement/payout"
	walletdomain "github.com/smallbiznis/payflow/internal/wallet/domain"
	"github.com/smallbiznis/payflow/pkg/db"
	"github.com/smallbiznis/payflow/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	defaultConcurrency = 4
	defaultBatchSize   = 100
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Jobs       jobdomain.Directory
	Wallet     walletdomain.Service
	Payout     payout.BankTransfer
	Policy     *config.PolicyHolder
	Config     config.Config               `optional:"true"`
	Notifier   notificationdomain.Notifier `optional:"true"`
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        domain.Repository
	jobs        jobdomain.Directory
	wallet      walletdomain.Service
	payout      payout.BankTransfer
	policy      *config.PolicyHolder
	notifier    notificationdomain.Notifier
	clock       clock.Clock
	obsMetrics  *obsmetrics.Metrics
	concurrency int
	batchSize   int
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
	concurrency := p.Config.Scheduler.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	batchSize := p.Config.Scheduler.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("settlement.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		jobs:        p.Jobs,
		wallet:      p.Wallet,
		payout:      p.Payout,
		policy:      p.Policy,
		notifier:    notifier,
		clock:       clk,
		obsMetrics:  p.ObsMetrics,
		concurrency: concurrency,
		batchSize:   batchSize,
	}
}

func (s *Service) CreateSettlement(ctx context.Context, jobID string) (*domain.Settlement, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, domain.ErrInvalidJob
	}

	job, err := s.jobs.GetJob(ctx, s.db, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, domain.ErrJobNotFound
	}
	if !job.IsCompleted() {
		return nil, domain.ErrJobNotCompleted
	}
	if job.WorkerID == "" {
		return nil, domain.ErrNoWorkSession
	}

	now := s.clock.Now()
	settlement := &domain.Settlement{
		ID:          s.genID.Generate(),
		WorkerID:    job.WorkerID,
		JobID:       job.ID,
		Status:      domain.StatusPending,
		ScheduledAt: now.Add(s.policy.Get().SettlementDelay),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payments, err := s.repo.ListSettleablePayments(ctx, tx, job.ID, job.WorkerID)
		if err != nil {
			return err
		}
		if len(payments) == 0 {
			return domain.ErrNoCompletedPayments
		}

		items := make([]domain.Item, 0, len(payments))
		for _, p := range payments {
			settlement.Amount += p.Amount
			settlement.FeeAmount += p.FeeAmount
			settlement.NetAmount += p.NetAmount
			items = append(items, domain.Item{
				ID:           s.genID.Generate(),
				SettlementID: settlement.ID,
				PaymentID:    p.ID,
				JobID:        p.JobID,
				Amount:       p.Amount,
				FeeAmount:    p.FeeAmount,
				NetAmount:    p.NetAmount,
				CreatedAt:    now,
			})
		}

		if err := s.repo.Insert(ctx, tx, settlement); err != nil {
			return err
		}
		if err := s.repo.InsertItems(ctx, tx, items); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrAlreadySettled
			}
			return err
		}
		settlement.Items = items
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("settlement.created",
		zap.String("settlement_id", settlement.ID.String()),
		zap.String("job_id", settlement.JobID),
		zap.String("worker_id", settlement.WorkerID),
		zap.Int64("net_amount", settlement.NetAmount),
		zap.Int("items", len(settlement.Items)),
		zap.Time("scheduled_at", settlement.ScheduledAt),
	)
	s.notify(ctx, settlement, notificationdomain.TypeSettlementScheduled, "Payout scheduled",
		fmt.Sprintf("%d will become withdrawable on %s", settlement.NetAmount, settlement.ScheduledAt.Format(time.DateOnly)))

	return settlement, nil
}

// ProcessSettlement pays a PENDING settlement out. A failed bank transfer is
// an outcome, not an error: the settlement is returned FAILED with its reason.
func (s *Service) ProcessSettlement(ctx context.Context, id snowflake.ID) (*domain.Settlement, error) {
	settlement, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if settlement == nil {
		return nil, domain.ErrSettlementNotFound
	}
	if settlement.Status != domain.StatusPending {
		return nil, domain.ErrNotPending
	}

	update := domain.TransitionUpdate{PayoutReference: settlement.PayoutReference}
	if err := s.transition(ctx, s.db, settlement, domain.StatusProcessing, update); err != nil {
		if errors.Is(err, errLostRace) {
			return nil, domain.ErrNotPending
		}
		return nil, err
	}

	// a payout reference means the bank already paid; only the wallet side is left
	reference := settlement.PayoutReference
	if reference == "" {
		revoked, err := s.repo.CountRevokedItems(ctx, s.db, settlement.ID)
		if err != nil {
			failed, failErr := s.fail(ctx, settlement, "settled payments could not be checked")
			return failed, errors.Join(fmt.Errorf("count revoked items: %w", err), failErr)
		}
		if revoked > 0 {
			return s.fail(ctx, settlement, domain.ReasonPaymentRevoked)
		}

		reference, err = s.payout.Transfer(ctx, payout.Request{
			SettlementID: settlement.ID,
			WorkerID:     settlement.WorkerID,
			Amount:       settlement.NetAmount,
		})
		if err != nil {
			return s.fail(ctx, settlement, fmt.Sprintf("bank transfer failed: %v", err))
		}
	} else {
		s.log.Info("settlement.process.payout_reused",
			zap.String("settlement_id", settlement.ID.String()),
			zap.String("payout_reference", reference),
		)
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.transition(ctx, tx, settlement, domain.StatusCompleted, domain.TransitionUpdate{
			ProcessedAt:     &now,
			PayoutReference: reference,
		}); err != nil {
			return err
		}
		_, err := s.wallet.Transfer(ctx, tx, walletdomain.Transfer{
			UserID:      settlement.WorkerID,
			Amount:      settlement.NetAmount,
			From:        walletdomain.BucketPending,
			To:          walletdomain.BucketWithdrawable,
			ReferenceID: settlement.ID.String(),
			Description: "settlement for job " + settlement.JobID,
		})
		return err
	})
	if err != nil {
		// the row is still PROCESSING because the transaction rolled back
		settlement.Status = domain.StatusProcessing
		settlement.PayoutReference = reference
		s.log.Error("settlement.process.reconcile_required",
			zap.String("settlement_id", settlement.ID.String()),
			zap.String("payout_reference", reference),
			zap.Error(err),
		)
		failed, failErr := s.fail(ctx, settlement, fmt.Sprintf("wallet transfer failed: %v", err))
		if failErr != nil {
			return nil, errors.Join(err, failErr)
		}
		return failed, err
	}

	s.obsMetrics.RecordSettlementOutcome(ctx, string(domain.StatusCompleted))
	s.log.Info("settlement.completed",
		zap.String("settlement_id", settlement.ID.String()),
		zap.String("worker_id", settlement.WorkerID),
		zap.Int64("net_amount", settlement.NetAmount),
	)
	s.notify(ctx, settlement, notificationdomain.TypeSettlementCompleted, "Payout completed",
		fmt.Sprintf("%d is now withdrawable", settlement.NetAmount))
	return settlement, nil
}

func (s *Service) ProcessDueSettlements(ctx context.Context) (domain.BatchResult, error) {
	var processed, failed atomic.Int64
	now := s.clock.Now()
	var afterID snowflake.ID

	for {
		if err := ctx.Err(); err != nil {
			return result(&processed, &failed), err
		}

		due, err := s.repo.ListDue(ctx, s.db, now, afterID, s.batchSize)
		if err != nil {
			return result(&processed, &failed), fmt.Errorf("list due settlements: %w", err)
		}
		if len(due) == 0 {
			break
		}
		afterID = due[len(due)-1].ID

		var g errgroup.Group
		g.SetLimit(s.concurrency)
		for _, item := range due {
			id := item.ID
			g.Go(func() error {
				res, err := s.ProcessSettlement(ctx, id)
				if errors.Is(err, domain.ErrNotPending) {
					return nil
				}
				processed.Add(1)
				if err != nil || res == nil || res.Status == domain.StatusFailed {
					failed.Add(1)
					if err != nil {
						s.log.Warn("settlement.batch.item_failed",
							zap.String("settlement_id", id.String()),
							zap.Error(err),
						)
					}
				}
				return nil
			})
		}
		_ = g.Wait()

		if len(due) < s.batchSize {
			break
		}
	}

	res := result(&processed, &failed)
	s.log.Info("settlement.batch.finished",
		zap.Int("processed", res.Processed),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (s *Service) CreateWeeklySettlements(ctx context.Context) (domain.SweepResult, error) {
	now := s.clock.Now()
	from := now.Add(-s.policy.Get().WeeklyWindow)

	var res domain.SweepResult
	afterID := ""
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		jobs, err := s.jobs.ListCompletedWithoutSettlement(ctx, s.db, from, now, afterID, s.batchSize)
		if err != nil {
			return res, fmt.Errorf("list completed jobs: %w", err)
		}
		if len(jobs) == 0 {
			break
		}
		afterID = jobs[len(jobs)-1].ID
		res.Scanned += len(jobs)

		for _, job := range jobs {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			if _, err := s.CreateSettlement(ctx, job.ID); err != nil {
				res.Failed++
				s.log.Warn("settlement.sweep.job_failed",
					zap.String("job_id", job.ID),
					zap.Error(err),
				)
				continue
			}
			res.Created++
		}

		if len(jobs) < s.batchSize {
			break
		}
	}

	s.log.Info("settlement.sweep.finished",
		zap.Int("scanned", res.Scanned),
		zap.Int("created", res.Created),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (s *Service) RetrySettlement(ctx context.Context, id snowflake.ID) (*domain.Settlement, error) {
	settlement, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if settlement == nil {
		return nil, domain.ErrSettlementNotFound
	}
	if settlement.Status != domain.StatusFailed {
		return nil, domain.ErrNotFailed
	}

	update := domain.TransitionUpdate{PayoutReference: settlement.PayoutReference}
	if err := s.transition(ctx, s.db, settlement, domain.StatusPending, update); err != nil {
		if errors.Is(err, errLostRace) {
			return nil, domain.ErrNotFailed
		}
		return nil, err
	}
	s.log.Info("settlement.retry",
		zap.String("settlement_id", id.String()),
		zap.String("payout_reference", settlement.PayoutReference),
	)

	return s.ProcessSettlement(ctx, id)
}

// RecoverStaleProcessing fails settlements stuck in PROCESSING longer than
// olderThan. They are left for an explicit retry.
func (s *Service) RecoverStaleProcessing(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	stale, err := s.repo.ListStaleProcessing(ctx, s.db, s.clock.Now().Add(-olderThan), s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale settlements: %w", err)
	}

	recovered := 0
	for i := range stale {
		settlement := &stale[i]
		if _, err := s.fail(ctx, settlement, domain.ReasonProcessingInterrupted); err != nil {
			if errors.Is(err, errLostRace) {
				continue
			}
			return recovered, err
		}
		recovered++
	}
	if recovered > 0 {
		s.log.Warn("settlement.recovered_stale", zap.Int("count", recovered))
	}
	return recovered, nil
}

func (s *Service) GetSettlement(ctx context.Context, id snowflake.ID) (*domain.Settlement, error) {
	settlement, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if settlement == nil {
		return nil, domain.ErrSettlementNotFound
	}
	items, err := s.repo.ListItems(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	settlement.Items = items
	return settlement, nil
}

func (s *Service) ListSettlements(ctx context.Context, req domain.ListSettlementRequest) (*domain.ListSettlementResponse, error) {
	if req.Status != "" && !req.Status.Valid() {
		return nil, domain.ErrInvalidStatus
	}
	page := pagination.Normalize(req.Pagination)
	items, total, err := s.repo.List(ctx, s.db, domain.ListFilter{
		WorkerID: strings.TrimSpace(req.WorkerID),
		Status:   req.Status,
		Limit:    page.Limit,
		Offset:   page.Offset(),
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Settlement{}
	}
	return &domain.ListSettlementResponse{
		Settlements: items,
		PageInfo:    pagination.BuildPageInfo(page, total),
	}, nil
}

var errLostRace = errors.New("settlement_transition_lost")

func (s *Service) transition(ctx context.Context, tx *gorm.DB, settlement *domain.Settlement, to domain.Status, update domain.TransitionUpdate) error {
	from := settlement.Status
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("settlement %s: %s -> %s: %w", settlement.ID, from, to, domain.ErrInvalidStatus)
	}
	update.At = s.clock.Now()
	ok, err := s.repo.Transition(ctx, tx, settlement.ID, from, to, update)
	if err != nil {
		return err
	}
	if !ok {
		return errLostRace
	}

	settlement.Status = to
	settlement.ProcessedAt = update.ProcessedAt
	settlement.FailReason = update.FailReason
	settlement.PayoutReference = update.PayoutReference
	settlement.UpdatedAt = update.At
	obsmetrics.Scheduler().IncSettlementTransition(string(from), string(to))
	return nil
}

func (s *Service) fail(ctx context.Context, settlement *domain.Settlement, reason string) (*domain.Settlement, error) {
	ctx = context.WithoutCancel(ctx)
	update := domain.TransitionUpdate{
		FailReason:      reason,
		PayoutReference: settlement.PayoutReference,
	}
	if err := s.transition(ctx, s.db, settlement, domain.StatusFailed, update); err != nil {
		return nil, err
	}
	s.obsMetrics.RecordSettlementOutcome(ctx, string(domain.StatusFailed))
	s.log.Warn("settlement.failed",
		zap.String("settlement_id", settlement.ID.String()),
		zap.String("worker_id", settlement.WorkerID),
		zap.String("reason", reason),
	)
	s.notify(ctx, settlement, notificationdomain.TypeSettlementFailed, "Payout delayed", reason)
	return settlement, nil
}

func (s *Service) notify(ctx context.Context, settlement *domain.Settlement, typ notificationdomain.Type, title, message string) {
	s.notifier.Notify(ctx, notificationdomain.Notification{
		UserID:    settlement.WorkerID,
		Type:      typ,
		Title:     title,
		Message:   message,
		RelatedID: settlement.ID.String(),
	})
}

func result(processed, failed *atomic.Int64) domain.BatchResult {
	return domain.BatchResult{
		Processed: int(processed.Load()),
		Failed:    int(failed.Load()),
	}
}
