package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payflow/internal/clock"
	"github.com/smallbiznis/payflow/internal/notification/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const deliveryTimeout = 5 * time.Second

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle `optional:"true"`
	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      domain.Repository
	Clock     clock.Clock
}

// Service persists notifications in the background. Notify returns
// immediately; failures are logged and dropped.
type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock

	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup
}

func New(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	svc := &Service{
		db:    p.DB,
		log:   p.Log.Named("notification.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: clk,
	}
	if p.Lifecycle != nil {
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return svc.Close(ctx)
			},
		})
	}
	return svc
}

func (s *Service) Notify(ctx context.Context, n domain.Notification) {
	if strings.TrimSpace(n.UserID) == "" || n.Type == "" {
		s.log.Warn("notification.dropped", zap.Error(domain.ErrInvalidNotification), zap.String("type", string(n.Type)))
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.log.Warn("notification.dropped_after_close", zap.String("type", string(n.Type)))
		return
	}
	s.pending.Add(1)
	s.mu.Unlock()

	n.ID = s.genID.Generate()
	n.CreatedAt = s.clock.Now()

	go func() {
		defer s.pending.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("notification.panic", zap.Any("panic", r))
			}
		}()

		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
		defer cancel()

		if err := s.repo.Insert(dctx, s.db, &n); err != nil {
			s.log.Warn("notification.delivery.failed",
				zap.String("user_id", n.UserID),
				zap.String("type", string(n.Type)),
				zap.String("related_id", n.RelatedID),
				zap.Error(err),
			)
			return
		}
		s.log.Debug("notification.delivered",
			zap.String("user_id", n.UserID),
			zap.String("type", string(n.Type)),
		)
	}()
}

func (s *Service) List(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListByUser(ctx, s.db, strings.TrimSpace(userID), limit)
}

// Flush waits for in-flight deliveries.
func (s *Service) Flush() {
	s.pending.Wait()
}

// Close stops accepting notifications and waits for in-flight deliveries
// until ctx is done.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
