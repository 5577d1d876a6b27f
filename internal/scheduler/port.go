package scheduler

import (
	"context"
	"sync"
	"time"

	obsmetrics "github.com/smallbiznis/payflow/internal/observability/metrics"
	"go.uber.org/zap"
)

// Job is a named unit of periodic work.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Port runs jobs on a fixed interval.
type Port interface {
	ScheduleEvery(interval time.Duration, job Job)
}

type tickerEntry struct {
	interval time.Duration
	job      Job
}

// TickerPort runs each scheduled job in its own goroutine driven by a
// time.Ticker. Jobs fire once on start and then on every tick.
type TickerPort struct {
	log *zap.Logger

	mu      sync.Mutex
	entries []tickerEntry
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewTickerPort(log *zap.Logger) *TickerPort {
	if log == nil {
		log = zap.NewNop()
	}
	return &TickerPort{log: log.Named("scheduler.port")}
}

func (p *TickerPort) ScheduleEvery(interval time.Duration, job Job) {
	if interval <= 0 || job.Run == nil {
		p.log.Warn("scheduler.port.invalid_job", zap.String("job", job.Name), zap.Duration("interval", interval))
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	entry := tickerEntry{interval: interval, job: job}
	p.entries = append(p.entries, entry)
	if p.ctx != nil {
		p.launch(p.ctx, entry)
	}
}

// Start launches every scheduled job. The start context only bounds startup;
// loops run until Stop.
func (p *TickerPort) Start(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx != nil {
		return nil
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	for _, entry := range p.entries {
		p.launch(p.ctx, entry)
	}
	return nil
}

// Stop cancels every loop and waits for in-flight runs or ctx expiry.
func (p *TickerPort) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel := p.cancel
	p.ctx, p.cancel = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *TickerPort) launch(ctx context.Context, entry tickerEntry) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.loop(ctx, entry)
	}()
}

func (p *TickerPort) loop(ctx context.Context, entry tickerEntry) {
	ticker := time.NewTicker(entry.interval)
	defer ticker.Stop()
	nextRun := time.Now()
	schedMetrics := obsmetrics.Scheduler()

	for {
		if lag := time.Since(nextRun); lag > 0 {
			schedMetrics.ObserveRunLoopLag(lag)
		}
		if err := entry.job.Run(ctx); err != nil {
			p.log.Warn("scheduler run failed", zap.String("job", entry.job.Name), zap.Error(err))
		}
		nextRun = nextRun.Add(entry.interval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
