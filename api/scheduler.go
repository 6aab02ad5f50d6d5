/*
scheduler.go - Background materialization of upcoming days

PURPOSE:
  Periodically materializes the template slots for today and the next
  LookaheadDays days, so schedulers opening the roster see every slot
  without waiting for the first search of a date to seed it.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Runs once immediately on Start, then on every tick
  - Materialization is idempotent, so overlapping runs from several
    server instances only cost the anti-join query
  - A failing day is logged and the pass continues with the next day

CONFIGURATION:
  - scheduler.interval:       How often to run (default: 1 hour)
  - scheduler.lookahead_days: Days after today to seed (default: 7)
  - scheduler.enabled:        Whether the scheduler is active

USAGE:
  scheduler := NewMaterializationScheduler(assignments, cfg, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - assignment/service.go: EnsureDay
  - handlers.go: Materialize endpoint (manual trigger)
*/
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/court-roster/config"
	"github.com/warp/court-roster/metrics"
	"github.com/warp/court-roster/roster"
)

// DayMaterializer seeds one day from the templates.
type DayMaterializer interface {
	EnsureDay(ctx context.Context, day roster.Date) (int64, error)
}

// MaterializationScheduler keeps upcoming days materialized.
type MaterializationScheduler struct {
	Assignments   DayMaterializer
	CheckInterval time.Duration
	LookaheadDays int
	Enabled       bool

	logger *zap.Logger
	today  func() roster.Date

	ticker *time.Ticker
	stop   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewMaterializationScheduler creates a scheduler from configuration.
func NewMaterializationScheduler(assignments DayMaterializer, cfg config.SchedulerConfig, logger *zap.Logger) *MaterializationScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	return &MaterializationScheduler{
		Assignments:   assignments,
		CheckInterval: interval,
		LookaheadDays: cfg.LookaheadDays,
		Enabled:       cfg.Enabled,
		logger:        logger.Named("scheduler"),
		today:         roster.Today,
	}
}

// Start begins the scheduler.
func (ms *MaterializationScheduler) Start() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if !ms.Enabled {
		ms.logger.Info("scheduler disabled, not starting")
		return
	}
	if ms.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	ms.cancel = cancel
	ms.stop = make(chan struct{})
	ms.ticker = time.NewTicker(ms.CheckInterval)
	ms.wg.Add(1)

	go ms.run(ctx)

	ms.logger.Info("scheduler started",
		zap.Duration("interval", ms.CheckInterval),
		zap.Int("lookahead_days", ms.LookaheadDays),
	)
}

// Stop stops the scheduler and waits for a pass in progress to finish.
func (ms *MaterializationScheduler) Stop() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.ticker == nil {
		return
	}
	ms.ticker.Stop()
	close(ms.stop)
	ms.cancel()
	ms.wg.Wait()
	ms.ticker = nil
	ms.logger.Info("scheduler stopped")
}

func (ms *MaterializationScheduler) run(ctx context.Context) {
	defer ms.wg.Done()

	// Run immediately on start
	ms.RunOnce(ctx)

	for {
		select {
		case <-ms.ticker.C:
			ms.RunOnce(ctx)
		case <-ms.stop:
			return
		}
	}
}

// RunOnce materializes today through today+LookaheadDays and returns the
// number of rows created.
func (ms *MaterializationScheduler) RunOnce(ctx context.Context) int64 {
	start := ms.today()
	var total int64
	var errs []error

	for i := 0; i <= ms.LookaheadDays; i++ {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		day := start.AddDays(i)
		inserted, err := ms.Assignments.EnsureDay(ctx, day)
		if err != nil {
			ms.logger.Error("materialization failed", zap.Stringer("date", day), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		total += inserted
	}

	err := errors.Join(errs...)
	metrics.SchedulerRun(err)

	if total > 0 || err != nil {
		ms.logger.Info("materialization pass completed",
			zap.Stringer("from", start),
			zap.Stringer("to", start.AddDays(ms.LookaheadDays)),
			zap.Int64("inserted", total),
			zap.Int("failed", len(errs)),
		)
	}
	return total
}
