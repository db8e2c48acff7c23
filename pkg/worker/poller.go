// Package worker implements the polling loop that drives workflow execution
// off the shared store.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/smilemakc/mbflow/pkg/dag"
	"github.com/smilemakc/mbflow/pkg/store/shared"
	"github.com/smilemakc/mbflow/pkg/task"
)

// Stats is a snapshot of the poller's running counters.
type Stats struct {
	TotalProcessed int
	Successful     int
	Failed         int
}

// Config configures the polling loop.
type Config struct {
	PollInterval time.Duration

	// PollSchedule, if non-empty, is a five-field cron/robfig expression
	// that gates ticks in addition to PollInterval: a tick runs only during
	// a minute the expression matches (e.g. "* 9-17 * * 1-5" polls on
	// weekdays from 09:00 to 17:59). Empty means always active - the
	// default.
	PollSchedule string

	// Concurrency bounds how many pending rows are processed per tick
	// concurrently. 0 or 1 means the teacher's original serial-per-tick
	// behaviour; values above 1 opt into errgroup-bounded concurrency.
	Concurrency int
}

// Executor runs one workflow definition to completion.
type Executor interface {
	Execute(ctx context.Context, def dag.Definition) (dag.Result, error)
}

// SharedStore is the subset of the Shared Store Adapter (C7) the poller
// needs. Implemented by pkg/store/shared.
type SharedStore interface {
	Pending(ctx context.Context) ([]shared.PendingRow, error)
	Claim(ctx context.Context, id string) (bool, error)
	Finalise(ctx context.Context, id string, status shared.Status, results map[string]task.Result) error
}

// Poller is the Polling Loop (C8): it repeatedly claims pending rows from
// the shared store, runs them through the executor, and finalises them with
// the externally-visible status.
type Poller struct {
	store    SharedStore
	executor Executor
	cfg      Config
	logger   *slog.Logger

	schedule cron.Schedule

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	statsMu sync.Mutex
	stats   Stats
}

// New constructs a Poller. If cfg.PollSchedule is set but fails to parse,
// it is treated as always-active and the parse error is logged.
func New(store SharedStore, executor Executor, cfg Config, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}

	p := &Poller{store: store, executor: executor, cfg: cfg, logger: logger}

	if cfg.PollSchedule != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		schedule, err := parser.Parse(cfg.PollSchedule)
		if err != nil {
			logger.Warn("invalid poll schedule, polling will run unconditionally", "schedule", cfg.PollSchedule, "error", err)
		} else {
			p.schedule = schedule
		}
	}

	return p
}

// Start spawns the tick loop on a background goroutine. It is a no-op if
// already running.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}

	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.running = true

	go p.loop(ctx, p.stopCh, p.doneCh)
}

// StartBlocking runs the tick loop in the calling goroutine until Stop is
// called or ctx is cancelled.
func (p *Poller) StartBlocking(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.running = true
	p.mu.Unlock()

	p.loop(ctx, p.stopCh, p.doneCh)
}

// Stop signals the tick loop to exit and waits up to 5 seconds for it to
// finish the iteration in progress. Idempotent: a second call is a no-op.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.running = false
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
	case <-time.After(5 * time.Second):
		p.logger.Warn("poller did not stop within 5s, abandoning wait")
	}
}

// Stats returns a snapshot of the running counters.
func (p *Poller) Stats() Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

func (p *Poller) loop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if p.withinSchedule() {
			p.tick(ctx)
		}

		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) withinSchedule() bool {
	if p.schedule == nil {
		return true
	}
	now := time.Now()
	next := p.schedule.Next(now.Add(-time.Minute))
	return !next.After(now)
}

// tick implements the §4.8 tick algorithm: query pending, claim each row,
// translate its definition, run the executor, map status, finalise, and
// update stats. A single row's failure never stops the loop.
func (p *Poller) tick(ctx context.Context) {
	rows, err := p.store.Pending(ctx)
	if err != nil {
		p.logger.Error("poll tick: failed to query pending rows", "error", err)
		return
	}
	if len(rows) == 0 {
		return
	}

	if p.cfg.Concurrency > 1 {
		p.processConcurrently(ctx, rows)
		return
	}
	for _, row := range rows {
		p.processRow(ctx, row)
	}
}

func (p *Poller) processConcurrently(ctx context.Context, rows []shared.PendingRow) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for _, row := range rows {
		row := row
		g.Go(func() error {
			p.processRow(gctx, row)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Poller) processRow(ctx context.Context, row shared.PendingRow) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("poll tick: row processing panicked", "row_id", row.ID, "panic", fmt.Sprintf("%v", r))
		}
	}()

	// A Stop requested mid-tick leaves the remaining rows unclaimed.
	p.mu.Lock()
	stopCh := p.stopCh
	p.mu.Unlock()
	select {
	case <-stopCh:
		return
	default:
	}

	claimed, err := p.store.Claim(ctx, row.ID)
	if err != nil {
		p.logger.Error("poll tick: claim failed", "row_id", row.ID, "error", err)
		return
	}
	if !claimed {
		return
	}

	result, err := p.executor.Execute(ctx, row.Definition)
	if err != nil {
		p.logger.Error("poll tick: executor failed", "row_id", row.ID, "error", err)
		if finaliseErr := p.store.Finalise(ctx, row.ID, shared.StatusFailed, nil); finaliseErr != nil {
			p.logger.Error("poll tick: failed to finalise failed row", "row_id", row.ID, "error", finaliseErr)
		}
		p.recordStats(false)
		return
	}

	externalStatus := shared.ExternalStatus(result.Status)
	if err := p.store.Finalise(ctx, row.ID, externalStatus, result.Results); err != nil {
		p.logger.Error("poll tick: failed to finalise row", "row_id", row.ID, "error", err)
	}
	p.recordStats(externalStatus != shared.StatusFailed)
}

func (p *Poller) recordStats(success bool) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.TotalProcessed++
	if success {
		p.stats.Successful++
	} else {
		p.stats.Failed++
	}
}
