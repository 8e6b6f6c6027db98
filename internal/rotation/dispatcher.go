package rotation

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/keyfold/keyfold/internal/logging"
	"github.com/keyfold/keyfold/internal/store"
)

const (
	// DefaultScanSpec scans for due schedules once a minute.
	DefaultScanSpec = "@every 1m"

	// DefaultMaxConcurrent bounds how many rotations run at once.
	DefaultMaxConcurrent = 4
)

// Dispatcher periodically scans for due schedules and hands them to the
// engine. One rotation per schedule is independent of others; a bounded
// worker pool keeps a burst of due schedules from exhausting resources.
type Dispatcher struct {
	engine *Engine
	store  store.ScheduleStore
	logger *logging.Logger

	cron *cron.Cron
	spec string
	sem  chan struct{}

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Empty spec selects DefaultScanSpec;
// maxConcurrent <= 0 selects DefaultMaxConcurrent.
func NewDispatcher(engine *Engine, s store.ScheduleStore, spec string, maxConcurrent int, logger *logging.Logger) *Dispatcher {
	if spec == "" {
		spec = DefaultScanSpec
	}
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Dispatcher{
		engine:   engine,
		store:    s,
		logger:   logger,
		cron:     cron.New(),
		spec:     spec,
		sem:      make(chan struct{}, maxConcurrent),
		inflight: make(map[string]struct{}),
	}
}

// Start begins the periodic scan.
func (d *Dispatcher) Start(ctx context.Context) error {
	if _, err := d.cron.AddFunc(d.spec, func() { d.Scan(ctx) }); err != nil {
		return err
	}
	d.cron.Start()
	d.logger.Info("rotation dispatcher started (scan %s)", d.spec)
	return nil
}

// Stop halts scanning and waits for running rotations to finish.
func (d *Dispatcher) Stop() {
	stopCtx := d.cron.Stop()
	<-stopCtx.Done()
	d.wg.Wait()
}

// Scan runs one dispatch pass over the schedules due now. Exposed so the CLI
// can trigger an immediate pass.
func (d *Dispatcher) Scan(ctx context.Context) {
	due, err := d.store.DueSchedules(ctx, time.Now())
	if err != nil {
		d.logger.Error("failed to scan for due schedules: %v", err)
		return
	}
	for _, schedule := range due {
		d.dispatch(ctx, schedule.ID)
	}
}

// dispatch runs one rotation in the pool. A schedule already being handled
// by this dispatcher is skipped; the store-level conflict check still
// protects against other processes.
func (d *Dispatcher) dispatch(ctx context.Context, scheduleID string) {
	d.mu.Lock()
	if _, running := d.inflight[scheduleID]; running {
		d.mu.Unlock()
		return
	}
	d.inflight[scheduleID] = struct{}{}
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			d.mu.Lock()
			delete(d.inflight, scheduleID)
			d.mu.Unlock()
		}()

		select {
		case d.sem <- struct{}{}:
			defer func() { <-d.sem }()
		case <-ctx.Done():
			return
		}

		result, err := d.engine.Rotate(ctx, scheduleID, "", SystemActor)
		if err != nil {
			d.logger.Error("rotation dispatch for schedule %s failed: %v", scheduleID, err)
			return
		}
		if result.Status == store.RotationFailed {
			d.logger.Warn("scheduled rotation of %s failed: %s", result.SecretKey, result.Err)
		}
	}()
}
