// Package worker hosts the background sweeps that keep ledger records
// honest without a request driving them.
package worker

import (
	"context"
	"time"

	"github.com/ayo6706/gateway-bridge/internal/ledger"
	"github.com/ayo6706/gateway-bridge/internal/observability"
	"go.uber.org/zap"
)

// ExpirySweeper moves records past their expiry deadline to EXPIRED in the
// background, so links and purchases with a lifetime settle even when
// nobody queries them. Safe for concurrent instances: the postgres store
// claims rows with FOR UPDATE SKIP LOCKED.
type ExpirySweeper struct {
	ledger       *ledger.Ledger
	pollInterval time.Duration
	batchSize    int
	logger       *zap.Logger
	stopCh       chan struct{}
}

// NewExpirySweeper creates a sweeper with defaults of one sweep per minute
// and 100 records per batch.
func NewExpirySweeper(l *ledger.Ledger, logger *zap.Logger) *ExpirySweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpirySweeper{
		ledger:       l,
		pollInterval: time.Minute,
		batchSize:    100,
		logger:       logger,
		stopCh:       make(chan struct{}),
	}
}

// WithPollInterval sets the sweep interval.
func (w *ExpirySweeper) WithPollInterval(interval time.Duration) *ExpirySweeper {
	if interval > 0 {
		w.pollInterval = interval
	}
	return w
}

// WithBatchSize sets the per-sweep record limit.
func (w *ExpirySweeper) WithBatchSize(size int) *ExpirySweeper {
	if size > 0 {
		w.batchSize = size
	}
	return w
}

// Start runs the sweep loop until Stop is called or the context is
// canceled.
func (w *ExpirySweeper) Start(ctx context.Context) {
	w.logger.Info("expiry sweeper starting",
		zap.Duration("interval", w.pollInterval),
		zap.Int("batch", w.batchSize),
	)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("expiry sweeper stopping: context canceled")
			return
		case <-w.stopCh:
			w.logger.Info("expiry sweeper stopping")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// Stop signals the sweeper to stop.
func (w *ExpirySweeper) Stop() {
	close(w.stopCh)
}

// Run starts the sweeper and returns a function that stops it.
func (w *ExpirySweeper) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *ExpirySweeper) sweep(ctx context.Context) {
	moved, err := w.ledger.ExpireDue(ctx, w.batchSize)
	if err != nil {
		observability.IncrementWorkerRun("expiry", "error")
		w.logger.Error("expiry sweep failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("expiry", "ok")
	if moved > 0 {
		w.logger.Info("expired overdue records", zap.Int("count", moved))
	}
}

// ProcessOnce runs a single sweep immediately. Useful for testing or
// manual triggering.
func (w *ExpirySweeper) ProcessOnce(ctx context.Context) (int, error) {
	return w.ledger.ExpireDue(ctx, w.batchSize)
}
