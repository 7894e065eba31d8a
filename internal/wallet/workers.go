package wallet

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Workers drives the two reconciliation passes on a fixed cadence. Each task
// runs on its own ticker; a slow pass delays its own next tick but never
// blocks the other task.
type Workers struct {
	service  *Service
	interval time.Duration
	logger   *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewWorkers(service *Service, interval time.Duration, logger *zap.Logger) *Workers {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Workers{
		service:  service,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the deposit and withdrawal workers.
func (w *Workers) Start(ctx context.Context) {
	w.launch(ctx, "deposit-reconciler", w.service.ProcessPendingDeposits)
	w.launch(ctx, "withdrawal-reconciler", w.service.ProcessPendingWithdrawals)
	w.logger.Info("wallet workers started", zap.Duration("interval", w.interval))
}

// Stop signals the workers and waits for in-flight passes to finish.
func (w *Workers) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.logger.Info("wallet workers stopped")
}

func (w *Workers) launch(ctx context.Context, name string, task func(context.Context)) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case <-ticker.C:
				started := time.Now()
				task(ctx)
				w.logger.Debug("reconciliation pass finished",
					zap.String("worker", name),
					zap.Duration("elapsed", time.Since(started)))
			}
		}
	}()
}
