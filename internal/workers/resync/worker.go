package resync

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/robfig/cron/v3"
)

// Worker runs the bulk provider resync on a schedule. Stop cancels a run in progress.
type Worker struct {
	resyncer Resyncer
	metrics  Metrics
	schedule string
	logger   *slog.Logger
	cron     *cron.Cron

	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool
}

func NewWorker(resyncer Resyncer, metrics Metrics, schedule string, logger *slog.Logger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		resyncer: resyncer,
		metrics:  metrics,
		schedule: schedule,
		logger:   logger,
		cron:     cron.New(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (w *Worker) Name() string {
	return "resync"
}

func (w *Worker) Start() error {
	_, err := w.cron.AddFunc(w.schedule, func() {
		if err := w.run(w.ctx); err != nil {
			w.logger.Error("Resync worker failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule resync worker: %w", err)
	}

	w.cron.Start()
	w.logger.Info("Resync worker started", "schedule", w.schedule)
	return nil
}

func (w *Worker) Stop() {
	w.cancel()
	<-w.cron.Stop().Done()
}

// run skips the tick when the previous resync is still going.
func (w *Worker) run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		w.logger.Warn("Previous resync still running, skipping")
		return nil
	}
	defer w.running.Store(false)

	w.logger.Info("Starting bulk resync")
	report, err := w.resyncer.ResyncAll(ctx)
	if w.metrics != nil {
		w.metrics.ObserveResync(report.Succeeded, report.Failed, report.NotFound)
	}
	if err != nil {
		return fmt.Errorf("resync all: %w", err)
	}

	w.logger.Info("Bulk resync completed",
		"total", report.Total,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"changed", report.Changed,
		"not_found", report.NotFound)
	return nil
}
