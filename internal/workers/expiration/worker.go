package expiration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const runTimeout = time.Minute

// Worker flips account statuses once their expiry passes, between provider resyncs.
// It also runs once at start so a bot that was down past some expiries catches up
// before the first tick.
type Worker struct {
	storage  Storage
	schedule string
	logger   *slog.Logger
	cron     *cron.Cron
}

func NewWorker(storage Storage, schedule string, logger *slog.Logger) *Worker {
	return &Worker{
		storage:  storage,
		schedule: schedule,
		logger:   logger,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

func (w *Worker) Name() string {
	return "expiration"
}

func (w *Worker) Start() error {
	if _, err := w.cron.AddFunc(w.schedule, w.tick); err != nil {
		return fmt.Errorf("parse expiration schedule %q: %w", w.schedule, err)
	}

	w.cron.Start()
	go w.tick()

	return nil
}

func (w *Worker) Stop() {
	<-w.cron.Stop().Done()
}

func (w *Worker) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	expired, err := w.run(ctx)
	if err != nil {
		w.logger.Error("Expiry refresh failed", "error", err)
		return
	}
	if expired > 0 {
		w.logger.Info("Accounts expired", "count", expired)
	}
}

func (w *Worker) run(ctx context.Context) (int64, error) {
	expired, err := w.storage.RefreshExpiredStatuses(ctx)
	if err != nil {
		return 0, fmt.Errorf("refresh expired statuses: %w", err)
	}
	return expired, nil
}
