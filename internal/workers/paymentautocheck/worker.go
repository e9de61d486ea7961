package paymentautocheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"iptv-bot/internal/apperrors"
	"iptv-bot/internal/correlator"
	"iptv-bot/internal/stories/payment"
)

const batchSize = 50

// Worker re-checks pending payments whose webhook may have been lost. Payments younger
// than minAge are left to the webhook; payments older than maxAge are abandoned.
type Worker struct {
	storage    Storage
	correlator Correlator
	schedule   string
	minAge     time.Duration
	maxAge     time.Duration
	logger     *slog.Logger
	cron       *cron.Cron
	now        func() time.Time

	// Payments being checked, so a slow gateway call is not doubled by the next tick.
	processing sync.Map
	wg         sync.WaitGroup
}

func NewWorker(
	storage Storage,
	correlator Correlator,
	schedule string,
	minAge, maxAge time.Duration,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		storage:    storage,
		correlator: correlator,
		schedule:   schedule,
		minAge:     minAge,
		maxAge:     maxAge,
		logger:     logger,
		cron:       cron.New(),
		now:        time.Now,
	}
}

func (w *Worker) Name() string {
	return "payment-autocheck"
}

func (w *Worker) Start() error {
	_, err := w.cron.AddFunc(w.schedule, func() {
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("Panic in payment autocheck worker", "panic", r)
			}
		}()
		if err := w.run(context.Background()); err != nil {
			w.logger.Error("Payment autocheck worker failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule payment autocheck worker: %w", err)
	}

	w.cron.Start()
	w.logger.Info("Payment autocheck worker started", "schedule", w.schedule)
	return nil
}

func (w *Worker) Stop() {
	<-w.cron.Stop().Done()
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) error {
	now := w.now()
	status := payment.StatusPending
	pending, err := w.storage.ListPendingPayments(ctx, payment.ListCriteria{
		Status:        &status,
		CreatedBefore: ptr(now.Add(-w.minAge)),
		CreatedAfter:  ptr(now.Add(-w.maxAge)),
		Limit:         batchSize,
	})
	if err != nil {
		return fmt.Errorf("list pending payments: %w", err)
	}

	for _, p := range pending {
		if _, loaded := w.processing.LoadOrStore(p.PaymentID, true); loaded {
			continue
		}

		w.wg.Add(1)
		go func(paymentID string) {
			defer w.wg.Done()
			defer w.processing.Delete(paymentID)
			w.check(ctx, paymentID)
		}(p.PaymentID)
	}

	return nil
}

func (w *Worker) check(ctx context.Context, paymentID string) {
	outcome, err := w.correlator.Handle(ctx, correlator.Notification{
		Type:      correlator.TypeUpdated,
		PaymentID: paymentID,
	})

	var cerr *apperrors.CorrelationError
	switch {
	case errors.As(err, &cerr):
		w.logger.Debug("Payment autocheck skipped", "payment_id", paymentID, "reason", cerr.Reason)
	case err != nil:
		w.logger.Error("Failed to check payment", "payment_id", paymentID, "error", err)
	case outcome != correlator.OutcomePending:
		w.logger.Info("Payment resolved by autocheck", "payment_id", paymentID, "outcome", outcome)
	}
}

func ptr[T any](v T) *T {
	return &v
}
