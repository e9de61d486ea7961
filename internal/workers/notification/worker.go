package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"iptv-bot/internal/localization"
	"iptv-bot/internal/provisioning"
)

// Worker reminds customers whose accounts expire within the configured window.
// An account gets at most one reminder per day.
type Worker struct {
	storage   Storage
	messenger Messenger
	localizer Localizer
	schedule  string
	window    time.Duration
	logger    *slog.Logger
	cron      *cron.Cron
	now       func() time.Time
}

func NewWorker(
	storage Storage,
	messenger Messenger,
	localizer Localizer,
	schedule string,
	days int,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		storage:   storage,
		messenger: messenger,
		localizer: localizer,
		schedule:  schedule,
		window:    time.Duration(days) * 24 * time.Hour,
		logger:    logger,
		cron:      cron.New(),
		now:       time.Now,
	}
}

func (w *Worker) Name() string {
	return "expiration-reminder"
}

func (w *Worker) Start() error {
	_, err := w.cron.AddFunc(w.schedule, func() {
		w.logger.Info("Running expiration reminder worker")
		if err := w.run(context.Background()); err != nil {
			w.logger.Error("Expiration reminder worker failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule expiration reminder worker: %w", err)
	}

	w.cron.Start()
	return nil
}

func (w *Worker) Stop() {
	<-w.cron.Stop().Done()
}

func (w *Worker) run(ctx context.Context) error {
	now := w.now()
	due, err := w.storage.ListAccountsToRemind(ctx, now.Add(w.window), now.Add(-24*time.Hour))
	if err != nil {
		return fmt.Errorf("list accounts to remind: %w", err)
	}

	sent := 0
	for _, acc := range due {
		if acc.ExpiresAt == nil {
			continue
		}

		text := w.localizer.Get(localization.DefaultLanguage, "reminder.expiring", map[string]interface{}{
			"username":   acc.Username(),
			"expires_at": acc.ExpiresAt.In(provisioning.PanelLocation).Format("02/01/2006 15:04"),
		})
		if err := w.messenger.SendMessage(ctx, acc.Phone, text); err != nil {
			w.logger.Error("Failed to send expiration reminder", "account_id", acc.ID, "phone", acc.Phone, "error", err)
			continue
		}
		if err := w.storage.MarkAccountReminded(ctx, acc.ID); err != nil {
			w.logger.Error("Failed to mark account reminded", "account_id", acc.ID, "error", err)
			continue
		}
		sent++
	}

	w.logger.Info("Expiration reminders sent", "due", len(due), "sent", sent)
	return nil
}
