package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"iptv-bot/internal/provisioning"
	"iptv-bot/internal/stories/accounts"
)

const resyncPageSize = 100

// Report summarizes one bulk resync run.
type Report struct {
	Total     int
	Succeeded int
	Failed    int
	Changed   int
	NotFound  int
}

// Resyncer refreshes every provisioned Account from the provider, one at a time.
type Resyncer struct {
	storage accounts.Storage
	adapter provisioning.Adapter
	engine  *Engine
	pacing  time.Duration
	logger  *slog.Logger
}

func NewResyncer(storage accounts.Storage, adapter provisioning.Adapter, engine *Engine, pacing time.Duration, logger *slog.Logger) *Resyncer {
	return &Resyncer{
		storage: storage,
		adapter: adapter,
		engine:  engine,
		pacing:  pacing,
		logger:  logger,
	}
}

// ResyncAll walks accounts in id order. A failing account is counted and skipped.
func (r *Resyncer) ResyncAll(ctx context.Context) (Report, error) {
	var report Report

	for offset := 0; ; offset += resyncPageSize {
		page, err := r.storage.ListAccounts(ctx, accounts.ListCriteria{
			Provisioned: true,
			Limit:       resyncPageSize,
			Offset:      offset,
		})
		if err != nil {
			return report, fmt.Errorf("list accounts: %w", err)
		}

		for _, account := range page {
			if report.Total > 0 {
				if err := r.wait(ctx); err != nil {
					return report, err
				}
			}
			report.Total++

			changed, err := r.resyncOne(ctx, account)
			switch {
			case errors.Is(err, provisioning.ErrNotFound):
				report.Failed++
				report.NotFound++
				r.logger.Warn("Account missing in provider", "username", account.Username())
			case err != nil:
				report.Failed++
				r.logger.Error("Failed to resync account", "username", account.Username(), "error", err)
			default:
				report.Succeeded++
				if changed {
					report.Changed++
				}
			}
		}

		if len(page) < resyncPageSize {
			break
		}
	}

	r.logger.Info("Resync finished",
		"total", report.Total,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"changed", report.Changed)

	return report, nil
}

func (r *Resyncer) resyncOne(ctx context.Context, account *accounts.Account) (bool, error) {
	snapshot, err := r.adapter.FetchSnapshot(ctx, account.Username())
	if err != nil {
		return false, err
	}

	result, err := r.engine.Reconcile(ctx, Request{
		Phone:    account.Phone,
		Username: account.Username(),
		Snapshot: snapshot,
	})
	if err != nil {
		return false, err
	}
	return len(result.Changes) > 0, nil
}

func (r *Resyncer) wait(ctx context.Context) error {
	if r.pacing <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(r.pacing)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
