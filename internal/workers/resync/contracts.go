package resync

import (
	"context"

	"iptv-bot/internal/reconcile"
)

type (
	Resyncer interface {
		ResyncAll(ctx context.Context) (reconcile.Report, error)
	}

	Metrics interface {
		ObserveResync(succeeded, failed, notFound int)
	}
)
