package api

import (
	"context"

	"iptv-bot/internal/correlator"
)

type (
	// Inbound accepts chat messages for ordered per-phone processing.
	Inbound interface {
		Submit(ctx context.Context, phone, text string) error
	}

	Notifications interface {
		Handle(ctx context.Context, n correlator.Notification) (correlator.Outcome, error)
	}
)
