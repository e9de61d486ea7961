package healthcheck

import "context"

type (
	Alerter interface {
		Alert(ctx context.Context, text string) error
	}
)
