package expiration

import "context"

type (
	Storage interface {
		// RefreshExpiredStatuses marks active accounts past their expiry as expired.
		RefreshExpiredStatuses(ctx context.Context) (int64, error)
	}
)
