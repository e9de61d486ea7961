package settings

import "context"

type (
	Storage interface {
		ListSettings(ctx context.Context) (map[string]string, error)
		SetSetting(ctx context.Context, key, value string) error
	}
)
