package settings

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Service resolves settings on every call: stored values override the configured defaults.
type Service struct {
	storage  Storage
	defaults Values
	logger   *slog.Logger
}

func NewService(storage Storage, defaults Values, logger *slog.Logger) *Service {
	return &Service{
		storage:  storage,
		defaults: defaults,
		logger:   logger,
	}
}

func (s *Service) Values(ctx context.Context) (Values, error) {
	stored, err := s.storage.ListSettings(ctx)
	if err != nil {
		return Values{}, fmt.Errorf("list settings: %w", err)
	}

	v := s.defaults
	v.PerMonth = s.price(stored, KeyPricePerMonth, v.PerMonth)
	v.PerExtraConnection = s.price(stored, KeyPricePerExtraConnection, v.PerExtraConnection)
	if raw := strings.TrimSpace(stored[KeyDefaultPlanLabel]); raw != "" {
		v.DefaultPlanLabel = raw
	}
	if raw := strings.TrimSpace(stored[KeyAccessLinkURL]); raw != "" {
		v.AccessLinkURL = raw
	}
	if raw := strings.TrimSpace(stored[KeySupportContact]); raw != "" {
		v.SupportContact = raw
	}

	return v, nil
}

func (s *Service) Pricing(ctx context.Context) (Pricing, error) {
	v, err := s.Values(ctx)
	if err != nil {
		return Pricing{}, err
	}
	return v.Pricing, nil
}

func (s *Service) SetPricing(ctx context.Context, p Pricing) error {
	if p.PerMonth <= 0 || p.PerExtraConnection < 0 {
		return fmt.Errorf("invalid pricing %+v", p)
	}
	if err := s.storage.SetSetting(ctx, KeyPricePerMonth, strconv.FormatFloat(p.PerMonth, 'f', 2, 64)); err != nil {
		return fmt.Errorf("set %s: %w", KeyPricePerMonth, err)
	}
	if err := s.storage.SetSetting(ctx, KeyPricePerExtraConnection, strconv.FormatFloat(p.PerExtraConnection, 'f', 2, 64)); err != nil {
		return fmt.Errorf("set %s: %w", KeyPricePerExtraConnection, err)
	}
	return nil
}

func (s *Service) price(stored map[string]string, key string, fallback float64) float64 {
	raw := strings.TrimSpace(stored[key])
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
	if err != nil || value < 0 {
		s.logger.Warn("Ignoring malformed price setting", "key", key, "value", raw)
		return fallback
	}
	return value
}
