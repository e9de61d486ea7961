package conversation

import (
	"context"
	"fmt"
	"log/slog"

	"iptv-bot/internal/provisioning"
	"iptv-bot/internal/stories/accounts"
	"iptv-bot/internal/stories/payment"
)

// Completion describes a finished provisioning attempt for an approved payment.
type Completion struct {
	Phone     string
	PaymentID string
	Context   payment.Context
	// Account is nil when provisioning failed.
	Account *accounts.Account
}

// Completer tells the customer how their paid request ended.
type Completer struct {
	messenger Messenger
	settings  Settings
	localizer Localizer
	logger    *slog.Logger
}

func NewCompleter(messenger Messenger, values Settings, localizer Localizer, logger *slog.Logger) *Completer {
	return &Completer{
		messenger: messenger,
		settings:  values,
		localizer: localizer,
		logger:    logger,
	}
}

// Succeeded sends the access data of the provisioned account.
func (c *Completer) Succeeded(ctx context.Context, done Completion) error {
	if done.Account == nil {
		return fmt.Errorf("completion for payment %s has no account", done.PaymentID)
	}

	values, err := c.settings.Values(ctx)
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}

	key := "completion.created"
	if done.Context == payment.ContextRenewal {
		key = "completion.renewed"
	}

	expires := c.localizer.Get(lang, "inquire.unknown", nil)
	if done.Account.ExpiresAt != nil {
		expires = done.Account.ExpiresAt.In(provisioning.PanelLocation).Format("02/01/2006")
	}

	text := c.localizer.Get(lang, key, map[string]interface{}{
		"access_link": values.AccessLinkURL,
		"username":    done.Account.Username(),
		"password":    done.Account.CredentialSecret,
		"connections": done.Account.ConnectionCount,
		"expires_at":  expires,
	})
	if err := c.messenger.SendMessage(ctx, done.Phone, text); err != nil {
		return fmt.Errorf("send completion: %w", err)
	}

	c.logger.Info("Completion sent", "phone", done.Phone, "payment_id", done.PaymentID, "context", done.Context)
	return nil
}

// Failed sends a generic apology with the support contact. Diagnostics stay in logs.
func (c *Completer) Failed(ctx context.Context, done Completion) error {
	contact := ""
	if values, err := c.settings.Values(ctx); err == nil {
		contact = values.SupportContact
	} else {
		c.logger.Warn("Failed to read settings for failure notice", "error", err)
	}

	text := c.localizer.Get(lang, "completion.failed", map[string]interface{}{"contact": contact})
	if err := c.messenger.SendMessage(ctx, done.Phone, text); err != nil {
		return fmt.Errorf("send failure notice: %w", err)
	}
	return nil
}
