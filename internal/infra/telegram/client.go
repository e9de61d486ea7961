package telegram

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client delivers operator alerts to a fixed set of Telegram chats.
type Client struct {
	api      sender
	logger   *slog.Logger
	limiter  *rate.Limiter
	adminIDs []int64
}

func NewClient(token string, adminIDs []int64, logger *slog.Logger) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return newClient(bot, adminIDs, logger), nil
}

func newClient(api sender, adminIDs []int64, logger *slog.Logger) *Client {
	// Telegram allows 30 messages per second per bot
	limiter := rate.NewLimiter(30, 1)

	return &Client{
		api:      api,
		logger:   logger,
		limiter:  limiter,
		adminIDs: adminIDs,
	}
}

// Alert sends text to every admin chat. Delivery to the remaining chats continues
// after a failure; the first error is returned.
func (c *Client) Alert(ctx context.Context, text string) error {
	var firstErr error
	for _, chatID := range c.adminIDs {
		if err := c.SendMessage(ctx, chatID, text); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SendMessage sends a message with rate limiting.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiting: %w", err)
	}

	msg := tgbotapi.NewMessage(chatID, text)
	_, err := c.api.Send(msg)
	if err != nil {
		c.logger.Error("failed to send alert",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()))
		return fmt.Errorf("send message: %w", err)
	}

	return nil
}

// Nop is the alerter used when no bot token is configured.
type Nop struct {
	Logger *slog.Logger
}

func (n Nop) Alert(_ context.Context, text string) error {
	n.Logger.Warn("Operator alert", "text", text)
	return nil
}
