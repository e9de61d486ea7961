package environment

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"iptv-bot/internal/config"
	"iptv-bot/internal/infra/bitpanel"
	"iptv-bot/internal/infra/rabbitmq"
	"iptv-bot/internal/infra/redisclient"
	"iptv-bot/internal/infra/sqlite3"
	"iptv-bot/internal/infra/telegram"
	"iptv-bot/internal/infra/whatsapp"
	"iptv-bot/internal/infra/yookassa"
	"iptv-bot/internal/provisioning"
)

type Clients struct {
	SQLiteDB  *sqlite3.DB
	Chat      Messenger
	Alerter   Alerter
	Gateway   *yookassa.Client
	Panel     provisioning.Adapter
	Redis     *redis.Client
	Publisher Publisher

	bitpanel *bitpanel.Adapter
	amqp     *rabbitmq.Publisher
}

type (
	Messenger interface {
		SendMessage(ctx context.Context, phone, text string) error
	}

	Alerter interface {
		Alert(ctx context.Context, text string) error
	}

	Publisher interface {
		Publish(ctx context.Context, eventType string, body any) error
	}
)

func newClients(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Clients, error) {
	var c Clients

	sqliteDB, err := provideSQLiteDB(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open sqlite")
	}
	c.SQLiteDB = sqliteDB

	if c.Chat, err = provideChat(cfg, logger); err != nil {
		return nil, errors.Wrap(err, "failed to create chat client")
	}

	if c.Alerter, err = provideAlerter(cfg, logger); err != nil {
		return nil, errors.Wrap(err, "failed to create telegram alerter")
	}

	if !cfg.TestMode {
		c.Gateway, err = yookassa.NewClient(cfg.YooKassa.ShopID, cfg.YooKassa.SecretKey, cfg.YooKassa.ReturnURL, cfg.YooKassa.Currency, logger)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create yookassa client")
		}
	}

	if err := c.providePanel(cfg, logger); err != nil {
		return nil, errors.Wrap(err, "failed to start provisioning panel")
	}

	if cfg.Redis.Addr != "" {
		if c.Redis, err = redisclient.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err != nil {
			return nil, errors.Wrap(err, "failed to connect redis")
		}
	}

	c.Publisher = rabbitmq.Nop{}
	if cfg.AMQP.URL != "" {
		c.amqp = rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Queue, logger)
		c.Publisher = c.amqp
	}

	return &c, nil
}

func (c *Clients) close(logger *slog.Logger) []closer {
	closers := []closer{func() {
		if err := c.SQLiteDB.Close(); err != nil {
			logger.Error("Failed to close sqlite", "error", err)
		}
	}}
	if c.bitpanel != nil {
		closers = append(closers, c.bitpanel.Stop)
	}
	if c.Redis != nil {
		closers = append(closers, func() { _ = c.Redis.Close() })
	}
	if c.amqp != nil {
		closers = append(closers, func() { _ = c.amqp.Close() })
	}
	return closers
}

func provideSQLiteDB(ctx context.Context, cfg config.Config) (*sqlite3.DB, error) {
	maxLifetimeStr := cfg.DB.MaxLifetime
	if maxLifetimeStr == "" {
		maxLifetimeStr = "5m"
	}
	maxLifetime, err := time.ParseDuration(maxLifetimeStr)
	if err != nil {
		return nil, err
	}

	opts := []sqlite3.Option{
		sqlite3.WithDSN(cfg.DB.Path),
		sqlite3.WithMaxOpenConns(cfg.DB.MaxOpenConns),
		sqlite3.WithMaxIdleConns(cfg.DB.MaxIdleConns),
		sqlite3.WithConnMaxLifetime(maxLifetime),
	}

	return sqlite3.New(ctx, opts...)
}

// provideChat falls back to logging outbound messages when no chat account is configured
// in a local environment.
func provideChat(cfg config.Config, logger *slog.Logger) (Messenger, error) {
	if cfg.Chat.AccountSID == "" && cfg.Env == "local" {
		logger.Warn("Chat credentials not set, outbound messages are only logged")
		return whatsapp.Console{Logger: logger}, nil
	}

	return whatsapp.NewClient(whatsapp.Config{
		BaseURL:    cfg.Chat.BaseURL,
		AccountSID: cfg.Chat.AccountSID,
		AuthToken:  cfg.Chat.AuthToken,
		From:       cfg.Chat.From,
		Timeout:    cfg.Chat.Timeout,
		ChunkSize:  cfg.Chat.ChunkSize,
		RPS:        cfg.Chat.RateLimit.RPS,
		Burst:      cfg.Chat.RateLimit.Burst,
	}, logger)
}

func provideAlerter(cfg config.Config, logger *slog.Logger) (Alerter, error) {
	if cfg.Telegram.BotToken == "" {
		return telegram.Nop{Logger: logger}, nil
	}
	return telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.AdminIDs, logger)
}

func (c *Clients) providePanel(cfg config.Config, logger *slog.Logger) error {
	switch cfg.Provisioning.Driver {
	case "memory":
		c.Panel = provisioning.NewMemory(cfg.Provisioning.PlanLabel)
		return nil
	case "bitpanel":
		adapter := bitpanel.New(bitpanel.Config{
			PanelURL:     cfg.Provisioning.PanelURL,
			Username:     cfg.Provisioning.Username,
			Password:     cfg.Provisioning.Password,
			Headless:     cfg.Provisioning.Headless,
			PlanLabel:    cfg.Provisioning.PlanLabel,
			PricePlan:    cfg.Provisioning.PricePlan,
			ArtifactsDir: cfg.Provisioning.ArtifactsDir,
			StepTimeout:  cfg.Provisioning.StepTimeout,
		}, logger.With("component", "bitpanel"))
		if err := adapter.Start(); err != nil {
			return err
		}
		c.bitpanel = adapter
		c.Panel = adapter
		return nil
	default:
		return errors.Errorf("unknown provisioning driver %q", cfg.Provisioning.Driver)
	}
}
