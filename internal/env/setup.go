package environment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"iptv-bot/internal/config"
)

type closer func()

type Env struct {
	Config   *config.Config
	Logger   *slog.Logger
	Servers  *Servers
	Clients  *Clients
	Services *Services

	Closers []closer
}

func Setup(ctx context.Context) (*Env, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := LoadConfig(ctx)
	if err != nil {
		return nil, err
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("initLogger: %w", err)
	}

	if err := cfg.PrepareDirs(); err != nil {
		return nil, fmt.Errorf("prepare dirs: %w", err)
	}

	var e Env

	clients, err := newClients(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("newClients: %w", err)
	}
	e.Closers = append(e.Closers, clients.close(logger)...)

	services, err := newServices(ctx, clients, &cfg, logger)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("newServices: %w", err)
	}

	e.Config = &cfg
	e.Logger = logger
	e.Clients = clients
	e.Services = services
	e.Servers = newServers(ctx, cfg, logger, clients, services)

	return &e, nil
}

// LoadConfig reads the configuration from the environment.
func LoadConfig(ctx context.Context) (config.Config, error) {
	var cfg config.Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return cfg, fmt.Errorf("env processing: %w", err)
	}
	return cfg, nil
}

// Close runs closers in reverse order of registration.
func (e *Env) Close() {
	for i := len(e.Closers) - 1; i >= 0; i-- {
		e.Closers[i]()
	}
	e.Closers = nil
}
