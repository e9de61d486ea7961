package environment

import (
	"context"
	"log/slog"
	"net/http"

	"iptv-bot/internal/api"
	"iptv-bot/internal/config"
)

type Servers struct {
	HTTP struct {
		Observability *http.Server
		API           *http.Server
	}
}

func newServers(ctx context.Context, cfg config.Config, logger *slog.Logger, clients *Clients, services *Services) *Servers {
	var servers Servers

	handler := api.NewHandler(services.Dispatcher, services.Correlator, logger.WithGroup("api"))
	servers.HTTP.API = &http.Server{
		Addr:              cfg.API.ADDR(),
		Handler:           api.NewServer(handler),
		ReadTimeout:       cfg.API.ReadTimeout,
		WriteTimeout:      cfg.API.WriteTimeout,
		ReadHeaderTimeout: cfg.API.ReadTimeout,
	}
	servers.HTTP.Observability = initObservability(ctx, logger.WithGroup("http"), clients, cfg)

	return &servers
}
