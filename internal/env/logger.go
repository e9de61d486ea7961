package environment

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"iptv-bot/internal/config"
)

func initLogger(cfg config.Config) (*slog.Logger, error) {
	return newLogger(os.Stdout, cfg.Env, cfg.Logger.Level), nil
}

// newLogger writes text for local runs and JSON everywhere else. Every record carries the
// environment so logs from several deployments can share a sink.
func newLogger(w io.Writer, env, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}

	var handler slog.Handler = slog.NewJSONHandler(w, opts)
	if env == "local" {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler).With("env", env)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
