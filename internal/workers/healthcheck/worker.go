package healthcheck

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const httpTimeout = 10 * time.Second

// Worker checks the provider panel and alerts operators when it goes down and when it
// comes back. Repeated failures are not re-alerted.
type Worker struct {
	endpoint   string
	interval   time.Duration
	alerter    Alerter
	logger     *slog.Logger
	httpClient *http.Client
	now        func() time.Time

	mu        sync.Mutex
	known     bool
	up        bool
	downSince time.Time
	failures  int

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewWorker(endpoint string, interval time.Duration, alerter Alerter, logger *slog.Logger) *Worker {
	return &Worker{
		endpoint: endpoint,
		interval: interval,
		alerter:  alerter,
		logger:   logger,
		httpClient: &http.Client{
			Timeout: httpTimeout,
		},
		now:    time.Now,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

func (w *Worker) Name() string {
	return "panel-healthcheck"
}

func (w *Worker) Start() error {
	w.logger.Info("Starting panel health check", "endpoint", w.endpoint, "interval", w.interval)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("Panic in healthcheck worker goroutine", "panic", r)
			}
		}()
		w.run()
	}()
	return nil
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *Worker) run() {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-w.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-ticker.C:
			w.check(ctx)
		case <-w.stopCh:
			return
		}
	}
}

func (w *Worker) check(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.endpoint, nil)
	if err != nil {
		w.logger.Error("Failed to create health check request", "endpoint", w.endpoint, "error", err)
		w.update(ctx, false)
		return
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.logger.Warn("Panel health check failed", "endpoint", w.endpoint, "error", err)
		w.update(ctx, false)
		return
	}
	resp.Body.Close()

	healthy := resp.StatusCode < http.StatusInternalServerError
	if !healthy {
		w.logger.Warn("Panel health check returned server error", "endpoint", w.endpoint, "status", resp.StatusCode)
	}
	w.update(ctx, healthy)
}

func (w *Worker) update(ctx context.Context, isUp bool) {
	w.mu.Lock()
	now := w.now()
	var message string

	switch {
	case !isUp && (!w.known || w.up):
		w.downSince = now
		w.failures = 1
		message = fmt.Sprintf("🚨 Painel indisponível\n\nEndpoint: %s\nDesde: %s",
			w.endpoint, now.Format("2006-01-02 15:04:05"))
	case !isUp:
		w.failures++
	case isUp && w.known && !w.up:
		message = fmt.Sprintf("✅ Painel recuperado\n\nEndpoint: %s\nIndisponível por: %s\nFalhas: %d",
			w.endpoint, formatDuration(now.Sub(w.downSince)), w.failures)
		w.failures = 0
	}
	w.known, w.up = true, isUp
	w.mu.Unlock()

	if message == "" {
		return
	}
	if err := w.alerter.Alert(ctx, message); err != nil {
		w.logger.Error("Failed to alert operators", "error", err)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%d sec", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%d min %d sec", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%d h %d min", int(d.Hours()), int(d.Minutes())%60)
}
