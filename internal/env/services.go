package environment

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"iptv-bot/internal/config"
	"iptv-bot/internal/conversation"
	"iptv-bot/internal/correlator"
	"iptv-bot/internal/dispatch"
	"iptv-bot/internal/localization"
	"iptv-bot/internal/metrics"
	"iptv-bot/internal/provisioning"
	"iptv-bot/internal/reconcile"
	"iptv-bot/internal/storage"
	"iptv-bot/internal/stories/payment"
	"iptv-bot/internal/stories/settings"
	"iptv-bot/internal/workers"
	"iptv-bot/internal/workers/expiration"
	"iptv-bot/internal/workers/healthcheck"
	"iptv-bot/internal/workers/notification"
	"iptv-bot/internal/workers/paymentautocheck"
	"iptv-bot/internal/workers/resync"
)

type Services struct {
	Engine     *conversation.Engine
	Correlator *correlator.Correlator
	Dispatcher *dispatch.Dispatcher
	Pool       *provisioning.Pool
	Resyncer   *reconcile.Resyncer
	Workers    *workers.Manager
}

func newServices(ctx context.Context, clients *Clients, cfg *config.Config, logger *slog.Logger) (*Services, error) {
	var s Services

	storageImpl := storage.New(clients.SQLiteDB.DB)
	if err := storageImpl.Migrate(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to migrate schema")
	}

	collector := metrics.New(prometheus.DefaultRegisterer)

	localizer, err := localization.NewService()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load message catalogue")
	}

	settingsService := settings.NewService(storageImpl, settings.Values{
		Pricing: settings.Pricing{
			PerMonth:           cfg.Pricing.PricePerMonth,
			PerExtraConnection: cfg.Pricing.PricePerExtraConnection,
		},
		DefaultPlanLabel: cfg.Pricing.DefaultPlanLabel,
		AccessLinkURL:    cfg.Pricing.AccessLinkURL,
		SupportContact:   cfg.Pricing.SupportContact,
	}, logger)

	var gateway payment.Gateway
	if clients.Gateway != nil {
		gateway = clients.Gateway
	}
	paymentService := payment.NewService(gateway, cfg.TestMode, logger)
	if cfg.TestMode {
		logger.Warn("Test mode enabled: charges are simulated and approved without verification")
	}

	s.Engine = conversation.NewEngine(
		storageImpl,
		clients.Chat,
		paymentService,
		settingsService,
		localizer,
		collector,
		logger.With("component", "conversation"),
	)
	completer := conversation.NewCompleter(clients.Chat, settingsService, localizer, logger)

	panel := provisioning.NewGuard(clients.Panel, cfg.Provisioning.CallTimeout, collector, logger.With("component", "provisioning"))
	s.Pool = provisioning.NewPool(cfg.Provisioning.Workers, logger)

	reconciler := reconcile.NewEngine(storageImpl, collector, logger.With("component", "reconcile"))
	s.Resyncer = reconcile.NewResyncer(storageImpl, panel, reconciler, cfg.Workers.ResyncPacing, logger)

	var guard correlator.InFlightGuard = correlator.NewLocalGuard()
	if clients.Redis != nil {
		guard = correlator.NewRedisGuard(clients.Redis, cfg.Redis.LockTTL, logger.With("component", "payment-lock"))
	}

	s.Correlator = correlator.New(correlator.Deps{
		Storage:     storageImpl,
		Guard:       guard,
		Verifier:    paymentService,
		Provisioner: panel,
		Reconciler:  reconciler,
		Completer:   completer,
		Scheduler:   s.Pool,
		Alerter:     clients.Alerter,
		Publisher:   clients.Publisher,
		Metrics:     collector,
		Logger:      logger.With("component", "correlator"),
	})

	s.Dispatcher = dispatch.New(cfg.Dispatch.Shards, cfg.Dispatch.QueueSize, s.Engine.Handle, collector, logger.With("component", "dispatch"))

	jobs := []workers.Worker{
		resync.NewWorker(s.Resyncer, collector, cfg.Workers.ResyncSchedule, logger.With("worker", "resync")),
		paymentautocheck.NewWorker(
			storageImpl,
			s.Correlator,
			cfg.Workers.PaymentCheckInterval,
			cfg.Workers.PaymentCheckMinAge,
			cfg.Workers.PaymentCheckMaxAge,
			logger.With("worker", "payment-autocheck"),
		),
		expiration.NewWorker(storageImpl, cfg.Workers.ExpirationSchedule, logger.With("worker", "expiration")),
		notification.NewWorker(
			storageImpl,
			clients.Chat,
			localizer,
			cfg.Workers.ReminderSchedule,
			cfg.Workers.ReminderDays,
			logger.With("worker", "expiration-reminder"),
		),
	}
	if cfg.Provisioning.Driver == "bitpanel" {
		jobs = append(jobs, healthcheck.NewWorker(cfg.Provisioning.PanelURL, cfg.Workers.PanelCheckInterval, clients.Alerter, logger.With("worker", "panel-healthcheck")))
	}
	s.Workers = workers.NewManager(logger, jobs...)

	return &s, nil
}
