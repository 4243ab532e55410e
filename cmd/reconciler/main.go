package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/groupbuyhq/groupbuy-backend/internal/gateway"
	"github.com/groupbuyhq/groupbuy-backend/internal/gateway/tochka"
	"github.com/groupbuyhq/groupbuy-backend/internal/gateway/yookassa"
	"github.com/groupbuyhq/groupbuy-backend/internal/ledger"
	"github.com/groupbuyhq/groupbuy-backend/internal/payments"
	"github.com/groupbuyhq/groupbuy-backend/internal/procurements"
	"github.com/groupbuyhq/groupbuy-backend/internal/reconciler"
	"github.com/groupbuyhq/groupbuy-backend/internal/settlement"
	"github.com/groupbuyhq/groupbuy-backend/internal/users"
	"github.com/groupbuyhq/groupbuy-backend/pkg/config"
	"github.com/groupbuyhq/groupbuy-backend/pkg/db"
	"github.com/groupbuyhq/groupbuy-backend/pkg/enums"
	"github.com/groupbuyhq/groupbuy-backend/pkg/logger"
	"github.com/groupbuyhq/groupbuy-backend/pkg/metrics"
	"github.com/groupbuyhq/groupbuy-backend/pkg/outbox"
	"github.com/groupbuyhq/groupbuy-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "reconciler"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "reconciler",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	selector, err := buildGatewaySelector(cfg)
	if err != nil {
		logg.Error(context.Background(), "failed to build payment gateways", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()

	gormDB := dbClient.DB()
	usersRepo := users.NewRepository(gormDB)
	paymentsRepo := payments.NewRepository(gormDB)
	procurementsRepo := procurements.NewRepository(gormDB)
	participantsRepo := procurements.NewParticipantsRepository(gormDB)
	outboxSvc := outbox.NewService(outbox.NewRepository(gormDB), logg)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(gormDB), usersRepo)
	exitOn(logg, "failed to create ledger service", err)

	procurementsSvc, err := procurements.NewService(procurements.ServiceParams{
		DB:           dbClient,
		Repo:         procurementsRepo,
		Participants: participantsRepo,
		Users:        usersRepo,
		Outbox:       outboxSvc,
	})
	exitOn(logg, "failed to create procurements service", err)

	engine, err := settlement.NewEngine(settlement.EngineParams{
		DB:             dbClient,
		Logger:         logg,
		Payments:       paymentsRepo,
		Procurements:   procurementsRepo,
		ProcurementSvc: procurementsSvc,
		Participants:   participantsRepo,
		Users:          usersRepo,
		Ledger:         ledgerSvc,
		Outbox:         outboxSvc,
		Gateways:       selector,
		Webhooks:       redisClient,
		WebhookMetrics: metrics.NewWebhookMetrics(registry),

		ReturnURL:               cfg.Gateway.ReturnURL,
		WebhookDedupeTTL:        cfg.Gateway.WebhookDedupeTTL,
		AllowUnverifiedWebhooks: cfg.Gateway.AllowUnverifiedWebhooks,
	})
	exitOn(logg, "failed to create settlement engine", err)

	svc, err := reconciler.NewService(reconciler.ServiceParams{
		Config:  cfg.Reconciler,
		Logger:  logg,
		Poller:  engine,
		Pending: paymentsRepo,
		Locks:   redisClient,
		Metrics: metrics.NewJobMetrics(registry),
	})
	exitOn(logg, "failed to create reconciler service", err)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Metrics-only HTTP surface for scraping.
	if port := os.Getenv("PORT"); port != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logg.Error(ctx, "metrics server stopped unexpectedly", err)
			}
		}()
		defer server.Close()
	}

	runCtx := logg.WithFields(ctx, map[string]any{
		"env":           cfg.App.Env,
		"poll_interval": cfg.Reconciler.PollInterval.String(),
		"pending_age":   cfg.Reconciler.PendingAge.String(),
	})
	logg.Info(runCtx, "starting payment reconciler")

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "reconciler stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "reconciler shut down")
}

func buildGatewaySelector(cfg *config.Config) (*gateway.Selector, error) {
	providers := make([]gateway.Provider, 0, len(cfg.Gateway.Providers))
	for _, name := range cfg.Gateway.ProviderOrder() {
		switch name {
		case string(enums.PaymentProviderYooKassa):
			client, err := yookassa.NewClient(cfg.Gateway.YooKassa, cfg.Gateway.CallTimeout)
			if err != nil {
				return nil, err
			}
			providers = append(providers, client)
		case string(enums.PaymentProviderTochka):
			client, err := tochka.NewClient(cfg.Gateway.Tochka, cfg.Gateway.CallTimeout)
			if err != nil {
				return nil, err
			}
			providers = append(providers, client)
		}
	}
	return gateway.NewSelector(providers...)
}

func exitOn(logg *logger.Logger, msg string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), msg, err)
	os.Exit(1)
}
