package main

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/groupbuyhq/groupbuy-backend/api/routes"
	"github.com/groupbuyhq/groupbuy-backend/internal/categories"
	"github.com/groupbuyhq/groupbuy-backend/internal/gateway"
	"github.com/groupbuyhq/groupbuy-backend/internal/gateway/tochka"
	"github.com/groupbuyhq/groupbuy-backend/internal/gateway/yookassa"
	"github.com/groupbuyhq/groupbuy-backend/internal/ledger"
	"github.com/groupbuyhq/groupbuy-backend/internal/payments"
	"github.com/groupbuyhq/groupbuy-backend/internal/procurements"
	"github.com/groupbuyhq/groupbuy-backend/internal/settlement"
	"github.com/groupbuyhq/groupbuy-backend/internal/users"
	"github.com/groupbuyhq/groupbuy-backend/pkg/config"
	"github.com/groupbuyhq/groupbuy-backend/pkg/db"
	"github.com/groupbuyhq/groupbuy-backend/pkg/enums"
	"github.com/groupbuyhq/groupbuy-backend/pkg/logger"
	"github.com/groupbuyhq/groupbuy-backend/pkg/metrics"
	"github.com/groupbuyhq/groupbuy-backend/pkg/migrate"
	"github.com/groupbuyhq/groupbuy-backend/pkg/outbox"
	"github.com/groupbuyhq/groupbuy-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

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
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	gormDB := dbClient.DB()
	usersRepo := users.NewRepository(gormDB)
	paymentsRepo := payments.NewRepository(gormDB)
	procurementsRepo := procurements.NewRepository(gormDB)
	participantsRepo := procurements.NewParticipantsRepository(gormDB)
	outboxSvc := outbox.NewService(outbox.NewRepository(gormDB), logg)

	usersSvc, err := users.NewService(usersRepo)
	exitOn(logg, "failed to create users service", err)

	categoriesSvc, err := categories.NewService(categories.NewRepository(gormDB))
	exitOn(logg, "failed to create categories service", err)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(gormDB), usersRepo)
	exitOn(logg, "failed to create ledger service", err)

	paymentsSvc, err := payments.NewService(paymentsRepo)
	exitOn(logg, "failed to create payments service", err)

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

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":       cfg.App.Env,
		"addr":      addr,
		"providers": strings.Join(cfg.Gateway.ProviderOrder(), ","),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		Handler: routes.NewRouter(routes.Deps{
			Config:       cfg,
			Logger:       logg,
			DBPinger:     dbClient,
			Redis:        redisClient,
			Registry:     registry,
			Engine:       engine,
			Users:        usersSvc,
			Categories:   categoriesSvc,
			Procurements: procurementsSvc,
			Payments:     paymentsSvc,
			Ledger:       ledgerSvc,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

// buildGatewaySelector instantiates providers in the configured order;
// the first entry is the primary.
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
