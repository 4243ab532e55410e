package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/groupbuyhq/groupbuy-backend/api/controllers"
	webhookcontrollers "github.com/groupbuyhq/groupbuy-backend/api/controllers/webhooks"
	"github.com/groupbuyhq/groupbuy-backend/api/middleware"
	"github.com/groupbuyhq/groupbuy-backend/internal/categories"
	"github.com/groupbuyhq/groupbuy-backend/internal/ledger"
	"github.com/groupbuyhq/groupbuy-backend/internal/payments"
	"github.com/groupbuyhq/groupbuy-backend/internal/procurements"
	"github.com/groupbuyhq/groupbuy-backend/internal/settlement"
	"github.com/groupbuyhq/groupbuy-backend/internal/users"
	"github.com/groupbuyhq/groupbuy-backend/pkg/config"
	"github.com/groupbuyhq/groupbuy-backend/pkg/db"
	"github.com/groupbuyhq/groupbuy-backend/pkg/logger"
	"github.com/groupbuyhq/groupbuy-backend/pkg/redis"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config       *config.Config
	Logger       *logger.Logger
	DBPinger     db.Pinger
	Redis        *redis.Client
	Registry     *prometheus.Registry
	Engine       *settlement.Engine
	Users        users.Service
	Categories   categories.Service
	Procurements procurements.Service
	Payments     payments.Service
	Ledger       ledger.Service
}

// NewRouter builds the HTTP surface: health and metrics in the clear,
// the adapter API behind the shared service token, webhooks behind
// provider signatures, and the admin API behind JWT.
func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger

	var idemStore redis.IdempotencyStore
	var limiter middleware.FixedWindowLimiter
	var redisPinger redis.Pinger
	if d.Redis != nil {
		idemStore = d.Redis
		limiter = d.Redis
		redisPinger = d.Redis
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, d.DBPinger, redisPinger))
	})

	if d.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{}))
	}

	// Providers authenticate with signatures, not the service token.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payments/{provider}", webhookcontrollers.PaymentWebhook(d.Engine, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ServiceAuth(cfg.AdapterAuth, logg))
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Route("/users", func(r chi.Router) {
			r.Post("/identify", controllers.UsersIdentify(d.Users, logg))
			r.Get("/{userId}", controllers.UserGet(d.Users, logg))
			r.Get("/{userId}/procurements", controllers.UserProcurements(d.Procurements, logg))
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", controllers.CategoryList(d.Categories, logg))
			r.Post("/", controllers.CategoryCreate(d.Categories, logg))
		})

		r.Route("/procurements", func(r chi.Router) {
			r.Get("/", controllers.ProcurementList(d.Procurements, logg))
			r.Post("/", controllers.ProcurementCreate(d.Procurements, logg))
			r.Route("/{procurementId}", func(r chi.Router) {
				r.Get("/", controllers.ProcurementGet(d.Procurements, logg))
				r.Get("/participants", controllers.ProcurementParticipants(d.Procurements, logg))
				r.Get("/access", controllers.ProcurementCheckAccess(d.Procurements, logg))
				r.Post("/join", controllers.ProcurementJoin(d.Engine, logg))
				r.Post("/leave", controllers.ProcurementLeave(d.Engine, logg))
				r.Post("/status", controllers.ProcurementStatus(d.Procurements, logg))
			})
		})

		r.Route("/payments", func(r chi.Router) {
			r.Get("/", controllers.PaymentList(d.Payments, logg))
			r.Post("/deposit", controllers.PaymentDeposit(d.Engine, logg))
			r.Get("/{paymentId}", controllers.PaymentGet(d.Payments, logg))
			r.Post("/{paymentId}/poll", controllers.PaymentPoll(d.Engine, logg))
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", controllers.TransactionList(d.Ledger, logg))
			r.Get("/summary", controllers.TransactionSummary(d.Ledger, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.With(middleware.LoginRateLimit(limiter, cfg.Admin.LoginLimit, cfg.Admin.LoginWindow, logg)).
			Post("/auth/login", controllers.AdminLogin(cfg, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminAuth(cfg.JWT, logg))
			r.Use(middleware.Idempotency(idemStore, logg))

			r.Post("/users/{userId}/role", controllers.UserSetRole(d.Users, logg))
			r.Post("/users/{userId}/bonus", controllers.AdminBonus(d.Engine, logg))
			r.Route("/procurements/{procurementId}/participants/{userId}", func(r chi.Router) {
				r.Post("/charge", controllers.AdminChargeParticipant(d.Engine, logg))
				r.Post("/refund", controllers.AdminRefundParticipant(d.Engine, logg))
			})
		})
	})

	return r
}
