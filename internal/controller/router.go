package controller

import (
	"time"

	"github.com/dbakare/gromart/internal/application/assignment"
	"github.com/dbakare/gromart/internal/application/checkout"
	"github.com/dbakare/gromart/internal/application/lifecycle"
	"github.com/dbakare/gromart/internal/application/lists"
	"github.com/dbakare/gromart/internal/domain/order"
	"github.com/dbakare/gromart/internal/domain/shoppinglist"
	"github.com/dbakare/gromart/internal/domain/trail"
	"github.com/dbakare/gromart/internal/infrastructure/config"
	"github.com/dbakare/gromart/internal/infrastructure/observability"
	"github.com/dbakare/gromart/internal/jobs"
	customMW "github.com/dbakare/gromart/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type RouterDeps struct {
	Pool         *pgxpool.Pool
	RedisClient  *redis.Client
	OrderRepo    order.Repository
	ListRepo     shoppinglist.Repository
	TrailRepo    trail.Repository
	Lists        *lists.UseCase
	Lifecycle    *lifecycle.Engine
	Checkout     *checkout.UseCase
	AssignEngine *assignment.Engine
	Scheduler    jobs.Scheduler
	Metrics      *observability.Metrics
	ServerConfig config.ServerConfig
	Logger       zerolog.Logger
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.ServerConfig.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID", "X-User-Role"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: deps.ServerConfig.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.Pool, deps.RedisClient)
	listH := NewShoppingListController(deps.Lists, deps.Lifecycle, deps.Checkout, deps.ListRepo)
	orderH := NewOrderController(deps.OrderRepo, deps.TrailRepo, deps.AssignEngine)
	webhookH := NewWebhookController(deps.Scheduler, deps.Metrics, deps.Logger)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	// Provider webhooks sit outside the API tree; they are rate limited per
	// source IP instead of authenticated.
	r.With(customMW.RateLimit(deps.ServerConfig.WebhookRPM)).
		Post("/webhooks/payments/{provider}", webhookH.Receive)

	r.Route("/api/v1", func(r chi.Router) {
		// Shopping lists
		r.Post("/shopping-lists", listH.Create)
		r.Get("/shopping-lists", listH.List)
		r.Get("/shopping-lists/{id}", listH.Get)
		r.Put("/shopping-lists/{id}/items", listH.ReplaceItems)
		r.Post("/shopping-lists/{id}/transition", listH.Transition)
		r.Post("/shopping-lists/{id}/checkout", listH.Checkout)

		// Orders
		r.Get("/orders", orderH.List)
		r.Get("/orders/{id}", orderH.Get)
		r.Get("/orders/{id}/events", orderH.Events)
		r.Post("/orders/{id}/claim", orderH.Claim)
	})

	return r
}
