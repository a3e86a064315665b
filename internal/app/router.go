package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pawmart/pawmart/internal/inventory"
	"github.com/pawmart/pawmart/internal/masterdata/suppliers"
	"github.com/pawmart/pawmart/internal/platform/httpx"
	"github.com/pawmart/pawmart/internal/purchasing"
	"github.com/pawmart/pawmart/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Pool             *pgxpool.Pool
	AuthMiddleware   func(http.Handler) http.Handler
	InventoryHandler *inventory.Handler
	PurchaseHandler  *purchasing.Handler
	SupplierHandler  *suppliers.Handler
	JobHandler       *jobs.Handler
}

// NewRouter constructs the chi.Router with the service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", healthz(params.Pool))

	mutationLimit := 30
	if params.Config != nil && params.Config.MutationLimitPerMinute > 0 {
		mutationLimit = params.Config.MutationLimitPerMinute
	}

	r.Route("/api", func(api chi.Router) {
		if params.AuthMiddleware != nil {
			api.Use(params.AuthMiddleware)
		}
		api.Use(MutationRateLimit(mutationLimit))

		if params.InventoryHandler != nil {
			params.InventoryHandler.MountRoutes(api)
		}
		if params.PurchaseHandler != nil {
			params.PurchaseHandler.MountRoutes(api)
		}
		if params.SupplierHandler != nil {
			params.SupplierHandler.MountRoutes(api)
		}
		if params.JobHandler != nil {
			params.JobHandler.MountRoutes(api)
		}
	})

	return r
}

func healthz(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pool != nil {
			if err := pool.Ping(r.Context()); err != nil {
				httpx.Fail(w, http.StatusServiceUnavailable, "database unreachable")
				return
			}
		}
		httpx.OK(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
