package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/costing"
	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/ledger"
	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/observability"
	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/payables"
	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/purchases"
	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	PurchasesHandler *purchases.Handler
	PayablesHandler  *payables.Handler
	LedgerHandler    *ledger.Handler
	CostingHandler   *costing.Handler
	JobsHandler      *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		if params.PurchasesHandler != nil {
			params.PurchasesHandler.MountRoutes(r)
		}
		if params.PayablesHandler != nil {
			params.PayablesHandler.MountRoutes(r)
		}
		if params.LedgerHandler != nil {
			params.LedgerHandler.MountRoutes(r)
		}
		if params.CostingHandler != nil {
			params.CostingHandler.MountRoutes(r)
		}
		if params.JobsHandler != nil {
			r.Route("/jobs", params.JobsHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
