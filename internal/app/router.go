package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/wayfarer-ops/wayfarer/internal/auth"
	"github.com/wayfarer-ops/wayfarer/internal/customers"
	"github.com/wayfarer-ops/wayfarer/internal/dmcs"
	"github.com/wayfarer-ops/wayfarer/internal/enquiries"
	"github.com/wayfarer-ops/wayfarer/internal/itineraries"
	"github.com/wayfarer-ops/wayfarer/internal/observability"
	"github.com/wayfarer-ops/wayfarer/internal/payments"
	"github.com/wayfarer-ops/wayfarer/internal/platform/db"
	"github.com/wayfarer-ops/wayfarer/internal/platform/httpx"
	"github.com/wayfarer-ops/wayfarer/internal/rbac"
	"github.com/wayfarer-ops/wayfarer/internal/sharing"
	"github.com/wayfarer-ops/wayfarer/internal/users"
	"github.com/wayfarer-ops/wayfarer/jobs"
	"github.com/wayfarer-ops/wayfarer/report"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config
	// DB is probed before share-dmc, payment and PDF handlers.
	DB db.Pinger

	AuthService        *auth.Service
	AuthHandler        *auth.Handler
	EnquiriesHandler   *enquiries.Handler
	DMCsHandler        *dmcs.Handler
	SharingHandler     *sharing.Handler
	CustomersHandler   *customers.Handler
	PaymentsHandler    *payments.Handler
	ItinerariesHandler *itineraries.Handler
	UsersHandler       *users.Handler
	PermissionsHandler *rbac.PermissionsHandler
	ReportHandler      *report.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with the API defaults.
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

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Fail(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Fail(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.ReportHandler != nil {
		r.Route("/report", params.ReportHandler.MountRoutes)
	}

	probeWait := params.Config.probeWait()
	requireDB := db.RequireConnection(params.DB, probeWait, params.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			if params.AuthHandler != nil {
				params.AuthHandler.MountRoutes(r)
			}
			r.Group(func(r chi.Router) {
				r.Use(params.bearer())
				if params.PaymentsHandler != nil {
					r.With(requireDB).Route("/standalone-payment", params.PaymentsHandler.MountMethodRoutes)
				}
				if params.UsersHandler != nil {
					r.Route("/agency-add-user", params.UsersHandler.MountRoutes)
				}
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(params.bearer())
			if params.EnquiriesHandler != nil {
				r.Route("/enquiries", params.EnquiriesHandler.MountRoutes)
			}
			if params.DMCsHandler != nil {
				r.Route("/dmcs", params.DMCsHandler.MountRoutes)
			}
			if params.CustomersHandler != nil {
				params.CustomersHandler.MountRoutes(r)
			}
			if params.PermissionsHandler != nil {
				r.Route("/permissions", params.PermissionsHandler.MountRoutes)
			}

			r.Group(func(r chi.Router) {
				r.Use(requireDB)
				if params.SharingHandler != nil {
					r.Route("/share-dmc", params.SharingHandler.MountRoutes)
				}
				if params.PaymentsHandler != nil {
					r.Route("/payments", params.PaymentsHandler.MountRoutes)
				}
				if params.ItinerariesHandler != nil {
					params.ItinerariesHandler.MountRoutes(r)
				}
			})
		})
	})

	return r
}

// bearer returns the token middleware, or a middleware rejecting every request
// when no auth service is wired.
func (p RouterParams) bearer() func(http.Handler) http.Handler {
	if p.AuthService != nil {
		return p.AuthService.RequireBearer
	}
	return func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			httpx.Fail(w, http.StatusUnauthorized, "authentication unavailable")
		})
	}
}
