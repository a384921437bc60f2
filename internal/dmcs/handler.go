package dmcs

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wayfarer-ops/wayfarer/internal/platform/httpx"
	"github.com/wayfarer-ops/wayfarer/internal/rbac"
	"github.com/wayfarer-ops/wayfarer/internal/shared"
)

// Handler exposes the DMC directory.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers DMC routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermDMCView))
		r.Get("/", h.list)
		r.Get("/{id}", h.show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermDMCEdit))
		r.Post("/", h.upsert)
		r.Put("/{id}", h.upsert)
		r.Patch("/{id}/status", h.setStatus)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	q := r.URL.Query()
	var (
		list []DMC
		err  error
	)
	if locations := q.Get("locations"); locations != "" || q.Get("status") == string(StatusActive) {
		list, err = h.service.ListActive(r.Context(), p.AgencyID, SplitPlaces(locations))
	} else {
		list, err = h.service.List(r.Context(), p.AgencyID, Status(q.Get("status")))
	}
	if err != nil {
		h.fail(w, "list dmcs", err)
		return
	}
	httpx.OK(w, list)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	d, err := h.service.Get(r.Context(), p.AgencyID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get dmc", err)
		return
	}
	httpx.OK(w, d)
}

func (h *Handler) upsert(w http.ResponseWriter, r *http.Request) {
	var in UpsertInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if id := chi.URLParam(r, "id"); id != "" {
		in.ID = id
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	d, err := h.service.Upsert(r.Context(), p, in)
	if err != nil {
		h.fail(w, "upsert dmc", err)
		return
	}
	httpx.OK(w, d)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	var in StatusInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	d, err := h.service.SetStatus(r.Context(), p, chi.URLParam(r, "id"), in.Status)
	if err != nil {
		h.fail(w, "set dmc status", err)
		return
	}
	httpx.OK(w, d)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError && h.logger != nil {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
