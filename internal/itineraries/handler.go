package itineraries

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wayfarer-ops/wayfarer/internal/platform/httpx"
	"github.com/wayfarer-ops/wayfarer/internal/rbac"
	"github.com/wayfarer-ops/wayfarer/internal/shared"
)

// Handler exposes itinerary and PDF generation endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers /itineraries and /generate-pdf on the API router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/itineraries", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAny(rbac.PermEnquiryView, rbac.PermItineraryGenerate))
			r.Get("/", h.list)
			r.Get("/{id}", h.show)
			r.Get("/{id}/versions", h.versions)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAll(rbac.PermItineraryGenerate))
			r.Post("/", h.create)
			r.Post("/{id}/versions/{versionId}/activate", h.activate)
		})
	})
	r.With(h.rbac.RequireAll(rbac.PermItineraryGenerate)).Post("/generate-pdf", h.generate)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	enquiryID := r.URL.Query().Get("enquiryId")
	if enquiryID == "" {
		httpx.Fail(w, http.StatusBadRequest, "enquiryId is required")
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	items, err := h.service.ListByEnquiry(r.Context(), p, enquiryID)
	if err != nil {
		h.fail(w, "list itineraries", err)
		return
	}
	if items == nil {
		items = []Itinerary{}
	}
	httpx.OK(w, items)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	it, err := h.service.Get(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get itinerary", err)
		return
	}
	httpx.OK(w, it)
}

func (h *Handler) versions(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	items, err := h.service.ListVersions(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "list pdf versions", err)
		return
	}
	if items == nil {
		items = []PDFVersion{}
	}
	httpx.OK(w, items)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	it, err := h.service.Create(r.Context(), p, in)
	if err != nil {
		h.fail(w, "create itinerary", err)
		return
	}
	httpx.Created(w, it)
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	v, err := h.service.Activate(r.Context(), p, chi.URLParam(r, "id"), chi.URLParam(r, "versionId"))
	if err != nil {
		h.fail(w, "activate pdf version", err)
		return
	}
	httpx.OK(w, v)
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	var in GenerateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	res, err := h.service.Generate(r.Context(), p, in)
	if err != nil {
		h.fail(w, "generate itinerary pdf", err)
		return
	}
	httpx.OK(w, res)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError && h.logger != nil {
		h.logger.Error(op, slog.Any("error", err), slog.String("code", shared.ErrorCode(err)))
	}
	httpx.RespondError(w, err)
}
