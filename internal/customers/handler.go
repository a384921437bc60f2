package customers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wayfarer-ops/wayfarer/internal/platform/httpx"
	"github.com/wayfarer-ops/wayfarer/internal/rbac"
	"github.com/wayfarer-ops/wayfarer/internal/shared"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

type listResponse struct {
	Customers  []Customer        `json:"customers"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	q := r.URL.Query()
	items, page, err := h.service.List(r.Context(), p, q.Get("search"), shared.ParsePageRequest(q))
	if err != nil {
		h.fail(w, "list customers", err)
		return
	}
	httpx.OK(w, listResponse{Customers: items, Pagination: page})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	c, err := h.service.Get(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get customer", err)
		return
	}
	httpx.OK(w, c)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateCustomerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	c, err := h.service.Create(r.Context(), p, req)
	if err != nil {
		h.fail(w, "create customer", err)
		return
	}
	httpx.Created(w, c)
}

func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	q := r.URL.Query()
	out, err := h.service.Overview(r.Context(), p, q.Get("customerId"), q.Get("enquiryId"))
	if err != nil {
		h.fail(w, "load customer overview", err)
		return
	}
	httpx.OK(w, out)
}

func (h *Handler) AddFeedback(w http.ResponseWriter, r *http.Request) {
	var req AddFeedbackRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	f, err := h.service.AddFeedback(r.Context(), p, req)
	if err != nil {
		h.fail(w, "add feedback", err)
		return
	}
	httpx.Created(w, f)
}

func (h *Handler) UpdateFeedback(w http.ResponseWriter, r *http.Request) {
	var req UpdateFeedbackRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	f, err := h.service.UpdateFeedback(r.Context(), p, req)
	if err != nil {
		h.fail(w, "update feedback", err)
		return
	}
	httpx.OK(w, f)
}

func (h *Handler) DeleteFeedback(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	if err := h.service.DeleteFeedback(r.Context(), p, r.URL.Query().Get("id")); err != nil {
		h.fail(w, "delete feedback", err)
		return
	}
	httpx.Message(w, "feedback deleted")
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError && h.logger != nil {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
