package enquiries

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wayfarer-ops/wayfarer/internal/platform/httpx"
	"github.com/wayfarer-ops/wayfarer/internal/rbac"
	"github.com/wayfarer-ops/wayfarer/internal/shared"
)

// Handler exposes enquiry endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers enquiry routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermEnquiryView))
		r.Get("/", h.list)
		r.Get("/board", h.board)
		r.Get("/statuses", h.statuses)
		r.Get("/{id}", h.show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermEnquiryEdit))
		r.Post("/", h.create)
		r.Put("/", h.update)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.archive)
	})
}

type listResponse struct {
	Enquiries  []Enquiry         `json:"enquiries"`
	Pagination shared.Pagination `json:"pagination"`
}

type statusInfo struct {
	Status Status   `json:"status"`
	Label  string   `json:"label"`
	Next   []Status `json:"next"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	q := r.URL.Query()
	items, page, err := h.service.List(r.Context(), p, ListFilter{
		Status:          Status(q.Get("status")),
		AssignedStaffID: q.Get("assignedStaff"),
		Search:          q.Get("search"),
		Page:            shared.ParsePageRequest(q),
	})
	if err != nil {
		h.fail(w, "list enquiries", err)
		return
	}
	httpx.OK(w, listResponse{Enquiries: items, Pagination: page})
}

func (h *Handler) board(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	cols, err := h.service.Board(r.Context(), p, r.URL.Query().Get("assignedStaff"))
	if err != nil {
		h.fail(w, "load board", err)
		return
	}
	httpx.OK(w, cols)
}

func (h *Handler) statuses(w http.ResponseWriter, _ *http.Request) {
	all := Statuses()
	out := make([]statusInfo, 0, len(all))
	for _, st := range all {
		out = append(out, statusInfo{Status: st, Label: Label(st), Next: NextStatuses(st)})
	}
	httpx.OK(w, out)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	e, err := h.service.Get(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get enquiry", err)
		return
	}
	httpx.OK(w, e)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	e, err := h.service.Create(r.Context(), p, in)
	if err != nil {
		h.fail(w, "create enquiry", err)
		return
	}
	httpx.Created(w, e)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var in UpdateInput
	if id := chi.URLParam(r, "id"); id != "" {
		in.ID = id
	}
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if id := chi.URLParam(r, "id"); id != "" {
		in.ID = id
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	res, err := h.service.Update(r.Context(), p, in)
	if err != nil {
		h.fail(w, "update enquiry", err)
		return
	}
	httpx.OK(w, res)
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	if err := h.service.Archive(r.Context(), p, chi.URLParam(r, "id")); err != nil {
		h.fail(w, "archive enquiry", err)
		return
	}
	httpx.Message(w, "enquiry archived")
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError && h.logger != nil {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
