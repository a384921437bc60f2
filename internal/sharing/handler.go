package sharing

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wayfarer-ops/wayfarer/internal/platform/httpx"
	"github.com/wayfarer-ops/wayfarer/internal/rbac"
	"github.com/wayfarer-ops/wayfarer/internal/shared"
)

// Handler exposes /api/share-dmc.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers share-dmc routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(rbac.PermShareDMC, rbac.PermEnquiryView)).Get("/", h.overview)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermShareDMC))
		r.Post("/", h.create)
		r.Put("/", h.update)
	})
}

func (h *Handler) overview(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	q := r.URL.Query()
	out, err := h.service.Overview(r.Context(), p, q.Get("enquiryId"), q.Get("customerId"), q.Get("locations"))
	if err != nil {
		h.fail(w, "load shared dmcs", err)
		return
	}
	httpx.OK(w, out)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateRoundInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	res, err := h.service.CreateRound(r.Context(), p, in)
	if err != nil {
		h.fail(w, "share with dmcs", err)
		return
	}
	httpx.Created(w, res)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	ctx := r.Context()
	switch req.Action {
	case ActionToggleActive:
		round, err := h.service.ToggleActive(ctx, p, req.SharedDMCID, req.IsActive)
		if err != nil {
			h.fail(w, "toggle shared dmc", err)
			return
		}
		httpx.OK(w, round)
	case ActionUpdateDMCStatus:
		item, err := h.service.UpdateItemStatus(ctx, p, req.ItemID, req.Status, req.Notes)
		if err != nil {
			h.fail(w, "update shared dmc status", err)
			return
		}
		httpx.OK(w, item)
	case ActionAddCommission:
		if !rbac.Can(p.Role, rbac.PermCommissionEdit) {
			httpx.Fail(w, http.StatusForbidden, "insufficient permissions")
			return
		}
		c, err := h.service.AddCommission(ctx, p, CommissionInput{
			EnquiryID:        req.EnquiryID,
			DMCID:            req.DMCID,
			QuotationAmount:  req.QuotationAmount,
			CommissionType:   req.CommissionType,
			CommissionAmount: req.CommissionAmount,
			MarkupPrice:      req.MarkupPrice,
			Comments:         req.Comments,
		})
		if err != nil {
			h.fail(w, "save commission", err)
			return
		}
		httpx.OK(w, c)
	case ActionShareToCustomer:
		if !rbac.Can(p.Role, rbac.PermShareCustomer) {
			httpx.Fail(w, http.StatusForbidden, "insufficient permissions")
			return
		}
		res, err := h.service.ShareToCustomer(ctx, p, ShareCustomerInput{
			EnquiryID:   req.EnquiryID,
			CustomerID:  req.CustomerID,
			DMCID:       req.DMCID,
			ItineraryID: req.ItineraryID,
			PDFPath:     req.PDFPath,
			Notes:       req.Notes,
		})
		if err != nil {
			h.fail(w, "share quote with customer", err)
			return
		}
		httpx.OK(w, res)
	case ActionAddDMC:
		res, err := h.service.AddDMC(ctx, p, req.SharedDMCID, req.DMCID)
		if err != nil {
			h.fail(w, "add dmc to round", err)
			return
		}
		httpx.OK(w, res)
	}
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError && h.logger != nil {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
