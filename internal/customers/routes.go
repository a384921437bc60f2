package customers

import (
	"github.com/go-chi/chi/v5"

	"github.com/wayfarer-ops/wayfarer/internal/rbac"
)

// MountRoutes registers /customers and /share-customer on the API router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/customers", func(r chi.Router) {
		r.With(h.rbac.RequireAny(rbac.PermEnquiryView)).Get("/", h.List)
		r.With(h.rbac.RequireAny(rbac.PermEnquiryView)).Get("/{id}", h.Show)
		r.With(h.rbac.RequireAll(rbac.PermEnquiryEdit)).Post("/", h.Create)
	})
	r.Route("/share-customer", func(r chi.Router) {
		r.With(h.rbac.RequireAny(rbac.PermEnquiryView)).Get("/", h.Overview)
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAll(rbac.PermEnquiryEdit))
			r.Post("/", h.AddFeedback)
			r.Put("/", h.UpdateFeedback)
			r.Delete("/", h.DeleteFeedback)
		})
	})
}
