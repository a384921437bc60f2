package payments

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wayfarer-ops/wayfarer/internal/platform/httpx"
	"github.com/wayfarer-ops/wayfarer/internal/rbac"
	"github.com/wayfarer-ops/wayfarer/internal/shared"
)

// IdempotencyHeader deduplicates payment submissions.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes payment endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers /api/payments.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermPaymentView))
		r.Get("/", h.history)
		r.Get("/{id}/receipt", h.receipt)
		r.Get("/{id}/invoice", h.invoice)
	})
	r.With(h.rbac.RequireAll(rbac.PermPaymentRecord)).Post("/", h.record)
}

// MountMethodRoutes registers /api/auth/standalone-payment.
func (h *Handler) MountMethodRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(rbac.PermPaymentView, rbac.PermPaymentConfigure)).Get("/", h.listMethods)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermPaymentConfigure))
		r.Post("/", h.createMethod)
		r.Put("/", h.updateMethod)
		r.Delete("/", h.deleteMethod)
	})
}

func (h *Handler) record(w http.ResponseWriter, r *http.Request) {
	in, err := parseRecordForm(w, r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	res, err := h.service.Record(r.Context(), p, in)
	if err != nil {
		h.fail(w, "record payment", err)
		return
	}
	httpx.Created(w, res)
}

func parseRecordForm(w http.ResponseWriter, r *http.Request) (RecordInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxReceiptBytes+1<<20)
	if err := r.ParseMultipartForm(MaxReceiptBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return RecordInput{}, shared.NewError(shared.ErrValidation, "receipt must be at most 10 MiB")
		}
		return RecordInput{}, shared.NewError(shared.ErrValidation, "expected multipart form data")
	}
	in := RecordInput{
		EnquiryID:      strings.TrimSpace(r.FormValue("enquiryId")),
		DMCID:          strings.TrimSpace(r.FormValue("dmcId")),
		PaymentDate:    r.FormValue("paymentDate"),
		TransactionID:  r.FormValue("transactionId"),
		Channel:        r.FormValue("paymentChannel"),
		Currency:       strings.ToUpper(strings.TrimSpace(r.FormValue("currency"))),
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	}
	verr := &shared.ValidationError{}
	if raw := r.FormValue("amountPaid"); raw != "" {
		amount, err := shared.ParseMoney(raw)
		if err != nil {
			verr.Add("amountPaid", "must be a decimal amount")
		}
		in.AmountPaid = amount
	}
	if raw := r.FormValue("totalCost"); raw != "" {
		total, err := shared.ParseMoney(raw)
		if err != nil {
			verr.Add("totalCost", "must be a decimal amount")
		}
		in.TotalCost = total
	}
	if err := verr.Err(); err != nil {
		return RecordInput{}, err
	}

	file, header, err := r.FormFile("receipt")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return in, nil
	case err != nil:
		return RecordInput{}, shared.NewError(shared.ErrValidation, "invalid receipt upload")
	}
	defer file.Close()
	body, err := io.ReadAll(io.LimitReader(file, MaxReceiptBytes+1))
	if err != nil {
		return RecordInput{}, fmt.Errorf("read receipt: %w", err)
	}
	in.Receipt = &ReceiptFile{Filename: header.Filename, ContentType: header.Header.Get("Content-Type"), Body: body}
	return in, nil
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	q := r.URL.Query()
	out, err := h.service.History(r.Context(), p, q.Get("enquiryId"), q.Get("dmcId"))
	if err != nil {
		h.fail(w, "load payment history", err)
		return
	}
	httpx.OK(w, out)
}

func (h *Handler) receipt(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	url, err := h.service.ReceiptURL(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "resolve receipt", err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (h *Handler) invoice(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	pdf, filename, err := h.service.Invoice(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "render invoice", err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) listMethods(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	list, err := h.service.Methods(r.Context(), p, r.URL.Query().Get("dmcId"))
	if err != nil {
		h.fail(w, "list payment methods", err)
		return
	}
	httpx.OK(w, list)
}

func (h *Handler) createMethod(w http.ResponseWriter, r *http.Request) {
	var in MethodInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	m, err := h.service.CreateMethod(r.Context(), p, in)
	if err != nil {
		h.fail(w, "create payment method", err)
		return
	}
	httpx.Created(w, m)
}

func (h *Handler) updateMethod(w http.ResponseWriter, r *http.Request) {
	var in MethodInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	m, err := h.service.UpdateMethod(r.Context(), p, in)
	if err != nil {
		h.fail(w, "update payment method", err)
		return
	}
	httpx.OK(w, m)
}

func (h *Handler) deleteMethod(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	if err := h.service.DeleteMethod(r.Context(), p, r.URL.Query().Get("dmcId")); err != nil {
		h.fail(w, "delete payment method", err)
		return
	}
	httpx.Message(w, "payment method removed")
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError && h.logger != nil {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
