package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/wayfarer-ops/wayfarer/internal/dmcs"
	"github.com/wayfarer-ops/wayfarer/internal/enquiries"
	"github.com/wayfarer-ops/wayfarer/internal/outbox"
	"github.com/wayfarer-ops/wayfarer/internal/platform/events"
	"github.com/wayfarer-ops/wayfarer/internal/platform/storage"
	"github.com/wayfarer-ops/wayfarer/internal/shared"
	"github.com/wayfarer-ops/wayfarer/internal/view"
	"github.com/wayfarer-ops/wayfarer/report"
)

// EnquiryLookup resolves enquiries visible to the caller.
type EnquiryLookup interface {
	Get(ctx context.Context, p shared.Principal, id string) (enquiries.Enquiry, error)
}

// DMCLookup resolves DMC partners.
type DMCLookup interface {
	Get(ctx context.Context, agencyID, id string) (dmcs.DMC, error)
}

// DeliveryReader reports notification delivery state.
type DeliveryReader interface {
	Deliveries(ctx context.Context, ids []string) (map[string]outbox.Delivery, error)
}

// Renderer renders named templates.
type Renderer interface {
	RenderString(name string, data any) (string, error)
}

// Config wires the service dependencies.
type Config struct {
	Repo         Repository
	Enquiries    EnquiryLookup
	DMCs         DMCLookup
	Storage      storage.Storage
	Outbox       outbox.Publisher
	Deliveries   DeliveryReader
	Views        Renderer
	PDF          report.Renderer
	Idempotency  shared.IdempotencyGuard
	SignedURLTTL time.Duration
	Audit        shared.AuditRecorder
	Events       events.Publisher
	Logger       *slog.Logger
}

// Service records payments and manages payment methods.
type Service struct {
	repo        Repository
	enquiries   EnquiryLookup
	dmcs        DMCLookup
	storage     storage.Storage
	outbox      outbox.Publisher
	deliveries  DeliveryReader
	views       Renderer
	pdf         report.Renderer
	idempotency shared.IdempotencyGuard
	signedTTL   time.Duration
	audit       shared.AuditRecorder
	events      events.Publisher
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs the payments service.
func NewService(cfg Config) *Service {
	s := &Service{
		repo:        cfg.Repo,
		enquiries:   cfg.Enquiries,
		dmcs:        cfg.DMCs,
		storage:     cfg.Storage,
		outbox:      cfg.Outbox,
		deliveries:  cfg.Deliveries,
		views:       cfg.Views,
		pdf:         cfg.PDF,
		idempotency: cfg.Idempotency,
		signedTTL:   cfg.SignedURLTTL,
		audit:       cfg.Audit,
		events:      cfg.Events,
		logger:      cfg.Logger,
		now:         time.Now,
	}
	if s.storage == nil {
		s.storage = storage.Disabled{}
	}
	if s.signedTTL <= 0 {
		s.signedTTL = 15 * time.Minute
	}
	if s.audit == nil {
		s.audit = shared.NopAudit{}
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Record stores a payment with its receipt. The remaining balance is cumulative
// over every payment of the (enquiry, DMC) pair and computed under a pair lock.
func (s *Service) Record(ctx context.Context, p shared.Principal, in RecordInput) (RecordResult, error) {
	channel, date, err := validateRecord(in)
	if err != nil {
		return RecordResult{}, err
	}
	ext, contentType, err := detectReceipt(in.Receipt.Body)
	if err != nil {
		return RecordResult{}, err
	}
	enq, err := s.enquiries.Get(ctx, p, in.EnquiryID)
	if err != nil {
		return RecordResult{}, err
	}
	partner, err := s.dmcs.Get(ctx, p.AgencyID, in.DMCID)
	if err != nil {
		return RecordResult{}, err
	}

	idemKey := ""
	if key := strings.TrimSpace(in.IdempotencyKey); key != "" && s.idempotency != nil {
		idemKey = p.AgencyID + ":" + key
		if err := s.idempotency.CheckAndInsert(ctx, idemKey, shared.IdempotencyPayments); err != nil {
			return RecordResult{}, err
		}
	}
	release := func() {
		if idemKey != "" {
			if err := s.idempotency.Delete(ctx, idemKey); err != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", err))
			}
		}
	}

	filename := receiptName(in.Receipt.Filename, ext)
	obj, err := s.storage.Upload(ctx, storage.BuildKey(path.Join("receipts", enq.ID, partner.ID), filename), in.Receipt.Body, contentType)
	if err != nil {
		release()
		if errors.Is(err, storage.ErrNotConfigured) {
			return RecordResult{}, shared.NewCodedError(shared.ErrValidation, CodeStorageNotConfigured, "object storage is not configured")
		}
		return RecordResult{}, shared.NewCodedError(errUpload, CodeUploadFailed, "upload receipt: "+err.Error())
	}

	now := s.now().UTC()
	pay := Payment{
		ID:                 uuid.NewString(),
		AgencyID:           p.AgencyID,
		EnquiryID:          enq.ID,
		DMCID:              partner.ID,
		AmountPaid:         in.AmountPaid,
		PaymentDate:        date,
		TransactionID:      strings.TrimSpace(in.TransactionID),
		Channel:            channel,
		Currency:           firstNonEmpty(in.Currency, enq.Currency, "INR"),
		ReceiptKey:         obj.Key,
		ReceiptURL:         obj.URL,
		ReceiptFilename:    filename,
		ReceiptContentType: contentType,
		RecordedBy:         p.UserID,
		CreatedAt:          now,
	}

	var (
		summary Summary
		staged  *outbox.Notification
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockPair(ctx, pay.EnquiryID, pay.DMCID); err != nil {
			return err
		}
		prior, err := tx.Totals(ctx, p.AgencyID, pay.EnquiryID, pay.DMCID)
		if err != nil {
			return err
		}
		pay.TotalCost = in.TotalCost
		if pay.TotalCost == 0 {
			pay.TotalCost = prior.TotalCost
		}
		if pay.TotalCost <= 0 {
			return shared.NewError(shared.ErrValidation, "totalCost is required for the first payment")
		}
		paid, err := prior.Paid.Add(pay.AmountPaid)
		if err != nil {
			return shared.NewError(shared.ErrValidation, "amountPaid is out of range")
		}
		if paid > pay.TotalCost {
			remaining := pay.TotalCost - prior.Paid
			return shared.NewCodedError(shared.ErrValidation, CodeOverpayment,
				fmt.Sprintf("%s: remaining %s", ErrOverpayment.Error(), remaining.String()))
		}
		pay.RemainingBalance = pay.TotalCost - paid
		pay.Status = StatusFor(pay.TotalCost, paid)

		if strings.TrimSpace(partner.Email) != "" {
			n, err := s.notice(p, partner, pay)
			if err != nil {
				return err
			}
			pay.NotificationID = n.ID
			staged = &n
		}
		if err := tx.Insert(ctx, pay); err != nil {
			return err
		}
		if staged != nil {
			if err := tx.StageNotification(ctx, *staged); err != nil {
				return err
			}
		}
		summary = Summary{
			TotalCost:        pay.TotalCost,
			TotalPaid:        paid,
			RemainingBalance: pay.RemainingBalance,
			PaymentStatus:    pay.Status,
			Count:            prior.Count + 1,
			Currency:         pay.Currency,
		}
		return nil
	})
	if err != nil {
		release()
		if derr := s.storage.Delete(ctx, obj.Key); derr != nil {
			s.logger.Warn("remove orphaned receipt", slog.String("key", obj.Key), slog.Any("error", derr))
		}
		return RecordResult{}, mapErr(err)
	}

	result := RecordResult{
		Payment: HistoryRow{Payment: pay, Date: pay.PaymentDateDisplay(), RunningBalance: pay.RemainingBalance},
		Summary: summary,
	}
	if staged == nil {
		result.Notification = NotificationResult{Error: "DMC has no email address"}
	} else {
		result.Notification = s.dispatch(ctx, *staged)
	}

	s.record(ctx, p, "payment.record", pay.ID, map[string]any{
		"enquiry_id": pay.EnquiryID, "dmc_id": pay.DMCID, "amount": pay.AmountPaid.String(), "remaining": pay.RemainingBalance.String(),
	})
	events.Emit(ctx, s.events, s.logger, events.Event{
		Type:      events.PaymentRecorded,
		AgencyID:  p.AgencyID,
		SubjectID: pay.ID,
		Payload: map[string]any{
			"enquiryId": pay.EnquiryID, "dmcId": pay.DMCID, "amountPaid": pay.AmountPaid.String(),
			"remainingBalance": pay.RemainingBalance.String(), "paymentStatus": string(pay.Status),
		},
	})
	s.logger.Info("payment recorded",
		slog.String("payment_id", pay.ID),
		slog.String("enquiry_id", pay.EnquiryID),
		slog.String("dmc_id", pay.DMCID),
		slog.String("remaining", pay.RemainingBalance.String()),
	)
	return result, nil
}

var errUpload = errors.New("receipt upload failed")

func validateRecord(in RecordInput) (Channel, time.Time, error) {
	verr := &shared.ValidationError{}
	if strings.TrimSpace(in.EnquiryID) == "" {
		verr.Add("enquiryId", "is required")
	}
	if strings.TrimSpace(in.DMCID) == "" {
		verr.Add("dmcId", "is required")
	}
	if in.AmountPaid <= 0 {
		verr.Add("amountPaid", "must be greater than 0")
	}
	if in.TotalCost < 0 {
		verr.Add("totalCost", "must not be negative")
	}
	var date time.Time
	if strings.TrimSpace(in.PaymentDate) == "" {
		verr.Add("paymentDate", "is required")
	} else if d, err := shared.ParseDate(in.PaymentDate); err != nil {
		verr.Add("paymentDate", "must be DD-MM-YYYY or YYYY-MM-DD")
	} else {
		date = d
	}
	channel, ok := ParseChannel(in.Channel)
	if !ok {
		verr.Add("paymentChannel", "must be one of BANK_TRANSFER GATEWAY CASH UPI")
	}
	switch {
	case in.Receipt == nil || len(in.Receipt.Body) == 0:
		verr.Add("receipt", "is required")
	case len(in.Receipt.Body) > MaxReceiptBytes:
		verr.Add("receipt", "must be at most 10 MiB")
	}
	return channel, date, verr.Err()
}

// detectReceipt sniffs the receipt body rather than trusting the client header.
func detectReceipt(body []byte) (string, string, error) {
	mt := mimetype.Detect(body)
	for contentType, ext := range receiptTypes {
		if mt.Is(contentType) {
			return ext, contentType, nil
		}
	}
	verr := &shared.ValidationError{}
	verr.Add("receipt", "must be a PDF, PNG or JPEG file")
	return "", "", verr
}

func receiptName(raw, ext string) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(raw), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "receipt"
	}
	if !strings.EqualFold(path.Ext(name), ext) {
		name = strings.TrimSuffix(name, path.Ext(name)) + ext
	}
	return name
}

func (s *Service) notice(p shared.Principal, partner dmcs.DMC, pay Payment) (outbox.Notification, error) {
	html, err := s.views.RenderString(view.EmailPaymentNotice, map[string]any{
		"DMCName":          firstNonEmpty(partner.ContactPerson, partner.Name),
		"Amount":           pay.AmountPaid.Display(pay.Currency),
		"PaymentDate":      pay.PaymentDateDisplay(),
		"EnquiryID":        pay.EnquiryID,
		"Channel":          strings.ReplaceAll(string(pay.Channel), "_", " "),
		"Reference":        pay.TransactionID,
		"RemainingBalance": pay.RemainingBalance.Display(pay.Currency),
		"PaymentStatus":    string(pay.Status),
	})
	if err != nil {
		return outbox.Notification{}, fmt.Errorf("render payment notice: %w", err)
	}
	return outbox.New(outbox.Draft{
		AgencyID:    p.AgencyID,
		Kind:        outbox.KindPaymentNotice,
		Recipient:   partner.Email,
		Subject:     fmt.Sprintf("Payment of %s received for enquiry %s", pay.AmountPaid.Display(pay.Currency), pay.EnquiryID),
		HTML:        html,
		SubjectType: outbox.SubjectPayment,
		SubjectID:   pay.ID,
		Attachments: []outbox.AttachmentRef{{
			Filename:    pay.ReceiptFilename,
			ContentType: pay.ReceiptContentType,
			StorageKey:  pay.ReceiptKey,
		}},
	}), nil
}

// dispatch publishes the committed notice. Failures never fail the payment.
func (s *Service) dispatch(ctx context.Context, n outbox.Notification) NotificationResult {
	res := NotificationResult{ID: n.ID, Recipient: n.Recipient, Queued: true}
	if s.outbox == nil {
		return res
	}
	if err := s.outbox.Publish(ctx, n.ID); err != nil {
		s.logger.Warn("publish payment notice", slog.String("notification_id", n.ID), slog.Any("error", err))
	}
	if s.deliveries == nil {
		return res
	}
	state, err := s.deliveries.Deliveries(ctx, []string{n.ID})
	if err != nil {
		s.logger.Warn("read delivery state", slog.Any("error", err))
		return res
	}
	if d, ok := state[n.ID]; ok {
		switch d.Status {
		case outbox.StatusSent:
			res.Sent = true
		case outbox.StatusFailed:
			res.Queued = false
			res.Error = d.LastError
		}
	}
	return res
}

// History lists payments for a pair with the cumulative balance after each row.
func (s *Service) History(ctx context.Context, p shared.Principal, enquiryID, dmcID string) (History, error) {
	if strings.TrimSpace(enquiryID) == "" {
		return History{}, shared.NewError(shared.ErrValidation, "enquiryId is required")
	}
	if _, err := s.enquiries.Get(ctx, p, enquiryID); err != nil {
		return History{}, err
	}
	list, err := s.repo.List(ctx, p.AgencyID, enquiryID, dmcID)
	if err != nil {
		return History{}, err
	}
	return buildHistory(list), nil
}

// buildHistory computes running balances per DMC, so a history spanning
// several DMCs of one enquiry keeps each pair separate.
func buildHistory(list []Payment) History {
	rows := make([]HistoryRow, 0, len(list))
	paid := make(map[string]shared.Money)
	totals := make(map[string]shared.Money)
	var order []string
	for _, pay := range list {
		if _, ok := totals[pay.DMCID]; !ok {
			order = append(order, pay.DMCID)
		}
		paid[pay.DMCID] += pay.AmountPaid
		totals[pay.DMCID] = pay.TotalCost
		rows = append(rows, HistoryRow{
			Payment:        pay,
			Date:           pay.PaymentDateDisplay(),
			RunningBalance: pay.TotalCost - paid[pay.DMCID],
		})
	}
	sum := Summary{Count: len(rows), PaymentStatus: StatusPending}
	for _, dmcID := range order {
		sum.TotalCost += totals[dmcID]
		sum.TotalPaid += paid[dmcID]
	}
	sum.RemainingBalance = sum.TotalCost - sum.TotalPaid
	if len(rows) > 0 {
		sum.PaymentStatus = StatusFor(sum.TotalCost, sum.TotalPaid)
		sum.Currency = rows[len(rows)-1].Currency
	}
	return History{Payments: rows, Summary: sum}
}

// ReceiptURL returns a short-lived URL for the payment's receipt.
func (s *Service) ReceiptURL(ctx context.Context, p shared.Principal, id string) (string, error) {
	pay, err := s.repo.Get(ctx, p.AgencyID, id)
	if err != nil {
		return "", mapErr(err)
	}
	key := pay.ReceiptKey
	if key == "" {
		key, _ = storage.ResolveKey(s.storage, pay.ReceiptURL)
	}
	if key == "" {
		return "", shared.NewError(shared.ErrNotFound, ErrNoReceipt.Error())
	}
	url, err := s.storage.SignedURL(ctx, key, s.signedTTL)
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
		return "", shared.NewError(shared.ErrNotFound, ErrNoReceipt.Error())
	case errors.Is(err, storage.ErrNotConfigured):
		if pay.ReceiptURL != "" {
			return pay.ReceiptURL, nil
		}
		return "", shared.NewError(shared.ErrNotFound, ErrNoReceipt.Error())
	case err != nil:
		return "", fmt.Errorf("sign receipt url: %w", err)
	}
	return url, nil
}

// Invoice renders the payment invoice PDF, listing the pair's payments up to this one.
func (s *Service) Invoice(ctx context.Context, p shared.Principal, id string) ([]byte, string, error) {
	pay, err := s.repo.Get(ctx, p.AgencyID, id)
	if err != nil {
		return nil, "", mapErr(err)
	}
	enq, err := s.enquiries.Get(ctx, p, pay.EnquiryID)
	if err != nil {
		return nil, "", err
	}
	dmcName := pay.DMCID
	if partner, err := s.dmcs.Get(ctx, p.AgencyID, pay.DMCID); err == nil {
		dmcName = partner.Name
	}
	list, err := s.repo.List(ctx, p.AgencyID, pay.EnquiryID, pay.DMCID)
	if err != nil {
		return nil, "", err
	}
	type invoiceRow struct {
		Date, Channel, Reference, Amount, Remaining string
	}
	var rows []invoiceRow
	for _, r := range buildHistory(list).Payments {
		rows = append(rows, invoiceRow{
			Date:      r.Date,
			Channel:   strings.ReplaceAll(string(r.Channel), "_", " "),
			Reference: r.TransactionID,
			Amount:    r.AmountPaid.Display(r.Currency),
			Remaining: r.RunningBalance.Display(r.Currency),
		})
		if r.ID == pay.ID {
			break
		}
	}
	number := invoiceNumber(pay)
	html, err := s.views.RenderString(view.PDFInvoice, map[string]any{
		"InvoiceNumber":    number,
		"IssuedAt":         shared.FormatDate(s.now().UTC()),
		"DMCName":          dmcName,
		"EnquiryID":        pay.EnquiryID,
		"Customer":         enq.Name,
		"TotalCost":        pay.TotalCost.Display(pay.Currency),
		"AmountPaid":       pay.AmountPaid.Display(pay.Currency),
		"RemainingBalance": pay.RemainingBalance.Display(pay.Currency),
		"PaymentStatus":    string(pay.Status),
		"Rows":             rows,
	})
	if err != nil {
		return nil, "", fmt.Errorf("render invoice: %w", err)
	}
	pdf, err := s.pdf.RenderHTML(ctx, html)
	if err != nil {
		return nil, "", fmt.Errorf("render invoice pdf: %w", err)
	}
	return pdf, "invoice_" + number + ".pdf", nil
}

func invoiceNumber(p Payment) string {
	short := strings.ReplaceAll(p.ID, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("INV-%s-%s", p.PaymentDate.Format("20060102"), strings.ToUpper(short))
}

// Methods lists standalone payment methods, optionally for one DMC.
func (s *Service) Methods(ctx context.Context, p shared.Principal, dmcID string) ([]Method, error) {
	list, err := s.repo.ListMethods(ctx, p.AgencyID, strings.TrimSpace(dmcID))
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []Method{}
	}
	return list, nil
}

// CreateMethod configures a DMC's payment method.
func (s *Service) CreateMethod(ctx context.Context, p shared.Principal, in MethodInput) (Method, error) {
	if err := s.checkMethod(ctx, p, in); err != nil {
		return Method{}, err
	}
	now := s.now().UTC()
	m := methodFrom(in)
	m.ID = uuid.NewString()
	m.AgencyID = p.AgencyID
	m.UpdatedBy = p.UserID
	m.CreatedAt, m.UpdatedAt = now, now
	if err := s.repo.CreateMethod(ctx, m); err != nil {
		return Method{}, mapErr(err)
	}
	s.record(ctx, p, "payment_method.create", m.ID, map[string]any{"dmc_id": m.DMCID})
	return m, nil
}

// UpdateMethod replaces a DMC's payment method.
func (s *Service) UpdateMethod(ctx context.Context, p shared.Principal, in MethodInput) (Method, error) {
	if err := s.checkMethod(ctx, p, in); err != nil {
		return Method{}, err
	}
	m := methodFrom(in)
	m.AgencyID = p.AgencyID
	m.UpdatedBy = p.UserID
	saved, err := s.repo.UpdateMethod(ctx, m)
	if err != nil {
		return Method{}, mapErr(err)
	}
	s.record(ctx, p, "payment_method.update", saved.ID, map[string]any{"dmc_id": saved.DMCID})
	return saved, nil
}

// DeleteMethod removes a DMC's payment method.
func (s *Service) DeleteMethod(ctx context.Context, p shared.Principal, dmcID string) error {
	if strings.TrimSpace(dmcID) == "" {
		return shared.NewError(shared.ErrValidation, "dmcId is required")
	}
	if err := s.repo.DeleteMethod(ctx, p.AgencyID, dmcID); err != nil {
		return mapErr(err)
	}
	s.record(ctx, p, "payment_method.delete", dmcID, nil)
	return nil
}

func (s *Service) checkMethod(ctx context.Context, p shared.Principal, in MethodInput) error {
	if in.empty() {
		return shared.NewError(shared.ErrValidation, "provide an account number, UPI id, gateway link or QR image")
	}
	if in.AccountNumber != "" && strings.TrimSpace(in.AccountName) == "" {
		return shared.NewError(shared.ErrValidation, "accountName is required with an account number")
	}
	_, err := s.dmcs.Get(ctx, p.AgencyID, in.DMCID)
	return err
}

func methodFrom(in MethodInput) Method {
	return Method{
		DMCID:         strings.TrimSpace(in.DMCID),
		BankName:      strings.TrimSpace(in.BankName),
		AccountName:   strings.TrimSpace(in.AccountName),
		AccountNumber: strings.TrimSpace(in.AccountNumber),
		IFSC:          strings.ToUpper(strings.TrimSpace(in.IFSC)),
		UPIID:         strings.TrimSpace(in.UPIID),
		GatewayLink:   strings.TrimSpace(in.GatewayLink),
		QRImageKey:    strings.TrimSpace(in.QRImageKey),
		Notes:         strings.TrimSpace(in.Notes),
	}
}

func (s *Service) record(ctx context.Context, p shared.Principal, action, id string, meta map[string]any) {
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  p.UserID,
		AgencyID: p.AgencyID,
		Action:   action,
		Entity:   "payment",
		EntityID: id,
		Meta:     meta,
		At:       s.now().UTC(),
	}); err != nil {
		s.logger.Warn("audit payment", slog.String("action", action), slog.Any("error", err))
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func mapErr(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrMethodNotFound):
		return shared.NewError(shared.ErrNotFound, err.Error())
	case errors.Is(err, ErrMethodExists):
		return shared.NewError(shared.ErrConflict, err.Error())
	default:
		return err
	}
}
