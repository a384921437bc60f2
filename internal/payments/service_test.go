package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer-ops/wayfarer/internal/dmcs"
	"github.com/wayfarer-ops/wayfarer/internal/enquiries"
	"github.com/wayfarer-ops/wayfarer/internal/outbox"
	"github.com/wayfarer-ops/wayfarer/internal/platform/events"
	"github.com/wayfarer-ops/wayfarer/internal/platform/storage"
	"github.com/wayfarer-ops/wayfarer/internal/rbac"
	"github.com/wayfarer-ops/wayfarer/internal/shared"
	"github.com/wayfarer-ops/wayfarer/internal/view"
)

var pdfReceipt = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n%%EOF\n")

type memoryRepo struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	payments []Payment
	methods  map[string]Method
	outbox   *outbox.MemoryStore
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{methods: map[string]Method{}, outbox: outbox.NewMemoryStore()}
}

func (m *memoryRepo) Get(_ context.Context, agencyID, id string) (Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.ID == id && p.AgencyID == agencyID {
			return p, nil
		}
	}
	return Payment{}, ErrNotFound
}

func (m *memoryRepo) List(_ context.Context, agencyID, enquiryID, dmcID string) ([]Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Payment
	for _, p := range m.payments {
		if p.AgencyID == agencyID && (enquiryID == "" || p.EnquiryID == enquiryID) && (dmcID == "" || p.DMCID == dmcID) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PaymentDate.Before(out[j].PaymentDate) })
	return out, nil
}

// WithTx holds txMu for the whole transaction, standing in for the pair lock.
func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	tx := &memoryTx{repo: m}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.mu.Lock()
	m.payments = append(m.payments, tx.inserted...)
	m.mu.Unlock()
	for _, n := range tx.staged {
		if err := m.outbox.Insert(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (m *memoryRepo) ListMethods(_ context.Context, agencyID, dmcID string) ([]Method, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Method
	for _, mt := range m.methods {
		if mt.AgencyID == agencyID && (dmcID == "" || mt.DMCID == dmcID) {
			out = append(out, mt)
		}
	}
	return out, nil
}

func (m *memoryRepo) GetMethod(_ context.Context, agencyID, dmcID string) (Method, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mt, ok := m.methods[dmcID]
	if !ok || mt.AgencyID != agencyID {
		return Method{}, ErrMethodNotFound
	}
	return mt, nil
}

func (m *memoryRepo) CreateMethod(_ context.Context, mt Method) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.methods[mt.DMCID]; ok {
		return ErrMethodExists
	}
	m.methods[mt.DMCID] = mt
	return nil
}

func (m *memoryRepo) UpdateMethod(_ context.Context, mt Method) (Method, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.methods[mt.DMCID]
	if !ok || existing.AgencyID != mt.AgencyID {
		return Method{}, ErrMethodNotFound
	}
	mt.ID, mt.CreatedAt, mt.UpdatedAt = existing.ID, existing.CreatedAt, time.Now().UTC()
	m.methods[mt.DMCID] = mt
	return mt, nil
}

func (m *memoryRepo) DeleteMethod(_ context.Context, agencyID, dmcID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mt, ok := m.methods[dmcID]
	if !ok || mt.AgencyID != agencyID {
		return ErrMethodNotFound
	}
	delete(m.methods, dmcID)
	return nil
}

type memoryTx struct {
	repo     *memoryRepo
	inserted []Payment
	staged   []outbox.Notification
}

func (t *memoryTx) LockPair(context.Context, string, string) error { return nil }

func (t *memoryTx) Totals(_ context.Context, agencyID, enquiryID, dmcID string) (Totals, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	var out Totals
	for _, p := range t.repo.payments {
		if p.AgencyID == agencyID && p.EnquiryID == enquiryID && p.DMCID == dmcID {
			out.Paid += p.AmountPaid
			out.TotalCost = p.TotalCost
			out.Count++
		}
	}
	return out, nil
}

func (t *memoryTx) Insert(_ context.Context, p Payment) error {
	t.inserted = append(t.inserted, p)
	return nil
}

func (t *memoryTx) StageNotification(_ context.Context, n outbox.Notification) error {
	t.staged = append(t.staged, n)
	return nil
}

type stubEnquiries map[string]enquiries.Enquiry

func (s stubEnquiries) Get(_ context.Context, p shared.Principal, id string) (enquiries.Enquiry, error) {
	e, ok := s[id]
	if !ok || e.AgencyID != p.AgencyID {
		return enquiries.Enquiry{}, shared.NewError(shared.ErrNotFound, "enquiry not found")
	}
	return e, nil
}

type stubDMCs map[string]dmcs.DMC

func (s stubDMCs) Get(_ context.Context, agencyID, id string) (dmcs.DMC, error) {
	d, ok := s[id]
	if !ok || d.AgencyID != agencyID {
		return dmcs.DMC{}, shared.NewError(shared.ErrNotFound, "dmc not found")
	}
	return d, nil
}

type stubPDF struct {
	html string
}

func (s *stubPDF) RenderHTML(_ context.Context, html string) ([]byte, error) {
	s.html = html
	return []byte("%PDF-invoice"), nil
}

type memoryGuard struct {
	mu      sync.Mutex
	keys    map[string]string
	deleted []string
}

func (g *memoryGuard) CheckAndInsert(_ context.Context, key, module string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.keys == nil {
		g.keys = map[string]string{}
	}
	if _, ok := g.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	g.keys[key] = module
	return nil
}

func (g *memoryGuard) Delete(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, key)
	g.deleted = append(g.deleted, key)
	return nil
}

var (
	staff = shared.Principal{UserID: "u-1", AgencyID: "ag-1", Role: shared.RoleTeamLead}
	enq   = enquiries.Enquiry{ID: "enq-1", AgencyID: "ag-1", Name: "Asha Rao", Currency: "INR"}
)

type fixture struct {
	svc    *Service
	repo   *memoryRepo
	store  *storage.Memory
	pub    *outbox.Recorder
	guard  *memoryGuard
	pdf    *stubPDF
	events *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	engine, err := view.NewEngine()
	require.NoError(t, err)
	f := &fixture{
		repo:   newMemoryRepo(),
		store:  storage.NewMemory(),
		pub:    &outbox.Recorder{},
		guard:  &memoryGuard{},
		pdf:    &stubPDF{},
		events: &events.Recorder{},
	}
	f.svc = NewService(Config{
		Repo:      f.repo,
		Enquiries: stubEnquiries{enq.ID: enq},
		DMCs: stubDMCs{
			"dmc_1": {ID: "dmc_1", AgencyID: "ag-1", Name: "Bali Ground", ContactPerson: "Made", Email: "accounts@baliground.example"},
			"dmc_2": {ID: "dmc_2", AgencyID: "ag-1", Name: "Quiet Tours"},
		},
		Storage:     f.store,
		Outbox:      f.pub,
		Deliveries:  f.repo.outbox,
		Views:       engine,
		PDF:         f.pdf,
		Idempotency: f.guard,
		Events:      f.events,
	})
	f.svc.now = func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }
	return f
}

func payment(amount, total shared.Money) RecordInput {
	return RecordInput{
		EnquiryID:   "enq-1",
		DMCID:       "dmc_1",
		AmountPaid:  amount,
		TotalCost:   total,
		PaymentDate: "05-03-2026",
		Channel:     "bank transfer",
		Receipt:     &ReceiptFile{Filename: "receipt.pdf", Body: pdfReceipt},
	}
}

func TestRecordCumulativeBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Record(ctx, staff, payment(40000, 100000))
	require.NoError(t, err)
	require.Equal(t, "600.00", first.Payment.RemainingBalance.String())
	require.Equal(t, StatusPartial, first.Payment.Status)
	require.Equal(t, ChannelBankTransfer, first.Payment.Channel)
	require.Equal(t, "05-03-2026", first.Payment.Date)

	second, err := f.svc.Record(ctx, staff, payment(30000, 100000))
	require.NoError(t, err)
	require.Equal(t, "300.00", second.Payment.RemainingBalance.String())
	require.Equal(t, shared.Money(70000), second.Summary.TotalPaid)
	require.Equal(t, 2, second.Summary.Count)

	final, err := f.svc.Record(ctx, staff, payment(30000, 0))
	require.NoError(t, err)
	require.Equal(t, shared.Money(0), final.Payment.RemainingBalance)
	require.Equal(t, StatusPaid, final.Payment.Status)
	require.Equal(t, shared.Money(100000), final.Payment.TotalCost)

	_, err = f.svc.Record(ctx, staff, payment(100, 100000))
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Equal(t, CodeOverpayment, shared.ErrorCode(err))
	require.Len(t, f.repo.payments, 3)
	require.Equal(t, 3, f.store.Len())
	require.Equal(t, []string{events.PaymentRecorded, events.PaymentRecorded, events.PaymentRecorded}, f.events.Types())
}

func TestRecordRejectsCumulativeOverflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Record(ctx, staff, payment(shared.MaxMoney-1, shared.MaxMoney))
	require.NoError(t, err)
	require.Equal(t, shared.Money(1), first.Payment.RemainingBalance)

	_, err = f.svc.Record(ctx, staff, payment(shared.MaxMoney, 0))
	require.ErrorIs(t, err, shared.ErrValidation)
	require.NotEqual(t, CodeOverpayment, shared.ErrorCode(err))
	require.Len(t, f.repo.payments, 1)
	require.Equal(t, 1, f.store.Len())
}

func TestRecordSerialisesConcurrentPayments(t *testing.T) {
	f := newFixture(t)
	var wg sync.WaitGroup
	errs := make(chan error, 6)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Record(context.Background(), staff, payment(20000, 100000))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var failed int
	for err := range errs {
		if err != nil {
			require.ErrorIs(t, err, shared.ErrValidation)
			failed++
		}
	}
	require.Equal(t, 1, failed)

	remaining := make([]string, 0, len(f.repo.payments))
	for _, p := range f.repo.payments {
		remaining = append(remaining, p.RemainingBalance.String())
	}
	sort.Strings(remaining)
	require.Equal(t, []string{"0.00", "200.00", "400.00", "600.00", "800.00"}, remaining)
	require.Equal(t, 5, f.store.Len())
}

func TestRecordValidation(t *testing.T) {
	cases := map[string]struct {
		mutate func(*RecordInput)
		field  string
	}{
		"zero amount":      {func(in *RecordInput) { in.AmountPaid = 0 }, "amountPaid"},
		"missing date":     {func(in *RecordInput) { in.PaymentDate = "" }, "paymentDate"},
		"bad date":         {func(in *RecordInput) { in.PaymentDate = "yesterday" }, "paymentDate"},
		"unknown channel":  {func(in *RecordInput) { in.Channel = "CHEQUE" }, "paymentChannel"},
		"missing receipt":  {func(in *RecordInput) { in.Receipt = nil }, "receipt"},
		"text receipt":     {func(in *RecordInput) { in.Receipt.Body = []byte("just some text") }, "receipt"},
		"oversize receipt": {func(in *RecordInput) { in.Receipt.Body = make([]byte, MaxReceiptBytes+1) }, "receipt"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			in := payment(1000, 100000)
			tc.mutate(&in)
			_, err := f.svc.Record(context.Background(), staff, in)
			require.ErrorIs(t, err, shared.ErrValidation)
			var verr *shared.ValidationError
			require.ErrorAs(t, err, &verr)
			require.Contains(t, verr.Fields, tc.field)
			require.Zero(t, f.store.Len())
		})
	}
}

func TestRecordFirstPaymentNeedsTotal(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Record(context.Background(), staff, payment(1000, 0))
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Zero(t, f.store.Len(), "receipt must be removed when the payment is rejected")
}

func TestRecordIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	in := payment(10000, 100000)
	in.IdempotencyKey = "submit-1"

	_, err := f.svc.Record(context.Background(), staff, in)
	require.NoError(t, err)
	_, err = f.svc.Record(context.Background(), staff, in)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Len(t, f.repo.payments, 1)

	over := payment(500000, 100000)
	over.IdempotencyKey = "submit-2"
	_, err = f.svc.Record(context.Background(), staff, over)
	require.Error(t, err)
	require.Equal(t, []string{"ag-1:submit-2"}, f.guard.deleted)
}

func TestRecordStagesPaymentNotice(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Record(context.Background(), staff, payment(25000, 100000))
	require.NoError(t, err)
	require.True(t, res.Notification.Queued)
	require.Equal(t, "accounts@baliground.example", res.Notification.Recipient)
	require.Equal(t, []string{res.Notification.ID}, f.pub.IDs)

	n, err := f.repo.outbox.Get(context.Background(), res.Notification.ID)
	require.NoError(t, err)
	require.Equal(t, outbox.KindPaymentNotice, n.Kind)
	require.Equal(t, outbox.SubjectPayment, n.SubjectType)
	require.Equal(t, res.Payment.ID, n.SubjectID)
	require.Contains(t, n.HTML, "INR 250.00")
	require.Contains(t, n.HTML, "INR 750.00")
	require.Len(t, n.Attachments, 1)
	require.Equal(t, res.Payment.ReceiptKey, n.Attachments[0].StorageKey)
	require.Equal(t, "application/pdf", n.Attachments[0].ContentType)

	in := payment(25000, 100000)
	in.DMCID = "dmc_2"
	res, err = f.svc.Record(context.Background(), staff, in)
	require.NoError(t, err)
	require.False(t, res.Notification.Queued)
	require.Equal(t, "DMC has no email address", res.Notification.Error)
	require.Empty(t, res.Payment.NotificationID)
}

func TestRecordStorageNotConfigured(t *testing.T) {
	f := newFixture(t)
	f.svc.storage = storage.Disabled{}
	_, err := f.svc.Record(context.Background(), staff, payment(1000, 100000))
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Equal(t, CodeStorageNotConfigured, shared.ErrorCode(err))
	require.Empty(t, f.repo.payments)
}

func TestHistoryRunningBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, amount := range []shared.Money{40000, 30000} {
		_, err := f.svc.Record(ctx, staff, payment(amount, 100000))
		require.NoError(t, err)
	}
	other := payment(5000, 20000)
	other.DMCID = "dmc_2"
	_, err := f.svc.Record(ctx, staff, other)
	require.NoError(t, err)

	h, err := f.svc.History(ctx, staff, "enq-1", "dmc_1")
	require.NoError(t, err)
	require.Len(t, h.Payments, 2)
	require.Equal(t, "600.00", h.Payments[0].RunningBalance.String())
	require.Equal(t, "300.00", h.Payments[1].RunningBalance.String())
	require.Equal(t, Summary{TotalCost: 100000, TotalPaid: 70000, RemainingBalance: 30000, PaymentStatus: StatusPartial, Count: 2, Currency: "INR"}, h.Summary)

	all, err := f.svc.History(ctx, staff, "enq-1", "")
	require.NoError(t, err)
	require.Len(t, all.Payments, 3)
	require.Equal(t, shared.Money(120000), all.Summary.TotalCost)
	require.Equal(t, shared.Money(45000), all.Summary.RemainingBalance)

	_, err = f.svc.History(ctx, staff, "", "")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestReceiptURL(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Record(context.Background(), staff, payment(1000, 100000))
	require.NoError(t, err)

	url, err := f.svc.ReceiptURL(context.Background(), staff, res.Payment.ID)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "memory://receipts/enq-1/dmc_1/"))

	require.NoError(t, f.store.Delete(context.Background(), res.Payment.ReceiptKey))
	_, err = f.svc.ReceiptURL(context.Background(), staff, res.Payment.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.svc.ReceiptURL(context.Background(), staff, "missing")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestInvoiceRendersHistoryUpToPayment(t *testing.T) {
	f := newFixture(t)
	first, err := f.svc.Record(context.Background(), staff, payment(40000, 100000))
	require.NoError(t, err)
	_, err = f.svc.Record(context.Background(), staff, payment(30000, 100000))
	require.NoError(t, err)

	pdf, filename, err := f.svc.Invoice(context.Background(), staff, first.Payment.ID)
	require.NoError(t, err)
	require.Equal(t, []byte("%PDF-invoice"), pdf)
	require.True(t, strings.HasPrefix(filename, "invoice_INV-20260305-"))
	require.Contains(t, f.pdf.html, "Bali Ground")
	require.Contains(t, f.pdf.html, "Asha Rao")
	require.Contains(t, f.pdf.html, "INR 600.00")
	require.NotContains(t, f.pdf.html, "INR 300.00")
}

func TestPaymentMethods(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateMethod(ctx, staff, MethodInput{DMCID: "dmc_1"})
	require.ErrorIs(t, err, shared.ErrValidation)

	created, err := f.svc.CreateMethod(ctx, staff, MethodInput{DMCID: "dmc_1", UPIID: "bali@okbank", IFSC: "hdfc0001234"})
	require.NoError(t, err)
	require.Equal(t, "HDFC0001234", created.IFSC)

	_, err = f.svc.CreateMethod(ctx, staff, MethodInput{DMCID: "dmc_1", UPIID: "other@okbank"})
	require.ErrorIs(t, err, shared.ErrConflict)
	_, err = f.svc.CreateMethod(ctx, staff, MethodInput{DMCID: "dmc_9", UPIID: "x@y"})
	require.ErrorIs(t, err, shared.ErrNotFound)

	updated, err := f.svc.UpdateMethod(ctx, staff, MethodInput{DMCID: "dmc_1", AccountName: "Bali Ground Pvt", AccountNumber: "001122334455"})
	require.NoError(t, err)
	require.Equal(t, created.ID, updated.ID)
	require.Empty(t, updated.UPIID)

	list, err := f.svc.Methods(ctx, staff, "dmc_1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, f.svc.DeleteMethod(ctx, staff, "dmc_1"))
	require.ErrorIs(t, f.svc.DeleteMethod(ctx, staff, "dmc_1"), shared.ErrNotFound)
	list, err = f.svc.Methods(ctx, staff, "")
	require.NoError(t, err)
	require.NotNil(t, list)
	require.Empty(t, list)
}

func multipartPayment(t *testing.T, fields map[string]string, receipt []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if receipt != nil {
		fw, err := mw.CreateFormFile("receipt", "bank-slip.pdf")
		require.NoError(t, err)
		_, err = fw.Write(receipt)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func TestHandlerRecordAndReceipt(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(nil, f.svc, rbac.Middleware{})
	r := chi.NewRouter()
	r.Route("/api/payments", h.MountRoutes)
	r.Route("/api/auth/standalone-payment", h.MountMethodRoutes)
	do := func(p shared.Principal, req *http.Request) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req.WithContext(shared.ContextWithPrincipal(req.Context(), p)))
		return rec
	}
	fields := map[string]string{
		"enquiryId": "enq-1", "dmcId": "dmc_1", "amountPaid": "400", "totalCost": "1000",
		"paymentDate": "2026-03-05", "paymentChannel": "UPI", "transactionId": "UTR123",
	}

	body, ct := multipartPayment(t, fields, pdfReceipt)
	req := httptest.NewRequest(http.MethodPost, "/api/payments", body)
	req.Header.Set("Content-Type", ct)
	rec := do(staff, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"remainingBalance":"600.00"`)
	require.Contains(t, rec.Body.String(), `"paymentStatus":"PARTIAL"`)
	require.Contains(t, rec.Body.String(), `"notification"`)

	var created struct {
		Data struct {
			Payment struct {
				ID string `json:"id"`
			} `json:"payment"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = do(staff, httptest.NewRequest(http.MethodGet, "/api/payments/"+created.Data.Payment.ID+"/receipt", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	require.True(t, strings.HasPrefix(rec.Header().Get("Location"), "memory://receipts/"))

	rec = do(staff, httptest.NewRequest(http.MethodGet, "/api/payments/missing/receipt", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), `"success":false`)

	rec = do(staff, httptest.NewRequest(http.MethodGet, "/api/payments?enquiryId=enq-1&dmcId=dmc_1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"runningBalance":"600.00"`)

	body, ct = multipartPayment(t, fields, nil)
	req = httptest.NewRequest(http.MethodPost, "/api/payments", body)
	req.Header.Set("Content-Type", ct)
	rec = do(staff, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), `"receipt"`)

	telecaller := shared.Principal{UserID: "u-2", AgencyID: "ag-1", Role: shared.RoleTelecaller}
	body, ct = multipartPayment(t, fields, pdfReceipt)
	req = httptest.NewRequest(http.MethodPost, "/api/payments", body)
	req.Header.Set("Content-Type", ct)
	require.Equal(t, http.StatusForbidden, do(telecaller, req).Code)

	rec = do(staff, httptest.NewRequest(http.MethodPost, "/api/auth/standalone-payment", strings.NewReader(`{"dmcId":"dmc_1","upiId":"bali@okbank"}`)))
	require.Equal(t, http.StatusForbidden, rec.Code)

	admin := shared.Principal{UserID: "u-3", AgencyID: "ag-1", Role: shared.RoleAgencyAdmin}
	rec = do(admin, httptest.NewRequest(http.MethodPost, "/api/auth/standalone-payment", strings.NewReader(`{"dmcId":"dmc_1","upiId":"bali@okbank"}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = do(staff, httptest.NewRequest(http.MethodGet, "/api/auth/standalone-payment?dmcId=dmc_1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "bali@okbank")
}
