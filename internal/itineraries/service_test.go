package itineraries

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer-ops/wayfarer/internal/enquiries"
	"github.com/wayfarer-ops/wayfarer/internal/platform/events"
	"github.com/wayfarer-ops/wayfarer/internal/platform/storage"
	"github.com/wayfarer-ops/wayfarer/internal/rbac"
	"github.com/wayfarer-ops/wayfarer/internal/shared"
	"github.com/wayfarer-ops/wayfarer/internal/view"
	"github.com/wayfarer-ops/wayfarer/web"
)

type memoryRepo struct {
	mu          sync.Mutex
	txMu        sync.Mutex
	itineraries map[string]Itinerary
	versions    map[string][]PDFVersion
	failInsert  error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{itineraries: map[string]Itinerary{}, versions: map[string][]PDFVersion{}}
}

func (m *memoryRepo) Create(_ context.Context, it Itinerary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.itineraries[it.ID] = it
	return nil
}

func (m *memoryRepo) Get(_ context.Context, agencyID, id string) (Itinerary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.itineraries[id]
	if !ok || it.AgencyID != agencyID {
		return Itinerary{}, ErrNotFound
	}
	return it, nil
}

func (m *memoryRepo) ListByEnquiry(_ context.Context, agencyID, enquiryID string) ([]Itinerary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Itinerary
	for _, it := range m.itineraries {
		if it.AgencyID == agencyID && it.EnquiryID == enquiryID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *memoryRepo) ListVersions(_ context.Context, itineraryID string) ([]PDFVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]PDFVersion(nil), m.versions[itineraryID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

// WithTx serialises transactions and commits the working copy only on success.
func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	m.mu.Lock()
	tx := &memoryTx{repo: m, itineraries: map[string]Itinerary{}, versions: map[string][]PDFVersion{}}
	for k, v := range m.itineraries {
		tx.itineraries[k] = v
	}
	for k, v := range m.versions {
		tx.versions[k] = append([]PDFVersion(nil), v...)
	}
	m.mu.Unlock()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.mu.Lock()
	m.itineraries, m.versions = tx.itineraries, tx.versions
	m.mu.Unlock()
	return nil
}

type memoryTx struct {
	repo        *memoryRepo
	itineraries map[string]Itinerary
	versions    map[string][]PDFVersion
}

func (t *memoryTx) LockItinerary(_ context.Context, agencyID, id string) (Itinerary, error) {
	it, ok := t.itineraries[id]
	if !ok || it.AgencyID != agencyID {
		return Itinerary{}, ErrNotFound
	}
	return it, nil
}

func (t *memoryTx) MaxVersion(_ context.Context, itineraryID string) (int, error) {
	max := 0
	for _, v := range t.versions[itineraryID] {
		if v.Version > max {
			max = v.Version
		}
	}
	return max, nil
}

func (t *memoryTx) DeactivateVersions(_ context.Context, itineraryID string) error {
	for i := range t.versions[itineraryID] {
		t.versions[itineraryID][i].IsActive = false
	}
	return nil
}

func (t *memoryTx) InsertVersion(_ context.Context, v PDFVersion) error {
	if t.repo.failInsert != nil {
		return t.repo.failInsert
	}
	t.versions[v.ItineraryID] = append(t.versions[v.ItineraryID], v)
	return nil
}

func (t *memoryTx) GetVersion(_ context.Context, itineraryID, versionID string) (PDFVersion, error) {
	for _, v := range t.versions[itineraryID] {
		if v.ID == versionID {
			return v, nil
		}
	}
	return PDFVersion{}, ErrVersionNotFound
}

func (t *memoryTx) ActivateVersion(_ context.Context, itineraryID, versionID string) error {
	for i, v := range t.versions[itineraryID] {
		if v.ID == versionID {
			t.versions[itineraryID][i].IsActive = true
			return nil
		}
	}
	return ErrVersionNotFound
}

func (t *memoryTx) UpdatePDFCache(_ context.Context, it Itinerary) error {
	t.itineraries[it.ID] = it
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

type stubPDF struct {
	err   error
	mu    sync.Mutex
	pages []string
}

func (s *stubPDF) RenderHTML(_ context.Context, html string) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	s.pages = append(s.pages, html)
	s.mu.Unlock()
	return []byte("%PDF-1.7 " + html[:16]), nil
}

type noTemplates struct{}

func (noTemplates) Has(string) bool { return false }

func (noTemplates) RenderString(string, any) (string, error) { return "", view.ErrTemplateNotFound }

var lead = shared.Principal{UserID: "u-lead", AgencyID: "ag-1", Role: shared.RoleTeamLead}

type fixture struct {
	svc    *Service
	repo   *memoryRepo
	store  *storage.Memory
	pdf    *stubPDF
	events *events.Recorder
	it     Itinerary
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	engine, err := view.NewEngine()
	require.NoError(t, err)
	f := &fixture{repo: newMemoryRepo(), store: storage.NewMemory(), pdf: &stubPDF{}, events: &events.Recorder{}}
	f.svc = NewService(Config{
		Repo: f.repo,
		Enquiries: stubEnquiries{"enq-1": {
			ID: "enq-1", AgencyID: "ag-1", Name: "Asha Rao", Locations: "Bali, Ubud", Travellers: 2, Kids: 1,
		}},
		Library: NewLibrary(web.DayPlans, "dayplans"),
		Views:   engine,
		PDF:     f.pdf,
		Storage: f.store,
		Events:  f.events,
	})
	f.svc.now = func() time.Time { return time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC) }
	f.it, err = f.svc.Create(context.Background(), lead, CreateInput{EnquiryID: "enq-1"})
	require.NoError(t, err)
	return f
}

func (f *fixture) generate() (GenerateResult, error) {
	return f.svc.Generate(context.Background(), lead, GenerateInput{EnquiryID: "enq-1", ItineraryID: f.it.ID})
}

func activeVersions(vs []PDFVersion) []PDFVersion {
	var out []PDFVersion
	for _, v := range vs {
		if v.IsActive {
			out = append(out, v)
		}
	}
	return out
}

func TestCreateDefaultsFromEnquiry(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, "Itinerary for Asha Rao", f.it.Title)
	require.Equal(t, "Bali, Ubud", f.it.Destination)
	require.Equal(t, StatusDraft, f.it.Status)

	_, err := f.svc.Create(context.Background(), lead, CreateInput{EnquiryID: "missing"})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGenerateKeepsSingleActiveVersion(t *testing.T) {
	f := newFixture(t)
	const runs = 4
	var last GenerateResult
	for i := 1; i <= runs; i++ {
		res, err := f.generate()
		require.NoError(t, err)
		require.Equal(t, i, res.Version)
		require.Equal(t, "bali", res.DayPlan)
		last = res
	}

	versions, err := f.svc.ListVersions(context.Background(), lead, f.it.ID)
	require.NoError(t, err)
	require.Len(t, versions, runs)
	active := activeVersions(versions)
	require.Len(t, active, 1)
	require.Equal(t, runs, active[0].Version)
	require.Equal(t, last.VersionID, active[0].ID)

	it, err := f.svc.Get(context.Background(), lead, f.it.ID)
	require.NoError(t, err)
	require.Equal(t, StatusGenerated, it.Status)
	require.Equal(t, runs, it.ActivePDFVersion)
	require.Equal(t, last.PDFURL, it.ActivePDFURL)
	require.Equal(t, runs, f.store.Len())
	require.Len(t, f.events.Types(), runs)
	require.Equal(t, events.ItineraryPDFVersioned, f.events.Types()[0])

	require.Contains(t, f.pdf.pages[0], "Asha Rao")
	require.Contains(t, f.pdf.pages[0], "<th>Travellers</th><td>3</td>")
}

func TestConcurrentGenerateAssignsDistinctVersions(t *testing.T) {
	f := newFixture(t)
	const runs = 6
	var wg sync.WaitGroup
	errs := make(chan error, runs)
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.generate()
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	versions, err := f.svc.ListVersions(context.Background(), lead, f.it.ID)
	require.NoError(t, err)
	seen := map[int]bool{}
	for _, v := range versions {
		seen[v.Version] = true
	}
	require.Len(t, seen, runs)
	active := activeVersions(versions)
	require.Len(t, active, 1)
	require.Equal(t, runs, active[0].Version)
}

func TestGenerateErrorCodes(t *testing.T) {
	cases := []struct {
		name  string
		setup func(f *fixture)
		code  string
	}{
		{"template", func(f *fixture) { f.svc.views = noTemplates{} }, CodeTemplateNotFound},
		{"day plan", func(f *fixture) { f.svc.library = NewLibrary(fstest.MapFS{}, "dayplans") }, CodeDayPlanNotFound},
		{"render", func(f *fixture) { f.pdf.err = errors.New("gotenberg down") }, CodeRenderFailed},
		{"storage disabled", func(f *fixture) { f.svc.storage = storage.Disabled{} }, CodeStorageNotConfigured},
		{"upload", func(f *fixture) { f.store.FailUploads = errors.New("access denied") }, CodeUploadFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			tc.setup(f)
			_, err := f.generate()
			require.ErrorIs(t, err, ErrGeneration)
			require.Equal(t, tc.code, shared.ErrorCode(err))

			versions, err := f.svc.ListVersions(context.Background(), lead, f.it.ID)
			require.NoError(t, err)
			require.Empty(t, versions)
		})
	}
}

func TestGenerateRemovesUploadWhenVersioningFails(t *testing.T) {
	f := newFixture(t)
	f.repo.failInsert = errors.New("unique violation")
	_, err := f.generate()
	require.Error(t, err)
	require.Zero(t, f.store.Len())

	it, err := f.svc.Get(context.Background(), lead, f.it.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, it.Status)
}

func TestGenerateRejectsForeignItinerary(t *testing.T) {
	f := newFixture(t)
	other := shared.Principal{UserID: "u-2", AgencyID: "ag-2", Role: shared.RoleTeamLead}
	_, err := f.svc.Generate(context.Background(), other, GenerateInput{EnquiryID: "enq-1", ItineraryID: f.it.ID})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestActivateSwitchesActiveVersion(t *testing.T) {
	f := newFixture(t)
	first, err := f.generate()
	require.NoError(t, err)
	_, err = f.generate()
	require.NoError(t, err)

	v, err := f.svc.Activate(context.Background(), lead, f.it.ID, first.VersionID)
	require.NoError(t, err)
	require.Equal(t, 1, v.Version)

	versions, err := f.svc.ListVersions(context.Background(), lead, f.it.ID)
	require.NoError(t, err)
	active := activeVersions(versions)
	require.Len(t, active, 1)
	require.Equal(t, first.VersionID, active[0].ID)

	refs, err := f.svc.PDFCandidates(context.Background(), "ag-1", f.it.ID)
	require.NoError(t, err)
	require.NotEmpty(t, refs)
	require.Equal(t, first.PDFURL, refs[0].URL)
	require.NotEmpty(t, refs[0].StorageKey)
	require.True(t, strings.HasSuffix(refs[0].Filename, ".pdf"))

	_, err = f.svc.Activate(context.Background(), lead, f.it.ID, "nope")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestPDFCandidatesOrder(t *testing.T) {
	it := Itinerary{ID: "it-1", PDFURL: "/pdfs/old.pdf"}
	require.Equal(t, []PDFRef{{URL: "/pdfs/old.pdf", Filename: "old.pdf"}}, it.PDFCandidates())
	require.Empty(t, Itinerary{ID: "it-2"}.PDFCandidates())

	it.ActivePDFURL = "https://cdn.example.com/itineraries/v2"
	it.ActivePDFKey = "itineraries/it-1/v2"
	refs := it.PDFCandidates()
	require.Len(t, refs, 2)
	require.Equal(t, "itineraries/it-1/v2", refs[0].StorageKey)
	require.Equal(t, "itinerary_it-1.pdf", refs[0].Filename)
	require.Equal(t, "/pdfs/old.pdf", refs[1].URL)
}

func TestHandlerGeneratePDF(t *testing.T) {
	f := newFixture(t)
	r := chi.NewRouter()
	r.Route("/api", NewHandler(nil, f.svc, rbac.Middleware{}).MountRoutes)
	serve := func(p shared.Principal, method, target, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		r.ServeHTTP(rec, req.WithContext(shared.ContextWithPrincipal(req.Context(), p)))
		return rec
	}

	rec := serve(lead, http.MethodPost, "/api/generate-pdf", `{"enquiryId":"enq-1","itineraryId":"`+f.it.ID+`","formData":{"title":"Bali Escape"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Success bool           `json:"success"`
		Data    GenerateResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Success)
	require.Equal(t, 1, body.Data.Version)
	require.NotEmpty(t, body.Data.VersionID)
	require.True(t, strings.HasPrefix(body.Data.PDFURL, "memory://itineraries/"))

	rec = serve(lead, http.MethodPost, "/api/generate-pdf", `{"itineraryId":"`+f.it.ID+`"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	f.svc.storage = storage.Disabled{}
	rec = serve(lead, http.MethodPost, "/api/generate-pdf", `{"enquiryId":"enq-1","itineraryId":"`+f.it.ID+`"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), CodeStorageNotConfigured)

	rec = serve(shared.Principal{UserID: "x", AgencyID: "ag-1", Role: "guest"}, http.MethodGet, "/api/itineraries/"+f.it.ID+"/versions", "")
	require.Equal(t, http.StatusForbidden, rec.Code)
}
