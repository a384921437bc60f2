package customers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer-ops/wayfarer/internal/enquiries"
	"github.com/wayfarer-ops/wayfarer/internal/rbac"
	"github.com/wayfarer-ops/wayfarer/internal/shared"
)

type memoryRepo struct {
	mu          sync.Mutex
	customers   map[string]Customer
	itineraries map[string][]ItinerarySummary
	sent        map[string][]SentItinerary
	feedback    map[string]Feedback
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		customers:   map[string]Customer{},
		itineraries: map[string][]ItinerarySummary{},
		sent:        map[string][]SentItinerary{},
		feedback:    map[string]Feedback{},
	}
}

func (m *memoryRepo) Create(_ context.Context, c Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.customers {
		if existing.AgencyID == c.AgencyID && existing.Email == c.Email {
			return ErrEmailTaken
		}
	}
	m.customers[c.ID] = c
	return nil
}

func (m *memoryRepo) Get(_ context.Context, agencyID, id string) (Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok || c.AgencyID != agencyID {
		return Customer{}, ErrNotFound
	}
	return c, nil
}

func (m *memoryRepo) List(_ context.Context, req ListCustomersRequest) ([]Customer, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Customer
	for _, c := range m.customers {
		if c.AgencyID == req.AgencyID && strings.Contains(strings.ToLower(c.Name), strings.ToLower(req.Search)) {
			out = append(out, c)
		}
	}
	return out, len(out), nil
}

func (m *memoryRepo) ListItineraries(_ context.Context, _ string, customerID string) ([]ItinerarySummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.itineraries[customerID], nil
}

func (m *memoryRepo) ListSent(_ context.Context, _ string, customerID string) ([]SentItinerary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[customerID], nil
}

func (m *memoryRepo) ListFeedback(_ context.Context, agencyID, customerID string) ([]Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Feedback
	for _, f := range m.feedback {
		if f.AgencyID == agencyID && f.CustomerID == customerID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *memoryRepo) GetFeedback(_ context.Context, agencyID, id string) (Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.feedback[id]
	if !ok || f.AgencyID != agencyID {
		return Feedback{}, ErrFeedbackNotFound
	}
	return f, nil
}

func (m *memoryRepo) CreateFeedback(_ context.Context, f Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedback[f.ID] = f
	return nil
}

func (m *memoryRepo) UpdateFeedback(_ context.Context, f Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.feedback[f.ID]; !ok {
		return ErrFeedbackNotFound
	}
	m.feedback[f.ID] = f
	return nil
}

func (m *memoryRepo) DeleteFeedback(_ context.Context, agencyID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.feedback[id]
	if !ok || f.AgencyID != agencyID {
		return ErrFeedbackNotFound
	}
	delete(m.feedback, id)
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

var lead = shared.Principal{UserID: "u-lead", AgencyID: "ag-1", Role: shared.RoleTeamLead}

func newTestService(t *testing.T) (*Service, *memoryRepo, Customer) {
	t.Helper()
	repo := newMemoryRepo()
	svc := NewService(repo, stubEnquiries{
		"enq-1": {ID: "enq-1", AgencyID: "ag-1", CustomerID: ""},
	}, nil, nil)
	c, err := svc.Create(context.Background(), lead, CreateCustomerRequest{Name: "Asha Rao", Email: " Asha@Example.com "})
	require.NoError(t, err)
	repo.itineraries[c.ID] = []ItinerarySummary{{ID: "it-1", EnquiryID: "enq-2", Title: "Bali"}}
	repo.sent[c.ID] = []SentItinerary{{ID: "scp-1", DMCID: "dmc_1", MarkupPrice: 125000, Currency: "INR"}}
	return svc, repo, c
}

func TestCreateNormalisesAndRejectsDuplicates(t *testing.T) {
	svc, _, c := newTestService(t)
	require.Equal(t, "asha@example.com", c.Email)
	_, err := svc.Create(context.Background(), lead, CreateCustomerRequest{Name: "Asha", Email: "asha@example.com"})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestOverviewAggregates(t *testing.T) {
	svc, _, c := newTestService(t)
	_, err := svc.AddFeedback(context.Background(), lead, AddFeedbackRequest{CustomerID: c.ID, ItineraryID: "it-1", Rating: 4, Comment: " lovely "})
	require.NoError(t, err)

	out, err := svc.Overview(context.Background(), lead, c.ID, "")
	require.NoError(t, err)
	require.Equal(t, c.ID, out.Customer.ID)
	require.Len(t, out.Itineraries, 1)
	require.Len(t, out.SentItineraries, 1)
	require.Len(t, out.Feedback, 1)
	require.Equal(t, "lovely", out.Feedback[0].Comment)

	_, err = svc.Overview(context.Background(), lead, "missing", "")
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = svc.Overview(context.Background(), lead, "", "")
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.Overview(context.Background(), lead, "", "enq-1")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestOverviewEmptyListsAreNotNull(t *testing.T) {
	svc, repo, c := newTestService(t)
	delete(repo.itineraries, c.ID)
	delete(repo.sent, c.ID)
	out, err := svc.Overview(context.Background(), lead, c.ID, "")
	require.NoError(t, err)
	raw, err := json.Marshal(out)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"itineraries":[]`)
	require.Contains(t, string(raw), `"feedback":[]`)
}

func TestFeedbackLifecycle(t *testing.T) {
	svc, repo, c := newTestService(t)
	_, err := svc.AddFeedback(context.Background(), lead, AddFeedbackRequest{CustomerID: c.ID, ItineraryID: "it-9", Rating: 3})
	require.ErrorIs(t, err, shared.ErrValidation)

	f, err := svc.AddFeedback(context.Background(), lead, AddFeedbackRequest{CustomerID: c.ID, ItineraryID: "it-1", Rating: 2})
	require.NoError(t, err)

	rating := 5
	updated, err := svc.UpdateFeedback(context.Background(), lead, UpdateFeedbackRequest{ID: f.ID, Rating: &rating})
	require.NoError(t, err)
	require.Equal(t, 5, updated.Rating)
	require.Equal(t, 5, repo.feedback[f.ID].Rating)

	require.NoError(t, svc.DeleteFeedback(context.Background(), lead, f.ID))
	require.ErrorIs(t, svc.DeleteFeedback(context.Background(), lead, f.ID), shared.ErrNotFound)
}

func TestHandlerShareCustomer(t *testing.T) {
	svc, _, c := newTestService(t)
	r := chi.NewRouter()
	r.Route("/api", NewHandler(nil, svc, rbac.Middleware{}).MountRoutes)
	serve := func(method, target, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		r.ServeHTTP(rec, req.WithContext(shared.ContextWithPrincipal(req.Context(), lead)))
		return rec
	}

	rec := serve(http.MethodPost, "/api/share-customer", `{"customerId":"`+c.ID+`","itineraryId":"it-1","rating":6}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), `"rating"`)

	rec = serve(http.MethodPost, "/api/share-customer", `{"customerId":"`+c.ID+`","itineraryId":"it-1","rating":5,"comment":"great"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = serve(http.MethodGet, "/api/share-customer?customerId="+c.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data Overview `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data.Feedback, 1)
	require.Equal(t, shared.Money(125000), body.Data.SentItineraries[0].MarkupPrice)

	rec = serve(http.MethodDelete, "/api/share-customer?id="+body.Data.Feedback[0].ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(http.MethodGet, "/api/customers/"+c.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
}
