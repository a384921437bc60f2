package dmcs

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer-ops/wayfarer/internal/platform/cache"
	"github.com/wayfarer-ops/wayfarer/internal/rbac"
	"github.com/wayfarer-ops/wayfarer/internal/shared"
)

type memoryRepo struct {
	rows      map[string]DMC
	listCalls int
}

func newMemoryRepo(rows ...DMC) *memoryRepo {
	m := &memoryRepo{rows: map[string]DMC{}}
	for _, d := range rows {
		m.rows[d.ID] = d
	}
	return m
}

func (m *memoryRepo) List(_ context.Context, agencyID string, status Status) ([]DMC, error) {
	m.listCalls++
	var out []DMC
	for _, d := range m.rows {
		if d.AgencyID == agencyID && (status == "" || d.Status == status) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryRepo) Get(_ context.Context, agencyID, id string) (DMC, error) {
	d, ok := m.rows[id]
	if !ok || d.AgencyID != agencyID {
		return DMC{}, ErrNotFound
	}
	return d, nil
}

func (m *memoryRepo) GetMany(_ context.Context, agencyID string, ids []string) ([]DMC, error) {
	var out []DMC
	for _, id := range ids {
		if d, ok := m.rows[id]; ok && d.AgencyID == agencyID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memoryRepo) Upsert(_ context.Context, d DMC) (DMC, error) {
	if existing, ok := m.rows[d.ID]; ok && existing.AgencyID != d.AgencyID {
		return DMC{}, ErrNotFound
	}
	d.UpdatedAt = time.Now()
	m.rows[d.ID] = d
	return d, nil
}

func (m *memoryRepo) SetStatus(_ context.Context, agencyID, id string, status Status) error {
	d, ok := m.rows[id]
	if !ok || d.AgencyID != agencyID {
		return ErrNotFound
	}
	d.Status = status
	m.rows[id] = d
	return nil
}

var editor = shared.Principal{UserID: "u-1", AgencyID: "ag-1", Role: shared.RoleAgency}

func newCachedService(t *testing.T, repo Repository) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(repo, cache.NewVersioned(client, "dmcs", time.Minute), nil, nil)
}

func TestListActiveFiltersAndCaches(t *testing.T) {
	repo := newMemoryRepo(
		DMC{ID: "dmc_1", AgencyID: "ag-1", Name: "Bali Holidays", Status: StatusActive, PrimaryCountry: "Indonesia", DestinationsCovered: []string{"Bali"}},
		DMC{ID: "dmc_2", AgencyID: "ag-1", Name: "Gulf Tours", Status: StatusInactive, PrimaryCountry: "UAE", Cities: []string{"Dubai"}},
		DMC{ID: "dmc_3", AgencyID: "ag-1", Name: "Siam Trails", Status: StatusActive, PrimaryCountry: "Thailand", Cities: []string{"Phuket"}},
		DMC{ID: "dmc_4", AgencyID: "ag-2", Name: "Other Bali", Status: StatusActive, DestinationsCovered: []string{"Bali"}},
	)
	svc := newCachedService(t, repo)
	ctx := context.Background()

	list, err := svc.ListActive(ctx, "ag-1", []string{"bali", "dubai"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "dmc_1", list[0].ID)

	list, err = svc.ListActive(ctx, "ag-1", nil)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, 1, repo.listCalls)

	_, err = svc.SetStatus(ctx, editor, "dmc_2", StatusActive)
	require.NoError(t, err)

	list, err = svc.ListActive(ctx, "ag-1", []string{"Dubai"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "dmc_2", list[0].ID)
	require.Equal(t, 2, repo.listCalls)
}

func TestUpsertDefaultsAndScopes(t *testing.T) {
	repo := newMemoryRepo(DMC{ID: "foreign", AgencyID: "ag-2", Name: "X", Status: StatusActive})
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	d, err := svc.Upsert(ctx, editor, UpsertInput{Name: " Bali Holidays ", Email: "Ops@BaliHolidays.test", DestinationsCovered: PlaceList{"Bali"}})
	require.NoError(t, err)
	require.NotEmpty(t, d.ID)
	require.Equal(t, StatusActive, d.Status)
	require.Equal(t, "Bali Holidays", d.Name)
	require.Equal(t, "ops@baliholidays.test", d.Email)
	require.Equal(t, []string{}, d.Cities)

	_, err = svc.Upsert(ctx, editor, UpsertInput{ID: "foreign", Name: "Hijack"})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.SetStatus(ctx, editor, d.ID, Status("PAUSED"))
	require.ErrorIs(t, err, shared.ErrValidation)
}

type brokenAudit struct{ calls int }

func (b *brokenAudit) Record(context.Context, shared.AuditLog) error {
	b.calls++
	return errors.New("audit_logs unavailable")
}

func TestAuditFailureIsLoggedNotReturned(t *testing.T) {
	var logs bytes.Buffer
	audit := &brokenAudit{}
	svc := NewService(newMemoryRepo(), nil, audit, slog.New(slog.NewTextHandler(&logs, nil)))
	ctx := context.Background()

	d, err := svc.Upsert(ctx, editor, UpsertInput{Name: "Lombok Trails", DestinationsCovered: PlaceList{"Lombok"}})
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, editor, d.ID, StatusInactive)
	require.NoError(t, err)

	require.Equal(t, 2, audit.calls)
	out := logs.String()
	require.Contains(t, out, "audit dmc")
	require.Contains(t, out, "action=dmc.upserted")
	require.Contains(t, out, "action=dmc.status_changed")
	require.Contains(t, out, "audit_logs unavailable")
}

func TestHandlerListByLocations(t *testing.T) {
	repo := newMemoryRepo(
		DMC{ID: "dmc_1", AgencyID: "ag-1", Name: "Bali Holidays", Status: StatusActive, DestinationsCovered: []string{"Bali"}},
		DMC{ID: "dmc_2", AgencyID: "ag-1", Name: "Gulf Tours", Status: StatusInactive, Cities: []string{"Dubai"}},
	)
	svc := NewService(repo, nil, nil, nil)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), editor)))
		})
	})
	r.Route("/api/dmcs", NewHandler(nil, svc, rbac.Middleware{}).MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/dmcs?locations=Bali,Dubai", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "dmc_1")
	require.NotContains(t, rec.Body.String(), "dmc_2")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/dmcs", nil))
	require.Contains(t, rec.Body.String(), "dmc_2")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/api/dmcs/dmc_2/status", strings.NewReader(`{"status":"ACTIVE"}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, StatusActive, repo.rows["dmc_2"].Status)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/dmcs", strings.NewReader(`{"name":"","email":"bad"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
