package users

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/wayfarer-ops/wayfarer/internal/rbac"
	"github.com/wayfarer-ops/wayfarer/internal/shared"
)

type memoryRepo struct {
	users  map[string]User
	hashes map[string]string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{users: map[string]User{}, hashes: map[string]string{}}
}

func (m *memoryRepo) ListByAgency(_ context.Context, agencyID string) ([]User, error) {
	var out []User
	for _, u := range m.users {
		if u.AgencyID == agencyID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memoryRepo) Get(_ context.Context, agencyID, id string) (User, error) {
	u, ok := m.users[id]
	if !ok || u.AgencyID != agencyID {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *memoryRepo) Create(_ context.Context, u User, hash string) (User, error) {
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return User{}, ErrEmailTaken
		}
	}
	u.IsActive = true
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	m.users[u.ID] = u
	m.hashes[u.ID] = hash
	return u, nil
}

func (m *memoryRepo) UpdatePassword(_ context.Context, agencyID, id, hash string) error {
	if u, ok := m.users[id]; !ok || u.AgencyID != agencyID {
		return ErrNotFound
	}
	m.hashes[id] = hash
	return nil
}

func newTestRouter(svc *Service, p shared.Principal) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), p)))
		})
	})
	r.Route("/api/auth/agency-add-user", NewHandler(slog.Default(), svc, rbac.Middleware{}).MountRoutes)
	return r
}

func TestCreateAndListScopedToAgency(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	svc.cost = bcrypt.MinCost
	admin := shared.Principal{UserID: "admin", AgencyID: "ag-1", Role: shared.RoleAgencyAdmin}
	router := newTestRouter(svc, admin)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/agency-add-user",
		strings.NewReader(`{"name":"Ravi","email":"ravi@agency.test","phone":"9876543210","role":"telecaller","password":"s3cretpass"}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	repo.users["other"] = User{ID: "other", AgencyID: "ag-2", Email: "x@y.test", Role: shared.RoleTeamLead}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/agency-add-user", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data []User `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, "telecaller", body.Data[0].Role)
	require.NotContains(t, rec.Body.String(), "s3cretpass")
}

func TestCreateRejectsInvalidRoleAndDuplicates(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	svc.cost = bcrypt.MinCost
	router := newTestRouter(svc, shared.Principal{UserID: "admin", AgencyID: "ag-1", Role: shared.RoleAgencyAdmin})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/agency-add-user",
		strings.NewReader(`{"name":"Ravi","email":"ravi@agency.test","role":"agency_admin","password":"s3cretpass"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), `"role"`)

	payload := `{"name":"Ravi","email":"ravi@agency.test","role":"teamlead","password":"s3cretpass"}`
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/agency-add-user", strings.NewReader(payload)))
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/agency-add-user", strings.NewReader(payload)))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestResetPasswordReturnsOnceAndMasksLogs(t *testing.T) {
	repo := newMemoryRepo()
	var logs bytes.Buffer
	svc := NewService(repo, nil, slog.New(slog.NewTextHandler(&logs, nil)))
	svc.cost = bcrypt.MinCost
	repo.users["u-1"] = User{ID: "u-1", AgencyID: "ag-1", Email: "lead@agency.test", Role: shared.RoleTeamLead}

	router := newTestRouter(svc, shared.Principal{UserID: "admin", AgencyID: "ag-1", Role: shared.RoleAgency})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/api/auth/agency-add-user", strings.NewReader(`{"userId":"u-1"}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Data Credentials `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	temp := body.Data.TemporaryPassword
	require.Len(t, temp, tempPasswordLength)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.hashes["u-1"]), []byte(temp)))
	require.NotContains(t, logs.String(), temp)
	require.Contains(t, logs.String(), MaskSecret(temp))
}

func TestResetPasswordOtherAgencyNotFound(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	repo.users["u-1"] = User{ID: "u-1", AgencyID: "ag-2"}
	_, err := svc.ResetPassword(context.Background(), shared.Principal{AgencyID: "ag-1"}, "u-1")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestResetPasswordRefusesHigherRoles(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	svc.cost = bcrypt.MinCost
	repo.users["admin"] = User{ID: "admin", AgencyID: "ag-1", Email: "owner@agency.test", Role: shared.RoleAgencyAdmin}
	repo.users["ops"] = User{ID: "ops", AgencyID: "ag-1", Email: "ops@agency.test", Role: shared.RoleAgency}
	repo.users["lead"] = User{ID: "lead", AgencyID: "ag-1", Email: "lead@agency.test", Role: shared.RoleTeamLead}
	repo.hashes["admin"] = "original"

	agency := shared.Principal{UserID: "ops", AgencyID: "ag-1", Role: shared.RoleAgency}
	_, err := svc.ResetPassword(context.Background(), agency, "admin")
	require.ErrorIs(t, err, shared.ErrForbidden)
	require.Equal(t, "original", repo.hashes["admin"])

	owner := shared.Principal{UserID: "admin", AgencyID: "ag-1", Role: shared.RoleAgencyAdmin}
	_, err = svc.ResetPassword(context.Background(), owner, "admin")
	require.ErrorIs(t, err, shared.ErrForbidden)

	lead := shared.Principal{UserID: "lead", AgencyID: "ag-1", Role: shared.RoleTeamLead}
	_, err = svc.ResetPassword(context.Background(), lead, "ops")
	require.ErrorIs(t, err, shared.ErrForbidden)

	creds, err := svc.ResetPassword(context.Background(), owner, "ops")
	require.NoError(t, err)
	require.NotEmpty(t, creds.TemporaryPassword)

	router := newTestRouter(svc, agency)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/api/auth/agency-add-user", strings.NewReader(`{"userId":"admin"}`)))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUserManageRequiresPermission(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	router := newTestRouter(svc, shared.Principal{UserID: "t", AgencyID: "ag-1", Role: shared.RoleTelecaller})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/agency-add-user", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMaskSecret(t *testing.T) {
	require.Equal(t, "ab******yz", MaskSecret("abcdefghyz"))
	require.Equal(t, "****", MaskSecret("abc"))
}
