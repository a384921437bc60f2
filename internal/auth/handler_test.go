package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/go-chi/chi/v5"

	"github.com/wayfarer-ops/wayfarer/internal/auth"
	"github.com/wayfarer-ops/wayfarer/internal/shared"
	_ "github.com/wayfarer-ops/wayfarer/testing"
)

type stubRepo struct {
	user    *auth.User
	touched string
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || !strings.EqualFold(s.user.Email, email) {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) TouchLogin(ctx context.Context, userID string) error {
	s.touched = userID
	return nil
}

func newRouter(t *testing.T, repo auth.Repository) (http.Handler, *auth.Service) {
	t.Helper()
	svc := auth.NewService(repo, auth.NewTokenIssuer("test-secret", time.Hour))
	r := chi.NewRouter()
	r.Route("/api/auth", auth.NewHandler(nil, svc).MountRoutes)
	return r, svc
}

func hashed(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestLoginIssuesUsableToken(t *testing.T) {
	repo := &stubRepo{user: &auth.User{ID: "u-1", AgencyID: "ag-1", Email: "lead@agency.test", Role: shared.RoleTeamLead, PasswordHash: hashed(t, "correctpass"), IsActive: true}}
	router, _ := newRouter(t, repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"lead@agency.test","password":"correctpass"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "u-1", repo.touched)

	var body struct {
		Success bool         `json:"success"`
		Data    auth.Session `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Success)
	require.NotEmpty(t, body.Data.Token)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+body.Data.Token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"agencyId":"ag-1"`)
}

func TestLoginInvalidCredentials(t *testing.T) {
	repo := &stubRepo{user: &auth.User{ID: "u-1", Email: "user@test.local", PasswordHash: hashed(t, "correctpass"), IsActive: true}}
	router, _ := newRouter(t, repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"user@test.local","password":"wrongpass"}`)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), `"success":false`)

	repo.user.IsActive = false
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"user@test.local","password":"correctpass"}`)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireBearerRejectsBadTokens(t *testing.T) {
	router, _ := newRouter(t, &stubRepo{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	other := auth.NewTokenIssuer("another-secret", time.Hour)
	token, _, err := other.Issue(auth.User{ID: "u-2", Role: shared.RoleAgency})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTokenExpiry(t *testing.T) {
	issuer := auth.NewTokenIssuer("s", time.Millisecond)
	token, _, err := issuer.Issue(auth.User{ID: "u-3", Role: shared.RoleAgency})
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)
	_, err = issuer.Parse(token)
	require.Error(t, err)
}
