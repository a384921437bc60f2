package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wayfarer-ops/wayfarer/internal/shared"
)

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRespondErrorTaxonomy(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{shared.NewError(shared.ErrValidation, "bad"), http.StatusBadRequest},
		{shared.ErrUnauthorized, http.StatusUnauthorized},
		{shared.NewError(shared.ErrForbidden, "nope"), http.StatusForbidden},
		{shared.NewError(shared.ErrNotFound, "missing"), http.StatusNotFound},
		{shared.NewError(shared.ErrConflict, "dup"), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())
		body := decodeBody(t, rec)
		require.Equal(t, false, body["success"])
		require.NotEmpty(t, body["error"])
	}
}

func TestRespondErrorDetailsOnlyWhenExposed(t *testing.T) {
	defer ExposeDetails(false)

	ExposeDetails(false)
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("pool exhausted"))
	body := decodeBody(t, rec)
	require.NotContains(t, body, "details")
	require.Equal(t, "internal server error", body["error"])

	ExposeDetails(true)
	rec = httptest.NewRecorder()
	RespondError(rec, errors.New("pool exhausted"))
	body = decodeBody(t, rec)
	require.Equal(t, "pool exhausted", body["details"])
}

type sampleInput struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
}

func TestDecodeJSONValidation(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"not-an-email"}`))
	var in sampleInput
	err := DecodeJSON(req, &in)
	require.Error(t, err)
	var verr *shared.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "is required", verr.Fields["name"])
	require.Equal(t, "must be a valid email address", verr.Fields["email"])

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	err = DecodeJSON(req, &in)
	require.True(t, errors.Is(err, shared.ErrValidation))
}

func TestOKEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, []string{})
	require.JSONEq(t, `{"success":true,"data":[]}`, rec.Body.String())

	rec = httptest.NewRecorder()
	Message(rec, "deleted")
	require.JSONEq(t, `{"success":true,"message":"deleted"}`, rec.Body.String())
}
