package auth

import (
	"net/http"
	"strings"

	"github.com/wayfarer-ops/wayfarer/internal/platform/httpx"
	"github.com/wayfarer-ops/wayfarer/internal/shared"
)

// RequireBearer validates the Authorization header and stores the principal in context.
func (s *Service) RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			httpx.RespondError(w, shared.NewError(shared.ErrUnauthorized, "missing bearer token"))
			return
		}
		p, err := s.Principal(strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")))
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), p)))
	})
}
