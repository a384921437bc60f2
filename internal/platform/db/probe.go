package db

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/wayfarer-ops/wayfarer/internal/platform/httpx"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Probe checks database connectivity, retrying exactly once after wait.
func Probe(ctx context.Context, p Pinger, wait time.Duration) error {
	if err := p.Ping(ctx); err == nil {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	return p.Ping(ctx)
}

// RequireConnection fails requests with 500 when the database stays unreachable after one retry.
func RequireConnection(p Pinger, wait time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p == nil {
				next.ServeHTTP(w, r)
				return
			}
			if err := Probe(r.Context(), p, wait); err != nil {
				if logger != nil {
					logger.Error("database probe failed", slog.String("path", r.URL.Path), slog.Any("error", err))
				}
				httpx.JSON(w, http.StatusInternalServerError, httpx.ErrorBody{Success: false, Error: "database unavailable"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
