package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/wayfarer-ops/wayfarer/cmd/wayfarer/cli"
	"github.com/wayfarer-ops/wayfarer/internal/app"
	"github.com/wayfarer-ops/wayfarer/internal/platform/httpx"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		if err := runJobs(ctx, cfg, os.Args[2:]); err != nil {
			logger.Error("jobs command", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	httpx.ExposeDetails(!cfg.IsProduction())

	infra, err := app.OpenInfra(ctx, cfg, logger)
	if err != nil {
		logger.Error("open infrastructure", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := infra.Close(); err != nil {
			logger.Warn("close infrastructure", slog.Any("error", err))
		}
	}()

	inspector := asynq.NewInspector(app.RedisOpts(cfg))
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	api := app.BuildAPI(cfg, logger, infra, inspector)
	if api.Client != nil {
		defer func() {
			if err := api.Client.Close(); err != nil {
				logger.Warn("asynq client close", slog.Any("error", err))
			}
		}()
	}

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      api.Router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("outbox_mode", cfg.OutboxMode))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

// runJobs handles `wayfarer jobs trigger <task>`, `wayfarer jobs redeliver <id>` and `wayfarer jobs stats`.
func runJobs(ctx context.Context, cfg *app.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: wayfarer jobs trigger <task> | redeliver <notification-id> | stats")
	}
	jobsCLI := cli.NewJobsCLI(app.RedisOpts(cfg), cli.Defaults{
		SweepAfter: cfg.OutboxSweepAfter,
		Retention:  cfg.IdempotencyRetention,
	})
	defer jobsCLI.Close()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return errors.New("usage: wayfarer jobs trigger <task>")
		}
		info, err := jobsCLI.Trigger(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
	case "redeliver":
		if len(args) < 2 {
			return errors.New("usage: wayfarer jobs redeliver <notification-id>")
		}
		info, err := jobsCLI.Redeliver(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("enqueued delivery %s on %s\n", info.ID, info.Queue)
	case "stats":
		stats, err := jobsCLI.InspectQueues(ctx)
		if err != nil {
			return err
		}
		for _, s := range stats {
			fmt.Printf("%-14s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
				s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
		}
	default:
		return fmt.Errorf("unknown jobs command %q", args[0])
	}
	return nil
}
