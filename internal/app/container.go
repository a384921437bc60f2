package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wayfarer-ops/wayfarer/internal/auth"
	"github.com/wayfarer-ops/wayfarer/internal/customers"
	"github.com/wayfarer-ops/wayfarer/internal/dmcs"
	"github.com/wayfarer-ops/wayfarer/internal/enquiries"
	"github.com/wayfarer-ops/wayfarer/internal/itineraries"
	jobmetrics "github.com/wayfarer-ops/wayfarer/internal/jobs"
	"github.com/wayfarer-ops/wayfarer/internal/observability"
	"github.com/wayfarer-ops/wayfarer/internal/outbox"
	"github.com/wayfarer-ops/wayfarer/internal/payments"
	"github.com/wayfarer-ops/wayfarer/internal/platform/cache"
	"github.com/wayfarer-ops/wayfarer/internal/platform/db"
	"github.com/wayfarer-ops/wayfarer/internal/platform/events"
	"github.com/wayfarer-ops/wayfarer/internal/platform/mailer"
	"github.com/wayfarer-ops/wayfarer/internal/platform/storage"
	"github.com/wayfarer-ops/wayfarer/internal/rbac"
	"github.com/wayfarer-ops/wayfarer/internal/shared"
	"github.com/wayfarer-ops/wayfarer/internal/sharing"
	"github.com/wayfarer-ops/wayfarer/internal/users"
	"github.com/wayfarer-ops/wayfarer/internal/view"
	"github.com/wayfarer-ops/wayfarer/jobs"
	"github.com/wayfarer-ops/wayfarer/report"
	"github.com/wayfarer-ops/wayfarer/web"
)

// Infra holds the connections shared by the API server and the worker.
type Infra struct {
	Pool        *pgxpool.Pool
	Redis       *redis.Client
	Storage     storage.Storage
	Events      events.Publisher
	Metrics     *observability.Metrics
	JobMetrics  *jobmetrics.Metrics
	Views       *view.Engine
	PDF         *report.Client
	Outbox      *outbox.Store
	Deliverer   *outbox.Deliverer
	Idempotency *shared.IdempotencyStore
	Audit       *shared.AuditLogger

	closers []func() error
}

// RedisOpts returns the asynq connection options.
func RedisOpts(cfg *Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr}
}

// OpenInfra connects to PostgreSQL, Redis, object storage and the event broker.
// Redis, storage and AMQP are optional: failures degrade to disabled implementations.
func OpenInfra(ctx context.Context, cfg *Config, logger *slog.Logger) (*Infra, error) {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return nil, err
	}
	inf := &Infra{Pool: pool}
	inf.closers = append(inf.closers, func() error { pool.Close(); return nil })

	if client, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("redis unavailable, dmc cache disabled", slog.Any("error", err))
	} else {
		inf.Redis = client
		inf.closers = append(inf.closers, client.Close)
	}

	inf.Storage = storage.Disabled{}
	if cfg.StorageConfigured() {
		s3, err := storage.NewS3(ctx, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Endpoint:        cfg.S3Endpoint,
			PublicBaseURL:   cfg.S3PublicBaseURL,
		})
		if err != nil {
			inf.Close()
			return nil, fmt.Errorf("configure storage: %w", err)
		}
		inf.Storage = s3
	} else {
		logger.Warn("S3_BUCKET not set, uploads are disabled")
	}

	inf.Events = events.Nop{}
	if cfg.AMQPURL != "" {
		amqpPub := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		inf.Events = amqpPub
		inf.closers = append(inf.closers, amqpPub.Close)
	}

	views, err := view.NewEngine()
	if err != nil {
		inf.Close()
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	inf.Views = views
	inf.PDF = report.NewClient(cfg.GotenbergURL)
	inf.Metrics = observability.NewMetrics()
	inf.JobMetrics = jobmetrics.NewMetrics(inf.Metrics.Registerer())
	inf.Outbox = outbox.NewStore(pool)
	inf.Idempotency = shared.NewIdempotencyStore(pool)
	inf.Audit = shared.NewAuditLogger(pool)
	inf.Deliverer = outbox.NewDeliverer(outbox.DelivererConfig{
		Store:   inf.Outbox,
		Sender:  mailer.NewSender(mailer.SMTPConfig{Host: cfg.SMTPHost, Port: cfg.SMTPPort, Username: cfg.SMTPUsername, Password: cfg.SMTPPassword, From: cfg.SMTPFrom}, logger),
		Storage: inf.Storage,
		// Legacy itinerary PDFs may reference files under the public directory.
		PublicDir: cfg.PublicDir,
		From:      cfg.SMTPFrom,
		Metrics:   inf.JobMetrics,
		Logger:    logger,
	})
	return inf, nil
}

// Close releases every connection in reverse opening order.
func (i *Infra) Close() error {
	var errs []error
	for n := len(i.closers) - 1; n >= 0; n-- {
		if err := i.closers[n](); err != nil {
			errs = append(errs, err)
		}
	}
	i.closers = nil
	return errors.Join(errs...)
}

// API bundles the HTTP handlers built on top of Infra.
type API struct {
	Router http.Handler
	Client *jobs.Client
}

// BuildAPI wires every service and returns the router. In queue mode the returned
// client must be closed by the caller.
func BuildAPI(cfg *Config, logger *slog.Logger, inf *Infra, inspector jobs.QueueInspector) *API {
	var (
		publisher outbox.Publisher
		client    *jobs.Client
	)
	if cfg.InlineOutbox() {
		publisher = outbox.NewInlinePublisher(inf.Deliverer, logger)
	} else {
		client = jobs.NewClient(RedisOpts(cfg))
		publisher = outbox.NewQueuePublisher(client)
	}
	rbacMiddleware := rbac.Middleware{Logger: logger}

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	authService := auth.NewService(auth.NewRepository(inf.Pool), tokens)

	enquiryService := enquiries.NewService(enquiries.NewRepository(inf.Pool), inf.Audit, inf.Events, logger)
	dmcService := dmcs.NewService(dmcs.NewRepository(inf.Pool), cache.NewVersioned(inf.Redis, "wayfarer:dmcs", cfg.DMCCacheTTL), inf.Audit, logger)
	customerService := customers.NewService(customers.NewRepository(inf.Pool), enquiryService, inf.Audit, logger)
	userService := users.NewService(users.NewRepository(inf.Pool), inf.Audit, logger)

	itineraryService := itineraries.NewService(itineraries.Config{
		Repo:      itineraries.NewRepository(inf.Pool),
		Enquiries: enquiryService,
		Library:   itineraries.NewLibrary(web.DayPlans, "dayplans"),
		Views:     inf.Views,
		PDF:       inf.PDF,
		Storage:   inf.Storage,
		Audit:     inf.Audit,
		Events:    inf.Events,
		Logger:    logger,
	})
	sharingService := sharing.NewService(sharing.Config{
		Repo:        sharing.NewRepository(inf.Pool),
		Enquiries:   enquiryService,
		DMCs:        dmcService,
		Itineraries: itineraryService,
		Customers:   customerService,
		Deliveries:  inf.Outbox,
		Outbox:      publisher,
		Views:       inf.Views,
		Storage:     inf.Storage,
		PublicDir:   cfg.PublicDir,
		BrandName:   cfg.BrandName,
		Audit:       inf.Audit,
		Events:      inf.Events,
		Logger:      logger,
	})
	paymentService := payments.NewService(payments.Config{
		Repo:         payments.NewRepository(inf.Pool),
		Enquiries:    enquiryService,
		DMCs:         dmcService,
		Storage:      inf.Storage,
		Outbox:       publisher,
		Deliveries:   inf.Outbox,
		Views:        inf.Views,
		PDF:          inf.PDF,
		Idempotency:  inf.Idempotency,
		SignedURLTTL: cfg.S3SignedURLTTL,
		Audit:        inf.Audit,
		Events:       inf.Events,
		Logger:       logger,
	})

	router := NewRouter(RouterParams{
		Logger:             logger,
		Config:             cfg,
		DB:                 inf.Pool,
		AuthService:        authService,
		AuthHandler:        auth.NewHandler(logger, authService),
		EnquiriesHandler:   enquiries.NewHandler(logger, enquiryService, rbacMiddleware),
		DMCsHandler:        dmcs.NewHandler(logger, dmcService, rbacMiddleware),
		SharingHandler:     sharing.NewHandler(logger, sharingService, rbacMiddleware),
		CustomersHandler:   customers.NewHandler(logger, customerService, rbacMiddleware),
		PaymentsHandler:    payments.NewHandler(logger, paymentService, rbacMiddleware),
		ItinerariesHandler: itineraries.NewHandler(logger, itineraryService, rbacMiddleware),
		UsersHandler:       users.NewHandler(logger, userService, rbacMiddleware),
		PermissionsHandler: rbac.NewPermissionsHandler(),
		ReportHandler:      report.NewHandler(inf.PDF, logger),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            inf.Metrics,
	})
	return &API{Router: router, Client: client}
}
