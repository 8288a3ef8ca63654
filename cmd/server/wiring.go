package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"

	httpapi "bgv/internal/http"
	jwttoken "bgv/internal/jwt_token"
	"bgv/internal/platform/config"
	"bgv/internal/platform/kafka"
	"bgv/internal/platform/metrics"
	"bgv/internal/platform/postgres"
	"bgv/internal/platform/redis"
	ratelimitmetrics "bgv/internal/ratelimit/metrics"
	ratelimit "bgv/internal/ratelimit/middleware"
	ratelimitmodels "bgv/internal/ratelimit/models"
	"bgv/internal/ratelimit/store/bucket"
	"bgv/internal/storage"
	tenanthandler "bgv/internal/tenant/handler"
	tenantmetrics "bgv/internal/tenant/metrics"
	tenantservice "bgv/internal/tenant/service"
	tenantstore "bgv/internal/tenant/store/tenant"
	"bgv/internal/verification/evidence"
	"bgv/internal/verification/handler"
	"bgv/internal/verification/lock"
	verificationmetrics "bgv/internal/verification/metrics"
	"bgv/internal/verification/notify"
	"bgv/internal/verification/ports"
	"bgv/internal/verification/scheduler"
	"bgv/internal/verification/service"
	"bgv/internal/verification/statemachine"
	pgstore "bgv/internal/verification/store/postgres"
	"bgv/internal/verification/store/memory"
	"bgv/internal/verification/timeline"
	"bgv/pkg/platform/middleware/auth"
)

const tracerName = "bgv/verification"

// verificationStore is what both store backends provide.
type verificationStore interface {
	service.Repository
	timeline.Repository
	timeline.Outbox
	ports.TenantDirectory
}

// infra holds connections to the optional backing services.
type infra struct {
	db       *sql.DB
	redis    *redis.Client
	kafka    *kgo.Client
	evidence *storage.Directory
}

func openInfra(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	in := &infra{}
	if cfg.Postgres.URL != "" {
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		in.db = db
		if err := postgres.Migrate(ctx, db); err != nil {
			in.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		in.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	in.redis = rc

	kc, err := kafka.New(cfg.Kafka)
	if err != nil {
		in.Close()
		return nil, err
	}
	in.kafka = kc
	if kc != nil {
		if err := kafka.EnsureTopic(ctx, kc, cfg.Kafka.TimelineTopic, cfg.Kafka.Partitions, cfg.Kafka.Replication); err != nil {
			in.Close()
			return nil, err
		}
	}

	if cfg.Evidence.StorageDir != "" {
		dir, err := storage.NewDirectory(cfg.Evidence.StorageDir)
		if err != nil {
			in.Close()
			return nil, err
		}
		in.evidence = dir
	}
	return in, nil
}

func (in *infra) readiness() map[string]httpapi.Check {
	checks := make(map[string]httpapi.Check)
	if in.db != nil {
		checks["postgres"] = in.db.PingContext
	}
	if in.redis != nil {
		checks["redis"] = in.redis.Health
	}
	if in.kafka != nil {
		kc := in.kafka
		checks["kafka"] = func(ctx context.Context) error { return kafka.Health(ctx, kc) }
	}
	return checks
}

func (in *infra) Close() {
	if in.kafka != nil {
		in.kafka.Close()
	}
	if in.redis != nil {
		_ = in.redis.Close()
	}
	if in.db != nil {
		_ = in.db.Close()
	}
	if in.evidence != nil {
		_ = in.evidence.Close()
	}
}

// app is the assembled object graph served by main.
type app struct {
	verificationHandler *handler.Handler
	tenantHandler       *tenanthandler.Handler
	validator           auth.JWTValidator
	rateLimiter         *ratelimit.Middleware
	hashWorker          *service.HashWorker
	scheduler           *scheduler.Scheduler
}

func buildApp(cfg config.Config, in *infra, log *slog.Logger, procMetrics *metrics.Metrics) (*app, error) {
	catalog := evidence.DefaultCatalog()
	if cfg.Evidence.RequirementsFile != "" {
		loaded, err := evidence.LoadFile(cfg.Evidence.RequirementsFile)
		if err != nil {
			return nil, err
		}
		catalog = loaded
		log.Info("loaded evidence requirements", "file", cfg.Evidence.RequirementsFile)
	}
	machine, err := statemachine.New(statemachine.DefaultTable)
	if err != nil {
		return nil, fmt.Errorf("validate transition table: %w", err)
	}

	var (
		store   verificationStore
		tenants tenantservice.TenantStore
	)
	if in.db != nil {
		store = pgstore.New(in.db)
		tenants = tenantstore.NewPostgres(in.db)
	} else {
		store = memory.New()
		tenants = tenantstore.NewInMemory()
	}

	var locker lock.Locker = lock.NewSharded()
	if in.redis != nil {
		locker = lock.NewRedis(in.redis.Client, lock.WithTTL(cfg.Redis.LockTTL))
	}

	tenantSvc, err := tenantservice.New(tenants,
		tenantservice.WithLogger(log),
		tenantservice.WithMetrics(tenantmetrics.New()),
		tenantservice.WithCaseDirectory(store),
	)
	if err != nil {
		return nil, err
	}

	vm := verificationmetrics.New()
	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(vm),
		service.WithLocker(locker),
		service.WithMachine(machine),
		service.WithCatalog(catalog),
		service.WithNotifier(notify.NewBreakerNotifier(notify.NewLogNotifier(log), notify.WithLogger(log))),
		service.WithTenantDirectory(tenantSvc),
		service.WithTracer(otel.Tracer(tracerName)),
		service.WithSweepConcurrency(cfg.Scheduler.MaxConcurrency),
	}
	var worker *service.HashWorker
	if in.evidence != nil {
		worker = service.NewHashWorker(store, in.evidence,
			service.WithHashLogger(log),
			service.WithHashMetrics(vm),
			service.WithHashWorkers(cfg.Evidence.HashWorkers),
			service.WithQueueSize(cfg.Evidence.HashQueueSize),
			service.WithHashLocker(locker),
		)
		opts = append(opts, service.WithEvidenceStorage(in.evidence), service.WithHashQueue(worker))
	} else {
		log.Warn("BGV_EVIDENCE_DIR not set, document fingerprinting disabled")
	}
	svc, err := service.New(store, store, opts...)
	if err != nil {
		return nil, err
	}

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		schedOpts := []scheduler.Option{
			scheduler.WithLogger(log),
			scheduler.WithMetrics(procMetrics),
			scheduler.WithSweepInterval(cfg.Scheduler.SweepInterval),
		}
		if in.kafka != nil {
			relay := timeline.NewRelay(store, timeline.NewKafkaPublisher(in.kafka, cfg.Kafka.TimelineTopic),
				timeline.WithRelayLogger(log),
				timeline.WithRelayMetrics(vm),
			)
			schedOpts = append(schedOpts, scheduler.WithRelay(relay, cfg.Kafka.RelayInterval))
		}
		sched, err = scheduler.New(svc, schedOpts...)
		if err != nil {
			return nil, fmt.Errorf("build scheduler: %w", err)
		}
	}

	jwtSvc := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)

	return &app{
		verificationHandler: handler.New(svc, log),
		tenantHandler:       tenanthandler.New(tenantSvc, log),
		validator:           jwttoken.NewJWTServiceAdapter(jwtSvc),
		rateLimiter:         newRateLimiter(cfg.RateLimit, in, log),
		hashWorker:          worker,
		scheduler:           sched,
	}, nil
}

func newRateLimiter(cfg config.RateLimit, in *infra, log *slog.Logger) *ratelimit.Middleware {
	var store ratelimit.Store = bucket.New()
	if in.redis != nil {
		store = bucket.NewRedis(in.redis.Client)
	}
	return ratelimit.New(store, log,
		ratelimit.WithDisabled(cfg.Disabled),
		ratelimit.WithMetrics(ratelimitmetrics.New()),
		ratelimit.WithLimits(map[ratelimitmodels.EndpointClass]ratelimitmodels.Limit{
			ratelimitmodels.ClassRead:  {RequestsPerWindow: cfg.ReadPerMin, Window: time.Minute},
			ratelimitmodels.ClassWrite: {RequestsPerWindow: cfg.WritePerMin, Window: time.Minute},
			ratelimitmodels.ClassAdmin: {RequestsPerWindow: cfg.AdminPerMin, Window: time.Minute},
		}),
	)
}
