package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/jumbojolt/identity/internal/core/port"
	"github.com/jumbojolt/identity/internal/infra/config"
	"github.com/jumbojolt/identity/internal/infra/database"
	kafkainfra "github.com/jumbojolt/identity/internal/infra/kafka"
	"github.com/jumbojolt/identity/internal/infra/logger"
	redisinfra "github.com/jumbojolt/identity/internal/infra/redis"
	"github.com/jumbojolt/identity/internal/infra/security"
	"github.com/jumbojolt/identity/internal/infra/storage"
	"github.com/jumbojolt/identity/internal/infra/telemetry"
	postgresrepo "github.com/jumbojolt/identity/internal/repository/postgres"
	redisrepo "github.com/jumbojolt/identity/internal/repository/redis"
	"github.com/jumbojolt/identity/internal/transport/http/middleware"
	"github.com/jumbojolt/identity/internal/transport/http/routes"
	"github.com/jumbojolt/identity/internal/usecase"
)

// Application owns the HTTP engine and the infrastructure clients behind it.
type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
	tracer   *telemetry.TracerProvider
}

// New wires logging, storage, messaging and services from cfg into an Application.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}
	fail := func(err error) (*Application, error) {
		a.close(context.Background())
		return nil, err
	}

	if cfg.Telemetry.OTLPEndpoint != "" {
		tracer, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			return fail(fmt.Errorf("init tracing: %w", err))
		}
		a.tracer = tracer
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return fail(fmt.Errorf("init postgres: %w", err))
	}
	a.pool = pool

	if cfg.Postgres.MigrateOnStart {
		if err := database.Migrate(ctx, pool, log); err != nil {
			return fail(fmt.Errorf("migrate: %w", err))
		}
	}

	redisClient, err := redisinfra.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		return fail(fmt.Errorf("init redis: %w", err))
	}
	a.redis = redisClient

	repos := postgresrepo.NewRepositories(pool)

	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return fail(fmt.Errorf("configure argon2: %w", err))
	}

	if cfg.Recovery.TokenPepper == "" {
		log.Warn("recovery.token_pepper is empty; recovery key and backup code hashes are unkeyed")
	}
	tokenHasher := security.NewTokenHasher(cfg.Recovery.TokenPepper)

	sessions, err := security.NewSessionManager(cfg.Session.Secret, cfg.Session.Issuer, cfg.Session.TTL)
	if err != nil {
		return fail(fmt.Errorf("init session manager: %w", err))
	}

	var eventPublisher port.EventPublisher
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			a.producer = producer
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka disabled, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	var exportStorage port.ExportStorage
	if cfg.Storage.Enabled {
		store, err := storage.NewExportStore(ctx, cfg.Storage, log)
		if err != nil {
			return fail(fmt.Errorf("init export storage: %w", err))
		}
		exportStorage = store
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	credentialMetrics := telemetry.NewCredentialMetrics(registry)
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		return fail(fmt.Errorf("init http metrics: %w", err))
	}

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: cfg.Redis.RateLimitPrefix,
		TTL:       rateLimitWindow * 2,
	})
	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	grants := redisrepo.NewVerificationGrantRepository(redisClient.Client(), cfg.Redis.GrantPrefix)

	recoveryService := usecase.NewRecoveryKeyService(repos.Users, repos.RecoveryKeys, tokenHasher, eventPublisher, cfg.Recovery.QRScheme)
	backupService := usecase.NewBackupCodeService(repos.Users, repos.BackupCodes, tokenHasher, eventPublisher)

	verifier, err := usecase.NewCredentialVerifier(repos.Users, hasher, recoveryService, backupService, credentialMetrics, log)
	if err != nil {
		return fail(fmt.Errorf("init credential verifier: %w", err))
	}

	accountService := usecase.NewAccountService(repos.Users, hasher, security.NewPasswordPolicy(), verifier, sessions, eventPublisher)
	privacyService := usecase.NewPrivacyService(
		repos.Users,
		repos.RecoveryKeys,
		repos.BackupCodes,
		grants,
		verifier,
		exportStorage,
		eventPublisher,
		cfg.Privacy.GrantTTL,
	)

	a.engine = routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Metrics:     httpMetrics,
		Gatherer:    registry,
		Tracing:     a.tracerProvider(),
		Sessions:    sessions,
		Database:    pool,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Accounts:     accountService,
			RecoveryKeys: recoveryService,
			BackupCodes:  backupService,
			Privacy:      privacyService,
		},
	})

	return a, nil
}

// Run serves HTTP until ctx is cancelled, then shuts down and releases resources.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.close(shutdownCtx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting identity API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

// tracerProvider returns nil when tracing is disabled so the middleware uses
// the global no-op provider.
func (a *Application) tracerProvider() trace.TracerProvider {
	if a.tracer == nil {
		return nil
	}
	return a.tracer.Provider()
}

// close releases resources in reverse order of acquisition. Safe on a partially
// built application.
func (a *Application) close(ctx context.Context) {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close kafka producer", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("shutdown tracer provider", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
