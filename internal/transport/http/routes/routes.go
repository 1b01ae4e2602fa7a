package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/jumbojolt/identity/internal/core/port"
	"github.com/jumbojolt/identity/internal/infra/config"
	"github.com/jumbojolt/identity/internal/transport/http/handlers"
	"github.com/jumbojolt/identity/internal/transport/http/middleware"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Accounts     handlers.AccountService
	RecoveryKeys handlers.RecoveryKeyService
	BackupCodes  handlers.BackupCodeService
	Privacy      handlers.PrivacyService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Metrics     *middleware.HTTPMetrics
	Gatherer    prometheus.Gatherer
	Tracing     trace.TracerProvider
	Sessions    port.SessionIssuer
	Services    ServiceSet
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// X-Forwarded-For is honoured only from configured proxies; per-IP rate limits key on it.
	if err := r.SetTrustedProxies(deps.Config.App.TrustedProxies); err != nil {
		if deps.Logger != nil {
			deps.Logger.Warn("invalid trusted proxies, trusting none", zap.Error(err))
		}
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(gin.Recovery())
	r.Use(middleware.Tracing(deps.Tracing))
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(deps.Metrics.Handler())
	if len(deps.Config.App.CORSAllowedOrigins) > 0 {
		r.Use(middleware.CORS(deps.Config.App.CORSAllowedOrigins))
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("postgres", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	} else {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	if deps.Sessions == nil || deps.Services.Accounts == nil {
		return r
	}

	requireAuth := middleware.RequireAuth(deps.Sessions)
	limits := deps.Config.RateLimit

	api := r.Group("/api/v1")
	{
		accountHandler := handlers.NewAccountHandler(deps.Services.Accounts)
		accountHandler.RegisterRoutes(api.Group("/auth"), requireAuth,
			rateLimit(deps, "auth_register_ip", limits.RegisterMaxAttempts),
			rateLimit(deps, "auth_login_ip", limits.LoginMaxAttempts),
		)

		if deps.Services.RecoveryKeys != nil {
			recoveryHandler := handlers.NewRecoveryHandler(deps.Services.RecoveryKeys, deps.Services.Accounts)
			recoveryHandler.RegisterRoutes(api.Group("/recovery-key"), requireAuth,
				rateLimit(deps, "recovery_key_redeem_ip", limits.RedeemMaxAttempts),
			)
		}

		if deps.Services.BackupCodes != nil {
			backupHandler := handlers.NewBackupCodeHandler(deps.Services.BackupCodes, deps.Services.Accounts)
			backupHandler.RegisterRoutes(api.Group("/backup-codes"), requireAuth,
				rateLimit(deps, "backup_code_login_ip", limits.BackupCodeLoginMaxAttempts),
			)
		}

		if deps.Services.Privacy != nil {
			privacyHandler := handlers.NewPrivacyHandler(deps.Services.Privacy)
			privacyHandler.RegisterRoutes(api.Group("/gdpr"), requireAuth,
				rateLimit(deps, "gdpr_verify_ip", limits.VerifyMaxAttempts),
			)
		}
	}

	return r
}

func rateLimit(deps Dependencies, name string, limit int) []gin.HandlerFunc {
	if deps.RateLimiter == nil || limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(middleware.PerIP(name, limit, window))}
}
