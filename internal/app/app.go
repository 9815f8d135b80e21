// Package app wires the tracker's store, services and HTTP surface from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/civic-tracker-api/api/swagger"
	"github.com/noah-isme/civic-tracker-api/internal/handler"
	"github.com/noah-isme/civic-tracker-api/internal/middleware"
	"github.com/noah-isme/civic-tracker-api/internal/repository"
	"github.com/noah-isme/civic-tracker-api/internal/service"
	"github.com/noah-isme/civic-tracker-api/pkg/cache"
	"github.com/noah-isme/civic-tracker-api/pkg/config"
	"github.com/noah-isme/civic-tracker-api/pkg/export"
	"github.com/noah-isme/civic-tracker-api/pkg/jobs"
	"github.com/noah-isme/civic-tracker-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/civic-tracker-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/civic-tracker-api/pkg/middleware/requestid"
	"github.com/noah-isme/civic-tracker-api/pkg/notify"
	"github.com/noah-isme/civic-tracker-api/pkg/storage"
)

const queueBufferSize = 128

// App holds every long-lived component of the tracker.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Store   *repository.Store
	Metrics *service.MetricsService

	Applications  *service.ApplicationService
	Assignments   *service.AssignmentService
	Status        *service.StatusService
	Resolution    *service.ResolutionService
	Monitor       *service.MonitorService
	OTP           *service.OTPService
	Auth          *service.AuthService
	Directory     *service.DirectoryService
	Notifications *service.NotificationService
	Admin         *service.AdminService

	queue   *jobs.Queue
	limiter *middleware.RateLimiter
	redis   *redis.Client
}

// New builds the application. Redis is optional: when it is disabled or
// unreachable the cache is bypassed and delay alert cooldowns live in the store.
func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}

	files, err := storage.NewLocalStorage(cfg.Store.DataDir)
	if err != nil {
		return nil, fmt.Errorf("prepare data dir: %w", err)
	}
	store := repository.NewStore(cfg.Store.SnapshotPolicy,
		repository.WithLogger(log.Named("store")),
		repository.WithSnapshotFiles(files),
	)

	redisClient, err := cache.NewRedis(cfg.Redis)
	switch {
	case errors.Is(err, cache.ErrDisabled):
		redisClient = nil
	case err != nil:
		log.Warn("redis unavailable, continuing without it", zap.Error(err))
		redisClient = nil
	}
	cacheRepo := repository.NewCacheRepository(redisClient, log)

	metrics := service.NewMetricsService()
	validate := validator.New()

	queue := jobs.NewQueue("tracker", jobs.QueueConfig{
		Workers:    cfg.OTP.DeliveryWorkers,
		BufferSize: queueBufferSize,
		MaxRetries: cfg.OTP.DeliveryRetries,
		RetryDelay: cfg.OTP.DeliveryRetryWait,
		Logger:     log.Named("jobs"),
	})
	store.AttachQueue(queue)

	var cooldown repository.AlertCooldown
	if cfg.Monitor.AlertBackend == config.AlertBackendRedis && redisClient != nil {
		cooldown = repository.NewRedisAlertCooldown(cacheRepo, cfg.Monitor.AlertKeyNamespace, cfg.Monitor.DelayCooldown)
	} else {
		cooldown = repository.NewStoreAlertCooldown(store, cfg.Monitor.DelayCooldown)
	}

	assignments := service.NewAssignmentService(store, metrics, log.Named("assignment"), nil)
	status := service.NewStatusService(store, metrics, log.Named("status"), nil)
	otp := service.NewOTPService(store, notify.NewRouter(cfg.Notify, log.Named("notify")), cfg.OTP, metrics, log.Named("otp"), nil)
	otp.AttachQueue(queue)

	a := &App{
		Config:        cfg,
		Logger:        log,
		Store:         store,
		Metrics:       metrics,
		Assignments:   assignments,
		Status:        status,
		Applications:  service.NewApplicationService(store, assignments, status, validate, metrics, log.Named("application"), nil),
		Resolution:    service.NewResolutionService(store, assignments, validate, log.Named("resolution"), nil),
		Monitor:       service.NewMonitorService(store, cooldown, cfg.Monitor, metrics, log.Named("monitor"), nil),
		OTP:           otp,
		Directory:     service.NewDirectoryService(store, validate, log.Named("directory"), nil),
		Notifications: service.NewNotificationService(store, log.Named("notification"), nil),
		Admin: service.NewAdminService(store,
			service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, log.Named("cache"), cfg.Cache.Enabled),
			export.NewCSVExporter(), export.NewPDFExporter(), export.NewCertificateRenderer(),
			log.Named("admin"), nil),
		Auth: service.NewAuthService(store, otp, validate, log.Named("auth"), service.AuthConfig{
			AccessTokenSecret: cfg.JWT.Secret,
			AccessTokenExpiry: cfg.JWT.Expiration,
			Issuer:            cfg.JWT.Issuer,
		}, nil),
		queue:   queue,
		limiter: middleware.NewRateLimiter(cfg.RateLimit, log.Named("ratelimit")),
		redis:   redisClient,
	}
	return a, nil
}

// Start restores the snapshot and launches background workers. The monitor is
// scheduled only when scheduled is true and the configuration enables it.
func (a *App) Start(ctx context.Context, scheduled bool) error {
	if err := a.Store.Load(ctx); err != nil {
		return fmt.Errorf("load store: %w", err)
	}
	a.queue.Start(ctx)
	if scheduled && a.Config.Monitor.Enabled {
		if err := a.Monitor.Start(ctx); err != nil {
			return err
		}
	}
	if scheduled {
		a.limiter.StartCleanup(ctx)
	}
	return nil
}

// Close stops background work and writes a final snapshot.
func (a *App) Close(ctx context.Context) error {
	a.Monitor.Stop()
	a.queue.Stop()
	err := a.Store.Snapshot(ctx)
	if a.redis != nil {
		if cerr := a.redis.Close(); cerr != nil {
			a.Logger.Warn("close redis", zap.Error(cerr))
		}
	}
	return err
}

// Router builds the gin engine with every route mounted.
func (a *App) Router() *gin.Engine {
	if a.Config.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.Logger, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(a.Config.CORS))
	r.Use(middleware.Metrics(a.Metrics))

	routes := handler.Routes{
		Auth:          handler.NewAuthHandler(a.Auth),
		Applications:  handler.NewApplicationHandler(a.Applications, a.Assignments),
		Resolution:    handler.NewResolutionHandler(a.Resolution),
		Notifications: handler.NewNotificationHandler(a.Notifications),
		Directory:     handler.NewDirectoryHandler(a.Directory),
		Admin:         a.adminHandler(),
		Metrics:       handler.NewMetricsHandler(a.Metrics, a.readinessChecks()),
		Tokens:        a.Auth,
		OTPLimiter:    a.limiter,
	}
	routes.Register(r, a.Config.APIPrefix)

	if a.Config.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	return r
}

func (a *App) adminHandler() *handler.AdminHandler {
	if !a.Config.Monitor.Enabled {
		return handler.NewAdminHandler(a.Admin, nil)
	}
	return handler.NewAdminHandler(a.Admin, a.Monitor)
}

func (a *App) readinessChecks() map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{
		"store": func(ctx context.Context) error {
			return a.Store.View(ctx, func(repository.Repos) error { return nil })
		},
	}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			return a.redis.Ping(ctx).Err()
		}
	}
	return checks
}
