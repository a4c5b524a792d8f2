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
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/arklim/rbac-auth-service/internal/core/port"
	"github.com/arklim/rbac-auth-service/internal/infra/config"
	"github.com/arklim/rbac-auth-service/internal/infra/database"
	kafkainfra "github.com/arklim/rbac-auth-service/internal/infra/kafka"
	"github.com/arklim/rbac-auth-service/internal/infra/logger"
	redisinfra "github.com/arklim/rbac-auth-service/internal/infra/redis"
	"github.com/arklim/rbac-auth-service/internal/infra/security"
	"github.com/arklim/rbac-auth-service/internal/infra/telemetry"
	"github.com/arklim/rbac-auth-service/internal/jobs"
	postgresrepo "github.com/arklim/rbac-auth-service/internal/repository/postgres"
	redisrepo "github.com/arklim/rbac-auth-service/internal/repository/redis"
	"github.com/arklim/rbac-auth-service/internal/transport/http/middleware"
	"github.com/arklim/rbac-auth-service/internal/transport/http/routes"
	"github.com/arklim/rbac-auth-service/internal/usecase"
)

type Application struct {
	cfg     *config.AppConfig
	engine  *gin.Engine
	logger  *zap.Logger
	pool    *pgxpool.Pool
	redis   *redisinfra.Client
	tracer  *telemetry.TracerProvider
	worker  *jobs.Worker
	closers []func() error
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	application := &Application{cfg: cfg, logger: log}
	if err := application.init(ctx); err != nil {
		application.close()
		return nil, err
	}
	return application, nil
}

func (a *Application) init(ctx context.Context) error {
	cfg, log := a.cfg, a.logger

	tracer, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	a.tracer = tracer

	metrics, err := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: prometheus.DefaultRegisterer})
	if err != nil {
		return fmt.Errorf("init http metrics: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	a.pool = pool

	redisClient, err := redisinfra.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	a.redis = redisClient

	keyProvider, err := security.NewKeyProvider(cfg.App.Env, cfg.JWT.KeyDirectory)
	if err != nil {
		return fmt.Errorf("init key provider: %w", err)
	}
	jwtManager := security.NewJWTManager(keyProvider)

	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return fmt.Errorf("configure argon2: %w", err)
	}
	policy := security.NewPasswordPolicy(security.PasswordPolicyConfig{
		MinLength:           cfg.Password.MinLength,
		MinCharacterClasses: cfg.Password.MinCharacterClasses,
		MinStrength:         cfg.Password.MinStrength,
	})

	events, closeEvents, err := kafkainfra.NewPublisher(cfg.Kafka, cfg.App, log)
	if err != nil {
		log.Warn("failed to init kafka producer, events will be logged only", zap.Error(err))
		events, closeEvents = kafkainfra.NewStubPublisher(log), func() error { return nil }
	}
	a.closers = append(a.closers, closeEvents)

	mailQueue := a.mailQueue(cfg)

	repos := postgresrepo.NewRepositories(pool)
	rdb := redisClient.Client()

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(rdb, redisrepo.SlidingWindowConfig{
		KeyPrefix: "rbac:rate-limit",
		TTL:       rateLimitWindow * 2,
	})

	resolver := usecase.NewPermissionResolver(repos.Roles, repos.Permissions)
	authService := usecase.NewAuthService(usecase.AuthConfigFromSettings(cfg.JWT), usecase.AuthDependencies{
		Users:       repos.Users,
		Tokens:      repos.Tokens,
		Revocations: redisrepo.NewRevocationRepository(rdb, cfg.Redis.RevocationPrefix),
		Hasher:      hasher,
		JWT:         jwtManager,
		Resolver:    resolver,
		Events:      events,
		Metrics:     metrics,
		Logger:      log,
	})
	emailCodes := usecase.NewEmailCodeService(usecase.EmailCodeConfigFromSettings(cfg.Email), usecase.EmailCodeDependencies{
		Users:    repos.Users,
		Codes:    redisrepo.NewEmailCodeRepository(rdb, cfg.Redis.EmailCodePrefix),
		Mail:     mailQueue,
		Hasher:   hasher,
		Policy:   policy,
		Sessions: authService,
		Events:   events,
		Metrics:  metrics,
		Logger:   log,
	})

	a.engine = routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: middleware.NewRateLimiter(rateLimitStore, log),
		HTTPMetrics: httpMetrics,
		JWTManager:  jwtManager,
		Database:    pool,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Auth:            authService,
			Resolver:        resolver,
			Menus:           usecase.NewMenuSynchronizer(repos.Transactor, events, metrics, log),
			RolePermissions: usecase.NewRolePermissionService(repos.Roles, repos.Permissions, repos.Transactor, events, metrics, log),
			Roles:           usecase.NewRoleService(repos.Roles),
			Permissions:     usecase.NewPermissionService(repos.Permissions),
			Users:           usecase.NewUserService(repos.Users, repos.Transactor, hasher, policy, events, log),
			EmailCodes:      emailCodes,
		},
	})

	return nil
}

// mailQueue returns the asynq-backed queue and its worker when jobs are enabled. Otherwise codes
// are mailed synchronously on the request path.
func (a *Application) mailQueue(cfg *config.AppConfig) port.MailQueue {
	validMinutes := int(cfg.Email.CodeTTL.Minutes())
	handler := jobs.NewEmailCodeHandler(jobs.NewSMTPMailer(cfg.Email), cfg.Email.Subject, validMinutes, a.logger)

	if !cfg.Jobs.Enabled {
		a.logger.Info("background jobs disabled, email codes are sent inline")
		return jobs.NewInlineQueue(handler)
	}

	redisOpt := jobs.RedisOpt(cfg.Redis)
	client := jobs.NewClient(redisOpt, cfg.Jobs)
	a.closers = append(a.closers, client.Close)
	a.worker = jobs.NewWorker(redisOpt, cfg.Jobs, handler, a.logger)
	return client
}

func (a *Application) Run(ctx context.Context) error {
	defer a.close()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting RBAC API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("run server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		timeout := a.cfg.App.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	})
	if a.worker != nil {
		g.Go(func() error {
			if err := a.worker.Run(gctx); err != nil {
				return fmt.Errorf("run job worker: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}

func (a *Application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close resource", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("shutdown tracer provider", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
