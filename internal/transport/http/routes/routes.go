package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/rbac-auth-service/internal/infra/config"
	"github.com/arklim/rbac-auth-service/internal/infra/security"
	"github.com/arklim/rbac-auth-service/internal/transport/http/handlers"
	"github.com/arklim/rbac-auth-service/internal/transport/http/middleware"
	"github.com/arklim/rbac-auth-service/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on. Nil services leave their routes unregistered.
type ServiceSet struct {
	Auth            *usecase.AuthService
	Resolver        *usecase.PermissionResolver
	Menus           *usecase.MenuSynchronizer
	RolePermissions *usecase.RolePermissionService
	Roles           *usecase.RoleService
	Permissions     *usecase.PermissionService
	Users           *usecase.UserService
	EmailCodes      *usecase.EmailCodeService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	HTTPMetrics *middleware.HTTPMetrics
	Services    ServiceSet
	JWTManager  *security.JWTManager
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
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if err := handlers.RegisterValidators(); err != nil {
		deps.Logger.Warn("register request validators", zap.Error(err))
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS(deps.Config.App.CORSAllowedOrigins))
	r.Use(deps.HTTPMetrics.Handler())

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if deps.JWTManager != nil {
		r.GET("/.well-known/jwks.json", handlers.NewJWKSHandler(deps.JWTManager).Keys)
	}

	services := deps.Services
	api := r.Group("/api/v1")

	if services.EmailCodes != nil {
		emailHandler := handlers.NewEmailHandler(services.EmailCodes)
		emailHandler.RegisterRoutes(api.Group("/email"), buildEmailCodeMiddlewares(deps)...)
	}

	if services.Auth == nil {
		return r
	}
	authMiddleware := middleware.RequireAuth(services.Auth)
	adminMiddleware := middleware.RequireRole(adminRole(deps))

	rbacGroup := api.Group("/rbac")
	if services.Resolver != nil && services.Menus != nil {
		rbacHandler := handlers.NewRBACHandler(services.Auth, services.Resolver, services.Menus)
		rbacHandler.RegisterRoutes(rbacGroup, authMiddleware, adminMiddleware, buildLoginMiddlewares(deps), buildRefreshMiddlewares(deps))
	}

	if services.RolePermissions != nil {
		group := rbacGroup.Group("/role-permissions")
		group.Use(authMiddleware, adminMiddleware)
		handlers.NewRolePermissionHandler(services.RolePermissions).RegisterRoutes(group)
	}

	if services.Roles != nil {
		group := rbacGroup.Group("/roles")
		group.Use(authMiddleware, adminMiddleware)
		handlers.NewRoleHandler(services.Roles).RegisterRoutes(group)
	}

	if services.Permissions != nil {
		group := rbacGroup.Group("/permissions")
		group.Use(authMiddleware, adminMiddleware)
		handlers.NewPermissionHandler(services.Permissions).RegisterRoutes(group)
	}

	if services.Users != nil {
		group := rbacGroup.Group("/all-users")
		group.Use(authMiddleware, adminMiddleware)
		handlers.NewUserHandler(services.Users).RegisterRoutes(group)
	}

	return r
}

func adminRole(deps Dependencies) string {
	if role := deps.Config.App.AdminRole; role != "" {
		return role
	}
	return "admin"
}

func rateLimitWindow(deps Dependencies) time.Duration {
	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}
	return window
}

func buildLoginMiddlewares(deps Dependencies) []gin.HandlerFunc {
	if deps.RateLimiter == nil {
		return nil
	}

	limit := deps.Config.RateLimit.LoginMaxAttempts
	if limit <= 0 {
		return nil
	}

	rule := middleware.RateLimitRule{
		Name:       "rbac_login_ip",
		Limit:      limit,
		Window:     rateLimitWindow(deps),
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}

func buildRefreshMiddlewares(deps Dependencies) []gin.HandlerFunc {
	if deps.RateLimiter == nil {
		return nil
	}

	limit := deps.Config.RateLimit.RefreshMaxAttempts
	if limit <= 0 {
		return nil
	}

	rule := middleware.RateLimitRule{
		Name:       "rbac_refresh_ip",
		Limit:      limit,
		Window:     rateLimitWindow(deps),
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}

// Email codes are limited per client IP and per target address.
func buildEmailCodeMiddlewares(deps Dependencies) []gin.HandlerFunc {
	if deps.RateLimiter == nil {
		return nil
	}

	limit := deps.Config.RateLimit.EmailCodeMaxAttempts
	if limit <= 0 {
		return nil
	}

	window := rateLimitWindow(deps)
	rules := []middleware.RateLimitRule{
		{
			Name:       "email_code_ip",
			Limit:      limit,
			Window:     window,
			Identifier: middleware.ClientIPIdentifier(),
		},
		{
			Name:       "email_code_address",
			Limit:      limit,
			Window:     window,
			Identifier: middleware.JSONFieldIdentifier("email"),
		},
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rules...)}
}
