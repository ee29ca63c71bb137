package web

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/dualauth/internal/authkit"
	"go.uber.org/zap"
)

var errMissingService = errors.New("web.api.missing_service")

// APIConfig wires the HTTP surface to the orchestrator and its guards.
type APIConfig struct {
	Service *authkit.Service
	// Limiter is optional; nil disables rate limiting.
	Limiter authkit.RateLimiter
	// Google is optional; nil answers the redirect routes with a google_not_configured error.
	Google         *authkit.GoogleProvider
	Cookies        CookieSettings
	FrontendURL    string
	Metrics        authkit.MetricsRecorder
	MetricsHandler http.Handler
	Logger         *zap.Logger
	Clock          authkit.Clock
}

// API serves the JWT, cookie-session, admin and Google routes.
type API struct {
	service        *authkit.Service
	limiter        authkit.RateLimiter
	google         *authkit.GoogleProvider
	cookies        CookieSettings
	frontendURL    string
	metrics        authkit.MetricsRecorder
	metricsHandler http.Handler
	logger         *zap.Logger
	clock          authkit.Clock
	startedAt      time.Time
}

// NewAPI validates configuration and returns an API.
func NewAPI(configuration APIConfig) (*API, error) {
	if configuration.Service == nil {
		return nil, errMissingService
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := configuration.Clock
	if clock == nil {
		clock = authkit.SystemClock{}
	}
	return &API{
		service:        configuration.Service,
		limiter:        configuration.Limiter,
		google:         configuration.Google,
		cookies:        configuration.Cookies.withDefaults(),
		frontendURL:    strings.TrimRight(strings.TrimSpace(configuration.FrontendURL), "/"),
		metrics:        configuration.Metrics,
		metricsHandler: configuration.MetricsHandler,
		logger:         logger,
		clock:          clock,
		startedAt:      clock.Now(),
	}, nil
}

// Mount registers every route on router.
func (api *API) Mount(router gin.IRouter) {
	router.GET("/health", api.handleHealth)
	if api.metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(api.metricsHandler))
	}

	jwtGroup := router.Group("/auth/jwt")
	jwtGroup.POST("/register", api.RateLimit(authkit.PolicyRegister), api.handleJWTRegister)
	jwtGroup.POST("/login", api.RateLimit(authkit.PolicyAuth), api.handleJWTLogin)
	jwtGroup.POST("/refresh", api.handleJWTRefresh)
	jwtGroup.POST("/logout", api.handleJWTLogout)
	jwtGroup.GET("/profile", api.RequireBearer(), api.RateLimit(authkit.PolicyAPI), api.handleJWTProfile)
	jwtGroup.GET("/validate", api.RequireBearer(), api.handleJWTValidate)
	jwtGroup.GET("/admin/users", api.RequireBearer(), api.RequireRole(authkit.RoleAdmin), api.handleListUsers)

	authGroup := router.Group("/auth")
	authGroup.POST("/register", api.RateLimit(authkit.PolicyRegister), api.handleSessionRegister)
	authGroup.POST("/login", api.RateLimit(authkit.PolicyAuth), api.handleSessionLogin)
	authGroup.GET("/google", api.RateLimit(authkit.PolicyOAuth), api.handleGoogleStart)
	authGroup.GET("/google/callback", api.RateLimit(authkit.PolicyOAuth), api.handleGoogleCallback)

	userGroup := router.Group("/user", api.RateLimit(authkit.PolicyAPI), api.RequireSession())
	userGroup.GET("/me", api.handleSessionMe)
	userGroup.POST("/logout", api.handleSessionLogout)

	adminGroup := userGroup.Group("", api.RequireRole(authkit.RoleAdmin))
	adminGroup.POST("/set-role", api.handleSetRole)
	adminGroup.GET("/all-users", api.handleListUsers)
	adminGroup.DELETE("/delete-user", api.handleDeleteUser)
	adminGroup.GET("/logs", api.handleListLogs)
	adminGroup.POST("/set-user-active-status", api.handleSetUserActiveStatus)
	adminGroup.GET("/user-audit/:userId", api.handleUserAudit)
	adminGroup.POST("/admin/logout-user", api.handleForceLogout)
	adminGroup.GET("/online-status", api.handleOnlineStatus)
}

func (api *API) handleHealth(contextGin *gin.Context) {
	now := api.clock.Now().UTC()
	contextGin.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": now.Format(time.RFC3339),
		"uptime":    now.Sub(api.startedAt).Seconds(),
	})
}
