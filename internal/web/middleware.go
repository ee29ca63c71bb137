package web

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/dualauth/internal/authkit"
	"github.com/tyemirov/dualauth/pkg/tokenvalidator"
	"go.uber.org/zap"
)

const (
	profileContextKey   = "auth_profile"
	sessionIDContextKey = "auth_session_id"

	messageAccessTokenRequired  = "Access token required"
	messageInsufficientRole     = "Insufficient permissions"
	messageRateLimiterUnhealthy = "Internal server error"
)

func profileFromContext(contextGin *gin.Context) (authkit.Profile, bool) {
	value, found := contextGin.Get(profileContextKey)
	if !found {
		return authkit.Profile{}, false
	}
	profile, ok := value.(authkit.Profile)
	return profile, ok
}

// RequireBearer authenticates the Authorization header and stores the caller's profile.
func (api *API) RequireBearer() gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		accessToken, headerErr := tokenvalidator.BearerToken(contextGin.Request)
		if headerErr != nil {
			api.fail(contextGin, "authenticate", authkit.NewAuthenticationError(messageAccessTokenRequired, headerErr), nil)
			return
		}
		profile, authErr := api.service.AuthenticateAccessToken(contextGin.Request.Context(), accessToken)
		if authErr != nil {
			api.fail(contextGin, "authenticate", authErr, nil)
			return
		}
		contextGin.Set(profileContextKey, profile)
		contextGin.Next()
	}
}

// RequireSession authenticates the session cookie and stores the session's profile snapshot.
func (api *API) RequireSession() gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		sessionCookie, cookieErr := contextGin.Request.Cookie(api.cookies.Name)
		if cookieErr != nil || sessionCookie.Value == "" {
			api.fail(contextGin, "authenticate_session", authkit.NewAuthenticationError("Not authenticated", authkit.ErrSessionNotFound), nil)
			return
		}
		profile, authErr := api.service.AuthenticateSession(contextGin.Request.Context(), sessionCookie.Value)
		if authErr != nil {
			if authkit.KindOf(authErr) == authkit.KindAuthentication {
				clearCookie(contextGin, api.cookies, api.cookies.Name, "/")
			}
			api.fail(contextGin, "authenticate_session", authErr, nil)
			return
		}
		contextGin.Set(profileContextKey, profile)
		contextGin.Set(sessionIDContextKey, sessionCookie.Value)
		contextGin.Next()
	}
}

// RequireRole admits callers whose profile carries one of roles. It must run after an authentication guard.
func (api *API) RequireRole(roles ...authkit.RoleName) gin.HandlerFunc {
	required := make([]string, 0, len(roles))
	for _, role := range roles {
		required = append(required, role.String())
	}
	return func(contextGin *gin.Context) {
		profile, ok := profileFromContext(contextGin)
		if !ok {
			writeError(contextGin, authkit.NewAuthenticationError("Not authenticated", nil))
			return
		}
		for _, role := range roles {
			if profile.Role == role {
				contextGin.Next()
				return
			}
		}
		actorID := profile.ID
		api.service.RecordFailure(contextGin.Request.Context(), &actorID, "authorize",
			authkit.NewAuthorizationError(messageInsufficientRole, nil),
			map[string]any{"path": contextGin.FullPath(), "required": required})
		contextGin.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":    messageInsufficientRole,
			"required": required,
			"current":  profile.Role,
		})
	}
}

// RateLimit consumes one point of policy per client address. A limiter outage rejects the request.
func (api *API) RateLimit(policy authkit.RateLimitPolicy) gin.HandlerFunc {
	if api.limiter == nil {
		return func(contextGin *gin.Context) {
			contextGin.Next()
		}
	}
	return func(contextGin *gin.Context) {
		decision, consumeErr := api.limiter.Consume(contextGin.Request.Context(), contextGin.ClientIP(), policy)
		if consumeErr != nil {
			api.logger.Error("rate limiter unavailable",
				zap.String("code", "ratelimit.unavailable"),
				zap.String("policy", policy.Name),
				zap.Error(consumeErr))
			writeError(contextGin, authkit.NewDependencyError(messageRateLimiterUnhealthy, consumeErr))
			return
		}
		if !decision.Allowed {
			authkit.RecordRateLimited(api.metrics)
			api.logger.Info("rate limit exceeded",
				zap.String("code", "ratelimit.exceeded"),
				zap.String("policy", policy.Name),
				zap.String("client_ip", contextGin.ClientIP()))
			writeError(contextGin, authkit.NewRateLimitedError(messageTooManyRequests, decision.RetryAfter))
			return
		}
		contextGin.Header("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		contextGin.Next()
	}
}
