package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/dualauth/internal/authkit"
)

const (
	messageInvalidBody     = "Invalid request body"
	messageTooManyRequests = "Too many requests, please try again later"
)

func statusForKind(kind authkit.ErrorKind) int {
	switch kind {
	case authkit.KindValidation:
		return http.StatusBadRequest
	case authkit.KindAuthentication:
		return http.StatusUnauthorized
	case authkit.KindAuthorization:
		return http.StatusForbidden
	case authkit.KindConflict:
		return http.StatusConflict
	case authkit.KindRateLimited:
		return http.StatusTooManyRequests
	case authkit.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError aborts with the JSON body for failure without touching the audit log.
func writeError(contextGin *gin.Context, failure error) {
	kind := authkit.KindOf(failure)
	status := statusForKind(kind)
	if kind == authkit.KindRateLimited {
		retryAfter := 1
		var classified *authkit.Error
		if errors.As(failure, &classified) {
			retryAfter = classified.RetryAfterSeconds()
		}
		contextGin.Header("Retry-After", strconv.Itoa(retryAfter))
		contextGin.AbortWithStatusJSON(status, gin.H{
			"error":      authkit.MessageOf(failure),
			"retryAfter": retryAfter,
		})
		return
	}
	contextGin.AbortWithStatusJSON(status, gin.H{"error": authkit.MessageOf(failure)})
}

// fail records the "error" audit entry for action and then responds.
func (api *API) fail(contextGin *gin.Context, action string, failure error, body map[string]any) {
	var actorID *int64
	if profile, ok := profileFromContext(contextGin); ok {
		identifier := profile.ID
		actorID = &identifier
	}
	api.service.RecordFailure(contextGin.Request.Context(), actorID, action, failure, body)
	writeError(contextGin, failure)
}
