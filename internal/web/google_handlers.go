package web

import (
	"crypto/subtle"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/dualauth/internal/authkit"
	"go.uber.org/zap"
)

// Error codes appended to the frontend login redirect.
const (
	googleErrorNotConfigured   = "google_not_configured"
	googleErrorAccessDenied    = "access_denied"
	googleErrorStateMismatch   = "invalid_state"
	googleErrorMissingCode     = "missing_code"
	googleErrorExchangeFailed  = "google_exchange_failed"
	googleErrorAccountInactive = "account_deactivated"
	googleErrorLoginFailed     = "login_failed"

	googleAuditAction = "google_login"
)

func (api *API) handleGoogleStart(contextGin *gin.Context) {
	if api.google == nil {
		api.redirectLoginError(contextGin, googleErrorNotConfigured)
		return
	}
	state, stateErr := authkit.NewSessionID()
	if stateErr != nil {
		api.logger.Error("oauth state generation failed", zap.String("code", "google.state_failed"), zap.Error(stateErr))
		api.redirectLoginError(contextGin, googleErrorLoginFailed)
		return
	}
	writeStateCookie(contextGin, api.cookies, state, api.clock.Now().Add(oauthStateTTL))
	contextGin.Redirect(http.StatusFound, api.google.AuthCodeURL(state))
}

func (api *API) handleGoogleCallback(contextGin *gin.Context) {
	if api.google == nil {
		api.redirectLoginError(contextGin, googleErrorNotConfigured)
		return
	}
	expectedState, _ := contextGin.Cookie(oauthStateCookieName)
	clearCookie(contextGin, api.cookies, oauthStateCookieName, oauthStateCookiePath)

	if providerError := contextGin.Query("error"); providerError != "" {
		api.googleFailure(contextGin, googleErrorAccessDenied, authkit.NewAuthenticationError("Google sign-in was cancelled", nil))
		return
	}
	receivedState := contextGin.Query("state")
	if expectedState == "" || subtle.ConstantTimeCompare([]byte(expectedState), []byte(receivedState)) != 1 {
		api.googleFailure(contextGin, googleErrorStateMismatch, authkit.NewAuthenticationError("Invalid OAuth state", nil))
		return
	}
	code := contextGin.Query("code")
	if code == "" {
		api.googleFailure(contextGin, googleErrorMissingCode, authkit.NewValidationError("Authorization code required", nil))
		return
	}
	ctx := contextGin.Request.Context()
	identity, exchangeErr := api.google.Exchange(ctx, code)
	if exchangeErr != nil {
		api.googleFailure(contextGin, googleErrorExchangeFailed, authkit.NewAuthenticationError("Google sign-in failed", exchangeErr))
		return
	}
	established, loginErr := api.service.CompleteGoogleLogin(ctx, identity)
	if loginErr != nil {
		reason := googleErrorLoginFailed
		if authkit.MessageOf(loginErr) == "Account is deactivated" {
			reason = googleErrorAccountInactive
		}
		api.googleFailure(contextGin, reason, loginErr)
		return
	}
	writeSessionCookie(contextGin, api.cookies, established.SessionID, established.ExpiresAt)
	contextGin.Redirect(http.StatusFound, api.frontendBase(contextGin)+"/profile")
}

func (api *API) googleFailure(contextGin *gin.Context, reason string, failure error) {
	api.service.RecordFailure(contextGin.Request.Context(), nil, googleAuditAction, failure, map[string]any{"reason": reason})
	api.logger.Warn("google sign-in failed", zap.String("code", "google."+reason), zap.Error(failure))
	api.redirectLoginError(contextGin, reason)
}

func (api *API) redirectLoginError(contextGin *gin.Context, reason string) {
	contextGin.Redirect(http.StatusFound, api.frontendBase(contextGin)+"/login?error="+url.QueryEscape(reason))
}

func (api *API) frontendBase(contextGin *gin.Context) string {
	if api.frontendURL != "" {
		return api.frontendURL
	}
	return requestBaseURL(contextGin.Request)
}
