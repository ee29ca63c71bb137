package web

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	// DefaultSessionCookieName carries the opaque session id.
	DefaultSessionCookieName = "dualauth_session"
	oauthStateCookieName     = "dualauth_oauth_state"
	oauthStateCookiePath     = "/auth/google"
	oauthStateTTL            = 10 * time.Minute
)

// CookieSettings controls how session cookies are written.
type CookieSettings struct {
	Name     string
	Domain   string
	SameSite http.SameSite
	// AllowInsecure drops the Secure flag for plain-HTTP local development.
	AllowInsecure bool
}

func (settings CookieSettings) withDefaults() CookieSettings {
	if strings.TrimSpace(settings.Name) == "" {
		settings.Name = DefaultSessionCookieName
	}
	if settings.SameSite == 0 {
		settings.SameSite = http.SameSiteLaxMode
	}
	return settings
}

func (settings CookieSettings) secure(request *http.Request) bool {
	if !settings.AllowInsecure {
		return true
	}
	return isHTTPS(request)
}

func writeSessionCookie(contextGin *gin.Context, settings CookieSettings, sessionID string, expiresAt time.Time) {
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     settings.Name,
		Value:    sessionID,
		Path:     "/",
		Domain:   settings.Domain,
		Expires:  expiresAt,
		Secure:   settings.secure(contextGin.Request),
		HttpOnly: true,
		SameSite: settings.SameSite,
	})
}

func writeStateCookie(contextGin *gin.Context, settings CookieSettings, state string, expiresAt time.Time) {
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     oauthStateCookieName,
		Value:    state,
		Path:     oauthStateCookiePath,
		Domain:   settings.Domain,
		Expires:  expiresAt,
		MaxAge:   int(oauthStateTTL / time.Second),
		Secure:   settings.secure(contextGin.Request),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearCookie(contextGin *gin.Context, settings CookieSettings, name string, path string) {
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Domain:   settings.Domain,
		MaxAge:   -1,
		Secure:   settings.secure(contextGin.Request),
		HttpOnly: true,
		SameSite: settings.SameSite,
	})
}

func isHTTPS(request *http.Request) bool {
	if request == nil {
		return false
	}
	if request.TLS != nil {
		return true
	}
	if strings.EqualFold(request.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	forwarded := request.Header.Get("Forwarded")
	if forwarded != "" && strings.Contains(strings.ToLower(forwarded), "proto=https") {
		return true
	}
	host, _, splitErr := net.SplitHostPort(request.Host)
	return splitErr == nil && host == "localhost"
}

// requestBaseURL rebuilds the scheme and host the client used to reach the service.
func requestBaseURL(request *http.Request) string {
	scheme := "http"
	if headerValue := request.Header.Get("X-Forwarded-Proto"); headerValue != "" {
		scheme = headerValue
	} else if request.TLS != nil {
		scheme = "https"
	}
	host := request.Host
	if host == "" {
		host = "localhost"
	}
	return scheme + "://" + host
}
