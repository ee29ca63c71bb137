package web

import (
	"crypto/tls"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"
)

func TestConfigureCORS(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	middleware, err := ConfigureCORS(zaptest.NewLogger(t), []string{"http://localhost", "https://app.example/"}, CookieSettings{SameSite: http.SameSiteNoneMode})
	if err != nil {
		t.Fatalf("unexpected error configuring CORS: %v", err)
	}
	router.Use(middleware)
	router.OPTIONS("/auth/jwt/login", func(contextGin *gin.Context) {
		contextGin.Status(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodOptions, "/auth/jwt/login", nil)
	request.Header.Set("Origin", "https://app.example")
	request.Header.Set("Access-Control-Request-Method", http.MethodPost)
	router.ServeHTTP(recorder, request)

	if origin := recorder.Header().Get("Access-Control-Allow-Origin"); origin != "https://app.example" {
		t.Fatalf("unexpected allowed origin header: %q", origin)
	}
	if credentials := recorder.Header().Get("Access-Control-Allow-Credentials"); credentials != "true" {
		t.Fatalf("expected credentials to be allowed, got %q", credentials)
	}
}

func TestConfigureCORSWithholdsCredentialsForLaxCookies(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	middleware, err := ConfigureCORS(zaptest.NewLogger(t), []string{"https://app.example"}, CookieSettings{})
	if err != nil {
		t.Fatalf("unexpected error configuring CORS: %v", err)
	}
	router.Use(middleware)
	router.GET("/auth/jwt/profile", func(contextGin *gin.Context) {
		contextGin.Status(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/auth/jwt/profile", nil)
	request.Header.Set("Origin", "https://app.example")
	router.ServeHTTP(recorder, request)

	if origin := recorder.Header().Get("Access-Control-Allow-Origin"); origin != "https://app.example" {
		t.Fatalf("unexpected allowed origin header: %q", origin)
	}
	if credentials := recorder.Header().Get("Access-Control-Allow-Credentials"); credentials != "" {
		t.Fatalf("expected no credentials header for lax cookies, got %q", credentials)
	}
}

func TestConfigureCORSRejectsUnsafeOrigins(t *testing.T) {
	testCases := []struct {
		name     string
		origins  []string
		expected error
	}{
		{name: "nil", origins: nil, expected: errEmptyAllowedOrigins},
		{name: "blank", origins: []string{"  "}, expected: errEmptyAllowedOrigins},
		{name: "wildcard", origins: []string{"*"}, expected: errWildcardOrigin},
		{name: "path", origins: []string{"https://app.example/login"}, expected: errInvalidOrigin},
		{name: "scheme", origins: []string{"ftp://app.example"}, expected: errInvalidOrigin},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if _, err := ConfigureCORS(nil, testCase.origins, CookieSettings{}); !errors.Is(err, testCase.expected) {
				t.Fatalf("expected %v, got %v", testCase.expected, err)
			}
		})
	}
}

func TestIsHTTPS(t *testing.T) {
	plain := httptest.NewRequest(http.MethodGet, "http://api.example/", nil)
	if isHTTPS(plain) {
		t.Fatalf("plain request reported as https")
	}
	forwarded := httptest.NewRequest(http.MethodGet, "http://api.example/", nil)
	forwarded.Header.Set("X-Forwarded-Proto", "https")
	if !isHTTPS(forwarded) {
		t.Fatalf("expected X-Forwarded-Proto to count as https")
	}
	standard := httptest.NewRequest(http.MethodGet, "http://api.example/", nil)
	standard.Header.Set("Forwarded", "for=1.2.3.4;proto=https")
	if !isHTTPS(standard) {
		t.Fatalf("expected Forwarded proto to count as https")
	}
	direct := httptest.NewRequest(http.MethodGet, "https://api.example/", nil)
	direct.TLS = &tls.ConnectionState{}
	if !isHTTPS(direct) {
		t.Fatalf("expected TLS request to count as https")
	}
	if isHTTPS(nil) {
		t.Fatalf("nil request reported as https")
	}
}

func TestSessionCookieSecureFlag(t *testing.T) {
	gin.SetMode(gin.TestMode)
	testCases := []struct {
		name     string
		settings CookieSettings
		proto    string
		secure   bool
	}{
		{name: "secure by default", settings: CookieSettings{}, secure: true},
		{name: "insecure dev over http", settings: CookieSettings{AllowInsecure: true}, secure: false},
		{name: "insecure dev behind tls proxy", settings: CookieSettings{AllowInsecure: true}, proto: "https", secure: true},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			contextGin, _ := gin.CreateTestContext(recorder)
			contextGin.Request = httptest.NewRequest(http.MethodPost, "http://api.example/auth/login", nil)
			if testCase.proto != "" {
				contextGin.Request.Header.Set("X-Forwarded-Proto", testCase.proto)
			}
			settings := testCase.settings.withDefaults()
			writeSessionCookie(contextGin, settings, "sid", time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))

			cookies := recorder.Result().Cookies()
			if len(cookies) != 1 {
				t.Fatalf("expected one cookie, got %d", len(cookies))
			}
			cookie := cookies[0]
			if cookie.Name != DefaultSessionCookieName || !cookie.HttpOnly || cookie.SameSite != http.SameSiteLaxMode {
				t.Fatalf("unexpected cookie attributes %+v", cookie)
			}
			if cookie.Secure != testCase.secure {
				t.Fatalf("expected secure=%v, got %v", testCase.secure, cookie.Secure)
			}
		})
	}
}
