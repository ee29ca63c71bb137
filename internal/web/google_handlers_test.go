package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/tyemirov/dualauth/internal/authkit"
	"golang.org/x/oauth2"
	"google.golang.org/api/idtoken"
)

type stubGoogleValidator struct {
	claims map[string]any
}

func (validator stubGoogleValidator) Validate(ctx context.Context, idToken string, audience string) (*idtoken.Payload, error) {
	return &idtoken.Payload{Claims: validator.claims}, nil
}

func newStubGoogleProvider(t *testing.T, email string) *authkit.GoogleProvider {
	t.Helper()
	tokenServer := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if err := request.ParseForm(); err != nil || request.PostForm.Get("code") != "good-code" {
			writer.Header().Set("Content-Type", "application/json")
			writer.WriteHeader(http.StatusBadRequest)
			_, _ = writer.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		writer.Header().Set("Content-Type", "application/json")
		_, _ = writer.Write([]byte(`{"access_token":"a","token_type":"Bearer","expires_in":3600,"id_token":"raw"}`))
	}))
	t.Cleanup(tokenServer.Close)
	provider, err := authkit.NewGoogleProvider(authkit.GoogleConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost/auth/google/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://accounts.example/auth",
			TokenURL:  tokenServer.URL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}, stubGoogleValidator{claims: map[string]any{
		"iss":            "https://accounts.google.com",
		"sub":            "google-sub-1",
		"email":          email,
		"email_verified": true,
	}})
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	return provider
}

func stateCookieFrom(t *testing.T, recorder *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == oauthStateCookieName && cookie.Value != "" {
			return cookie
		}
	}
	t.Fatalf("no oauth state cookie set")
	return nil
}

func expectRedirect(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	expectStatus(t, recorder, http.StatusFound)
	if location := recorder.Header().Get("Location"); location != expected {
		t.Fatalf("expected redirect to %q, got %q", expected, location)
	}
}

func TestGoogleFlowCreatesSession(t *testing.T) {
	harness := newAPIHarness(t, harnessOptions{google: newStubGoogleProvider(t, "G.User@Example.com")})

	start := harness.do(t, http.MethodGet, "/auth/google", requestOptions{})
	expectStatus(t, start, http.StatusFound)
	consentURL, err := url.Parse(start.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse consent url: %v", err)
	}
	stateCookie := stateCookieFrom(t, start)
	if consentURL.Query().Get("state") != stateCookie.Value {
		t.Fatalf("state parameter does not match cookie")
	}

	callback := harness.do(t, http.MethodGet, "/auth/google/callback?code=good-code&state="+url.QueryEscape(stateCookie.Value), requestOptions{
		cookies: []*http.Cookie{stateCookie},
	})
	expectRedirect(t, callback, "https://app.example/profile")
	sessionCookie := sessionCookieFrom(t, callback)

	me := harness.do(t, http.MethodGet, "/user/me", requestOptions{cookies: []*http.Cookie{sessionCookie}})
	expectStatus(t, me, http.StatusOK)
	if decodeBody(t, me)["user"].(map[string]any)["email"] != "g.user@example.com" {
		t.Fatalf("unexpected google user %s", me.Body.String())
	}

	entries, _, listErr := harness.audit.List(context.Background(), authkit.AuditFilter{Action: authkit.AuditActionRegisterGoogle})
	if listErr != nil || len(entries) != 1 {
		t.Fatalf("expected register_google audit entry, got %d (%v)", len(entries), listErr)
	}

	passwordLogin := harness.do(t, http.MethodPost, "/auth/jwt/login", requestOptions{body: map[string]any{"email": "g.user@example.com", "password": "anything"}})
	expectStatus(t, passwordLogin, http.StatusUnauthorized)
}

func TestGoogleCallbackFailuresRedirectWithCode(t *testing.T) {
	harness := newAPIHarness(t, harnessOptions{google: newStubGoogleProvider(t, "g@example.com")})
	start := harness.do(t, http.MethodGet, "/auth/google", requestOptions{})
	stateCookie := stateCookieFrom(t, start)

	testCases := []struct {
		name     string
		path     string
		cookies  []*http.Cookie
		expected string
	}{
		{name: "provider error", path: "/auth/google/callback?error=access_denied", cookies: []*http.Cookie{stateCookie}, expected: googleErrorAccessDenied},
		{name: "missing state cookie", path: "/auth/google/callback?code=good-code&state=" + stateCookie.Value, expected: googleErrorStateMismatch},
		{name: "state mismatch", path: "/auth/google/callback?code=good-code&state=forged", cookies: []*http.Cookie{stateCookie}, expected: googleErrorStateMismatch},
		{name: "missing code", path: "/auth/google/callback?state=" + stateCookie.Value, cookies: []*http.Cookie{stateCookie}, expected: googleErrorMissingCode},
		{name: "exchange rejected", path: "/auth/google/callback?code=bad-code&state=" + stateCookie.Value, cookies: []*http.Cookie{stateCookie}, expected: googleErrorExchangeFailed},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			recorder := harness.do(t, http.MethodGet, testCase.path, requestOptions{cookies: testCase.cookies})
			expectRedirect(t, recorder, "https://app.example/login?error="+testCase.expected)
		})
	}
}

func TestGoogleRoutesWithoutProvider(t *testing.T) {
	harness := newAPIHarness(t, harnessOptions{})
	expectRedirect(t, harness.do(t, http.MethodGet, "/auth/google", requestOptions{}), "https://app.example/login?error="+googleErrorNotConfigured)
	expectRedirect(t, harness.do(t, http.MethodGet, "/auth/google/callback?code=x", requestOptions{}), "https://app.example/login?error="+googleErrorNotConfigured)
}
