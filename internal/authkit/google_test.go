package authkit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/oauth2"
	"google.golang.org/api/idtoken"
)

type fakeGoogleValidator struct {
	claims       map[string]any
	err          error
	seenToken    string
	seenAudience string
}

func (validator *fakeGoogleValidator) Validate(ctx context.Context, idToken string, audience string) (*idtoken.Payload, error) {
	validator.seenToken = idToken
	validator.seenAudience = audience
	if validator.err != nil {
		return nil, validator.err
	}
	return &idtoken.Payload{Claims: validator.claims}, nil
}

func newGoogleTokenServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if err := request.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if request.PostForm.Get("code") != "auth-code" {
			writer.WriteHeader(http.StatusBadRequest)
			_, _ = writer.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		writer.Header().Set("Content-Type", "application/json")
		_, _ = writer.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestGoogleProvider(t *testing.T, tokenURL string, validator GoogleTokenValidator) *GoogleProvider {
	t.Helper()
	provider, err := NewGoogleProvider(GoogleConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost/auth/google/callback",
		Endpoint:     oauth2.Endpoint{AuthURL: "https://accounts.example/auth", TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams},
	}, validator)
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	return provider
}

func TestNewGoogleProviderRequiresConfiguration(t *testing.T) {
	if _, err := NewGoogleProvider(GoogleConfig{ClientID: "id"}, &fakeGoogleValidator{}); !errors.Is(err, errGoogleNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}
}

func TestGoogleProviderAuthCodeURLCarriesState(t *testing.T) {
	provider := newTestGoogleProvider(t, "https://accounts.example/token", &fakeGoogleValidator{})
	consentURL, err := url.Parse(provider.AuthCodeURL("state-123"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	query := consentURL.Query()
	if query.Get("state") != "state-123" || query.Get("client_id") != "client-id" {
		t.Fatalf("unexpected consent url %s", consentURL)
	}
	if !strings.Contains(query.Get("scope"), "email") {
		t.Fatalf("expected email scope, got %q", query.Get("scope"))
	}
}

func TestGoogleProviderExchange(t *testing.T) {
	server := newGoogleTokenServer(t, `{"access_token":"access","token_type":"Bearer","expires_in":3600,"id_token":"raw-id-token"}`)
	validator := &fakeGoogleValidator{claims: map[string]any{
		"iss":            "https://accounts.google.com",
		"sub":            "google-sub",
		"email":          " Person@Example.com ",
		"email_verified": true,
		"name":           "Person",
	}}
	provider := newTestGoogleProvider(t, server.URL, validator)

	identity, err := provider.Exchange(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if identity.Email != "person@example.com" || identity.Subject != "google-sub" || identity.Name != "Person" {
		t.Fatalf("unexpected identity %+v", identity)
	}
	if validator.seenToken != "raw-id-token" || validator.seenAudience != "client-id" {
		t.Fatalf("validator received %q / %q", validator.seenToken, validator.seenAudience)
	}
}

func TestGoogleProviderExchangeFailures(t *testing.T) {
	verifiedClaims := map[string]any{"iss": "accounts.google.com", "sub": "s", "email": "a@x.com", "email_verified": true}
	testCases := []struct {
		name      string
		body      string
		code      string
		validator *fakeGoogleValidator
		expected  error
	}{
		{name: "bad code", body: `{}`, code: "other", validator: &fakeGoogleValidator{claims: verifiedClaims}},
		{name: "missing id token", body: `{"access_token":"a","token_type":"Bearer"}`, code: "auth-code", validator: &fakeGoogleValidator{claims: verifiedClaims}, expected: errGoogleMissingIDToken},
		{name: "validator rejects", body: `{"access_token":"a","token_type":"Bearer","id_token":"x"}`, code: "auth-code", validator: &fakeGoogleValidator{err: errors.New("bad signature")}},
		{name: "wrong issuer", body: `{"access_token":"a","token_type":"Bearer","id_token":"x"}`, code: "auth-code", validator: &fakeGoogleValidator{claims: map[string]any{"iss": "https://evil.example", "sub": "s", "email": "a@x.com", "email_verified": true}}, expected: errGoogleInvalidIssuer},
		{name: "unverified email", body: `{"access_token":"a","token_type":"Bearer","id_token":"x"}`, code: "auth-code", validator: &fakeGoogleValidator{claims: map[string]any{"iss": "accounts.google.com", "sub": "s", "email": "a@x.com", "email_verified": false}}, expected: errGoogleUnverifiedEmail},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			server := newGoogleTokenServer(t, testCase.body)
			provider := newTestGoogleProvider(t, server.URL, testCase.validator)
			_, err := provider.Exchange(context.Background(), testCase.code)
			if err == nil {
				t.Fatalf("expected failure")
			}
			if testCase.expected != nil && !errors.Is(err, testCase.expected) {
				t.Fatalf("expected %v, got %v", testCase.expected, err)
			}
		})
	}
}
