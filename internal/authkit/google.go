package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/idtoken"
)

var (
	errGoogleNotConfigured   = errors.New("google.not_configured")
	errGoogleMissingIDToken  = errors.New("google.exchange.missing_id_token")
	errGoogleInvalidIssuer   = errors.New("google.id_token.invalid_issuer")
	errGoogleUnverifiedEmail = errors.New("google.id_token.unverified_identity")
)

// GoogleTokenValidator validates a Google ID token against an audience.
type GoogleTokenValidator interface {
	Validate(ctx context.Context, idToken string, audience string) (*idtoken.Payload, error)
}

// NewGoogleTokenValidator builds the idtoken validator backed by Google's published keys.
func NewGoogleTokenValidator(ctx context.Context) (GoogleTokenValidator, error) {
	return idtoken.NewValidator(ctx)
}

// GoogleConfig configures the authorization-code redirect flow.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Endpoint     oauth2.Endpoint
}

// Enabled reports whether enough configuration is present to run the flow.
func (configuration GoogleConfig) Enabled() bool {
	return strings.TrimSpace(configuration.ClientID) != "" &&
		strings.TrimSpace(configuration.ClientSecret) != "" &&
		strings.TrimSpace(configuration.RedirectURL) != ""
}

// GoogleIdentity is the verified identity returned by a code exchange.
type GoogleIdentity struct {
	Subject string
	Email   string
	Name    string
}

// GoogleProvider drives the OAuth2 redirect flow and verifies the returned id_token.
type GoogleProvider struct {
	oauthConfig *oauth2.Config
	validator   GoogleTokenValidator
}

// NewGoogleProvider returns a provider. A zero Endpoint defaults to Google's.
func NewGoogleProvider(configuration GoogleConfig, validator GoogleTokenValidator) (*GoogleProvider, error) {
	if !configuration.Enabled() || validator == nil {
		return nil, errGoogleNotConfigured
	}
	endpoint := configuration.Endpoint
	if endpoint.AuthURL == "" && endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	return &GoogleProvider{
		oauthConfig: &oauth2.Config{
			ClientID:     configuration.ClientID,
			ClientSecret: configuration.ClientSecret,
			RedirectURL:  configuration.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{"openid", "profile", "email"},
		},
		validator: validator,
	}, nil
}

// AuthCodeURL returns the consent URL carrying state.
func (provider *GoogleProvider) AuthCodeURL(state string) string {
	return provider.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades an authorization code for a verified identity.
func (provider *GoogleProvider) Exchange(ctx context.Context, code string) (GoogleIdentity, error) {
	token, exchangeErr := provider.oauthConfig.Exchange(ctx, code)
	if exchangeErr != nil {
		return GoogleIdentity{}, fmt.Errorf("google.exchange: %w", exchangeErr)
	}
	rawIDToken, _ := token.Extra("id_token").(string)
	if strings.TrimSpace(rawIDToken) == "" {
		return GoogleIdentity{}, errGoogleMissingIDToken
	}
	payload, validateErr := provider.validator.Validate(ctx, rawIDToken, provider.oauthConfig.ClientID)
	if validateErr != nil {
		return GoogleIdentity{}, fmt.Errorf("google.id_token.validate: %w", validateErr)
	}
	issuerValue, _ := payload.Claims["iss"].(string)
	if issuerValue != "https://accounts.google.com" && issuerValue != "accounts.google.com" {
		return GoogleIdentity{}, errGoogleInvalidIssuer
	}
	googleSub, _ := payload.Claims["sub"].(string)
	userEmail, _ := payload.Claims["email"].(string)
	emailVerified, _ := payload.Claims["email_verified"].(bool)
	userDisplayName, _ := payload.Claims["name"].(string)
	if googleSub == "" || userEmail == "" || !emailVerified {
		return GoogleIdentity{}, errGoogleUnverifiedEmail
	}
	return GoogleIdentity{Subject: googleSub, Email: NormalizeEmail(userEmail), Name: userDisplayName}, nil
}
