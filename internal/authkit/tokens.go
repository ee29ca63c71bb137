package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tyemirov/dualauth/pkg/tokenvalidator"
)

// TokenClaims are the decoded payload of an access or refresh token.
type TokenClaims = tokenvalidator.Claims

// TokenPurpose names a token class.
type TokenPurpose = tokenvalidator.Purpose

const (
	PurposeAccess  = tokenvalidator.PurposeAccess
	PurposeRefresh = tokenvalidator.PurposeRefresh
)

var (
	errEmptyTokenSecret      = errors.New("jwt.config.empty_secret")
	errIdenticalSecrets      = errors.New("jwt.config.identical_secrets")
	errNonPositiveTokenTTL   = errors.New("jwt.config.non_positive_ttl")
	errInvalidTokenSubject   = errors.New("jwt.mint.invalid_subject")
	errAccessOutlivesRefresh = errors.New("jwt.config.access_outlives_refresh")
)

// TokenConfig configures both token classes.
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// TokenPair is the result of one issuance.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

func (configuration TokenConfig) validate() error {
	if len(configuration.AccessSecret) == 0 || len(configuration.RefreshSecret) == 0 {
		return errEmptyTokenSecret
	}
	if string(configuration.AccessSecret) == string(configuration.RefreshSecret) {
		return errIdenticalSecrets
	}
	if configuration.AccessTTL <= 0 || configuration.RefreshTTL <= 0 {
		return errNonPositiveTokenTTL
	}
	if configuration.AccessTTL >= configuration.RefreshTTL {
		return errAccessOutlivesRefresh
	}
	return nil
}

// Issuer mints signed access/refresh token pairs.
type Issuer struct {
	configuration TokenConfig
	clock         Clock
	newTokenID    func() string
}

// NewIssuer validates configuration and returns an Issuer.
func NewIssuer(configuration TokenConfig, clock Clock) (*Issuer, error) {
	if err := configuration.validate(); err != nil {
		return nil, fmt.Errorf("jwt.issuer.new: %w", err)
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Issuer{configuration: configuration, clock: clock, newTokenID: uuid.NewString}, nil
}

// Issue mints a fresh pair for profile. Each token carries its own jti.
func (issuer *Issuer) Issue(profile Profile) (TokenPair, error) {
	if profile.ID <= 0 || strings.TrimSpace(profile.Email) == "" {
		return TokenPair{}, fmt.Errorf("jwt.issue: %w", errInvalidTokenSubject)
	}
	issuedAt := issuer.clock.Now().UTC()
	accessToken, accessExpiresAt, accessErr := issuer.mint(profile, PurposeAccess, issuer.configuration.AccessSecret, issuedAt, issuer.configuration.AccessTTL)
	if accessErr != nil {
		return TokenPair{}, accessErr
	}
	refreshToken, refreshExpiresAt, refreshErr := issuer.mint(profile, PurposeRefresh, issuer.configuration.RefreshSecret, issuedAt, issuer.configuration.RefreshTTL)
	if refreshErr != nil {
		return TokenPair{}, refreshErr
	}
	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}

func (issuer *Issuer) mint(profile Profile, purpose TokenPurpose, secret []byte, issuedAt time.Time, ttl time.Duration) (string, time.Time, error) {
	expiresAt := issuedAt.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, TokenClaims{
		UserID:  profile.ID,
		Email:   profile.Email,
		Role:    string(profile.Role),
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        issuer.newTokenID(),
			Issuer:    issuer.configuration.Issuer,
			Subject:   fmt.Sprintf("%d", profile.ID),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("jwt.mint.%s: %w", purpose, err)
	}
	return signed, expiresAt, nil
}

// Verifier validates tokens of either class against its own secret and the revocation registry.
type Verifier struct {
	access  *tokenvalidator.Validator
	refresh *tokenvalidator.Validator
}

// NewVerifier builds per-class validators sharing one revocation registry.
func NewVerifier(configuration TokenConfig, revocations RevocationRegistry, clock Clock) (*Verifier, error) {
	if err := configuration.validate(); err != nil {
		return nil, fmt.Errorf("jwt.verifier.new: %w", err)
	}
	if clock == nil {
		clock = SystemClock{}
	}
	accessValidator, accessErr := tokenvalidator.New(tokenvalidator.Config{
		SigningKey:  configuration.AccessSecret,
		Issuer:      configuration.Issuer,
		Purpose:     PurposeAccess,
		Clock:       clock,
		Revocations: revocations,
	})
	if accessErr != nil {
		return nil, fmt.Errorf("jwt.verifier.new: %w", accessErr)
	}
	refreshValidator, refreshErr := tokenvalidator.New(tokenvalidator.Config{
		SigningKey:  configuration.RefreshSecret,
		Issuer:      configuration.Issuer,
		Purpose:     PurposeRefresh,
		Clock:       clock,
		Revocations: revocations,
	})
	if refreshErr != nil {
		return nil, fmt.Errorf("jwt.verifier.new: %w", refreshErr)
	}
	return &Verifier{access: accessValidator, refresh: refreshValidator}, nil
}

// Verify returns the decoded claims or ErrInvalidToken. A revocation registry
// outage additionally matches ErrRevocationUnavailable.
func (verifier *Verifier) Verify(ctx context.Context, token string, purpose TokenPurpose) (*TokenClaims, error) {
	validator, selectErr := verifier.validatorFor(purpose)
	if selectErr != nil {
		return nil, selectErr
	}
	claims, err := validator.ValidateToken(ctx, token)
	if err != nil {
		if errors.Is(err, tokenvalidator.ErrRevocationLookup) {
			return nil, errors.Join(ErrInvalidToken, ErrRevocationUnavailable, err)
		}
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Decode checks signature, issuer, and class only. Expired and revoked tokens decode.
func (verifier *Verifier) Decode(token string, purpose TokenPurpose) (*TokenClaims, error) {
	validator, selectErr := verifier.validatorFor(purpose)
	if selectErr != nil {
		return nil, selectErr
	}
	claims, err := validator.DecodeToken(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (verifier *Verifier) validatorFor(purpose TokenPurpose) (*tokenvalidator.Validator, error) {
	switch purpose {
	case PurposeAccess:
		return verifier.access, nil
	case PurposeRefresh:
		return verifier.refresh, nil
	default:
		return nil, ErrInvalidToken
	}
}

// ProfileFromClaims rebuilds the identity snapshot carried by a token.
func ProfileFromClaims(claims *TokenClaims) (Profile, error) {
	if claims == nil {
		return Profile{}, ErrInvalidToken
	}
	role, roleErr := ParseRoleName(claims.Role)
	if roleErr != nil {
		return Profile{}, ErrInvalidToken
	}
	return Profile{ID: claims.UserID, Email: claims.Email, Role: role}, nil
}
