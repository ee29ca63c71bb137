package tokenvalidator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// Now returns the current UTC timestamp.
func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// RevocationChecker reports whether a token identifier has been revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Purpose distinguishes access tokens from refresh tokens.
type Purpose string

const (
	PurposeAccess  Purpose = "access"
	PurposeRefresh Purpose = "refresh"
)

// Config configures the Validator.
type Config struct {
	SigningKey  []byte
	Issuer      string
	Purpose     Purpose
	Clock       Clock
	Revocations RevocationChecker
}

// DefaultContextKey is used by GinMiddleware when no explicit key is provided.
const DefaultContextKey = "auth_claims"

// Sentinel errors exposed by the validator.
var (
	ErrMissingSigningKey   = errors.New("token.validator.missing_signing_key")
	ErrMissingIssuer       = errors.New("token.validator.missing_issuer")
	ErrUnknownPurpose      = errors.New("token.validator.unknown_purpose")
	ErrMissingToken        = errors.New("token.validator.missing_token")
	ErrInvalidToken        = errors.New("token.validator.invalid_token")
	ErrRevocationLookup    = errors.New("token.validator.revocation_lookup")
	errMissingBearerHeader = errors.New("token.validator.missing_bearer")
)

// Validator validates signed access or refresh tokens of a single purpose.
type Validator struct {
	signingKey  []byte
	issuer      string
	purpose     Purpose
	clock       Clock
	revocations RevocationChecker
}

// Claims is the payload carried by every token: {id, email, role, purpose, jti} plus registered claims.
type Claims struct {
	UserID  int64   `json:"id"`
	Email   string  `json:"email"`
	Role    string  `json:"role"`
	Purpose Purpose `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenID returns the jti claim.
func (claims *Claims) TokenID() string {
	if claims == nil {
		return ""
	}
	return claims.ID
}

// GetExpiresAt returns the expiry timestamp.
func (claims *Claims) GetExpiresAt() time.Time {
	if claims == nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// New constructs a Validator after validating the supplied configuration.
func New(configuration Config) (*Validator, error) {
	if len(configuration.SigningKey) == 0 {
		return nil, fmt.Errorf("token.validator.new: %w", ErrMissingSigningKey)
	}
	if strings.TrimSpace(configuration.Issuer) == "" {
		return nil, fmt.Errorf("token.validator.new: %w", ErrMissingIssuer)
	}
	switch configuration.Purpose {
	case PurposeAccess, PurposeRefresh:
	default:
		return nil, fmt.Errorf("token.validator.new: %w", ErrUnknownPurpose)
	}
	clock := configuration.Clock
	if clock == nil {
		clock = systemClock{}
	}
	return &Validator{
		signingKey:  configuration.SigningKey,
		issuer:      configuration.Issuer,
		purpose:     configuration.Purpose,
		clock:       clock,
		revocations: configuration.Revocations,
	}, nil
}

// ValidateToken checks signature, issuer, purpose, expiry, and revocation state.
// Every token-level failure is reported as ErrInvalidToken. A failing revocation
// lookup is reported as ErrInvalidToken joined with ErrRevocationLookup.
func (validator *Validator) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	claims, parseErr := validator.parse(tokenString, true)
	if parseErr != nil {
		return nil, fmt.Errorf("token.validator.validate_token: %w", parseErr)
	}
	if validator.revocations == nil {
		return claims, nil
	}
	revoked, lookupErr := validator.revocations.IsRevoked(ctx, claims.ID)
	if lookupErr != nil {
		return nil, fmt.Errorf("token.validator.validate_token: %w", errors.Join(ErrInvalidToken, ErrRevocationLookup, lookupErr))
	}
	if revoked {
		return nil, fmt.Errorf("token.validator.validate_token: %w", ErrInvalidToken)
	}
	return claims, nil
}

// DecodeToken checks signature, issuer, and purpose only. Expired and revoked
// tokens decode successfully.
func (validator *Validator) DecodeToken(tokenString string) (*Claims, error) {
	claims, parseErr := validator.parse(tokenString, false)
	if parseErr != nil {
		return nil, fmt.Errorf("token.validator.decode_token: %w", parseErr)
	}
	return claims, nil
}

func (validator *Validator) parse(tokenString string, enforceTime bool) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, ErrMissingToken
	}
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(validator.issuer),
	}
	if enforceTime {
		parserOptions = append(parserOptions, jwt.WithExpirationRequired(), jwt.WithTimeFunc(func() time.Time {
			return validator.clock.Now()
		}))
	} else {
		parserOptions = append(parserOptions, jwt.WithoutClaimsValidation())
	}
	parsedToken, parseErr := jwt.ParseWithClaims(tokenString, &Claims{}, func(parsed *jwt.Token) (interface{}, error) {
		return validator.signingKey, nil
	}, parserOptions...)
	if parseErr != nil || parsedToken == nil || !parsedToken.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := parsedToken.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	if !enforceTime && claims.Issuer != validator.issuer {
		return nil, ErrInvalidToken
	}
	if claims.Purpose != validator.purpose || strings.TrimSpace(claims.ID) == "" || claims.UserID <= 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(request *http.Request) (string, error) {
	if request == nil {
		return "", errMissingBearerHeader
	}
	header := request.Header.Get("Authorization")
	if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return "", errMissingBearerHeader
	}
	token := strings.TrimSpace(header[len("Bearer "):])
	if token == "" {
		return "", errMissingBearerHeader
	}
	return token, nil
}

// ValidateRequest reads the bearer token from the request and validates it.
func (validator *Validator) ValidateRequest(request *http.Request) (*Claims, error) {
	token, headerErr := BearerToken(request)
	if headerErr != nil {
		return nil, fmt.Errorf("token.validator.validate_request: %w", ErrMissingToken)
	}
	requestContext := context.Background()
	if request != nil {
		requestContext = request.Context()
	}
	return validator.ValidateToken(requestContext, token)
}

// GinMiddleware returns a Gin middleware that validates the bearer token and injects claims.
func (validator *Validator) GinMiddleware(contextKey string) gin.HandlerFunc {
	if strings.TrimSpace(contextKey) == "" {
		contextKey = DefaultContextKey
	}
	return func(contextGin *gin.Context) {
		claims, err := validator.ValidateRequest(contextGin.Request)
		if err != nil {
			if errors.Is(err, ErrMissingToken) {
				contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Access token required"})
				return
			}
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		contextGin.Set(contextKey, claims)
		contextGin.Next()
	}
}
