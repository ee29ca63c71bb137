package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/tyemirov/dualauth/internal/authkit"
	"golang.org/x/crypto/bcrypt"
)

const (
	sessionStoreAuto           = ""
	sessionStoreDatabase       = "database"
	sessionStorePostgresNative = "postgres-native"
	sessionStoreMemory         = "memory"

	defaultJWTIssuer = "dualauth"

	configCodeMissingJWTSecret        = "config.missing_jwt_secret"
	configCodeMissingJWTRefreshSecret = "config.missing_jwt_refresh_secret"
	configCodeIdenticalJWTSecrets     = "config.identical_jwt_secrets"
	configCodeInvalidAccessTTL        = "config.invalid_access_ttl"
	configCodeInvalidRefreshTTL       = "config.invalid_refresh_ttl"
	configCodeInvalidSessionTTL       = "config.invalid_session_ttl"
	configCodeMissingDatabaseURL      = "config.missing_database_url"
	configCodeInvalidSessionStore     = "config.invalid_session_store"
	configCodeInvalidBcryptCost       = "config.invalid_bcrypt_cost"
	configCodeEnvFile                 = "config.env_file"
	configCodeUninitializedServerConf = "config.uninitialized_server_config"
	configCodeGoogleValidatorInit     = "config.google_validator_init"
	configCodeInvalidTrustedProxies   = "config.invalid_trusted_proxies"
)

// ServerConfig is the validated process configuration.
type ServerConfig struct {
	ListenAddr         string
	DatabaseURL        string
	RedisURL           string
	SessionStore       string
	Tokens             authkit.TokenConfig
	SessionTTL         time.Duration
	CookieDomain       string
	AllowInsecureHTTP  bool
	EnableCORS         bool
	CORSAllowedOrigins []string
	Google             authkit.GoogleConfig
	FrontendURL        string
	AMQPURL            string
	AuditQueue         string
	BcryptCost         int
	RateLimitEnabled   bool
	TrustedProxies     []string
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// loadEnvFile populates the process environment from path. A missing file is not an error.
func loadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return configError(configCodeEnvFile, err.Error())
	}
	return nil
}

func LoadServerConfig() (ServerConfig, error) {
	jwtSecret := viper.GetString("jwt_secret")
	if jwtSecret == "" {
		return ServerConfig{}, configError(configCodeMissingJWTSecret, "jwt_secret must be provided")
	}
	jwtRefreshSecret := viper.GetString("jwt_refresh_secret")
	if jwtRefreshSecret == "" {
		return ServerConfig{}, configError(configCodeMissingJWTRefreshSecret, "jwt_refresh_secret must be provided")
	}
	if jwtSecret == jwtRefreshSecret {
		return ServerConfig{}, configError(configCodeIdenticalJWTSecrets, "jwt_secret and jwt_refresh_secret must differ")
	}

	accessTTL := viper.GetDuration("access_ttl")
	if accessTTL <= 0 {
		return ServerConfig{}, configError(configCodeInvalidAccessTTL, "access_ttl must be greater than zero")
	}
	refreshTTL := viper.GetDuration("refresh_ttl")
	if refreshTTL <= 0 {
		return ServerConfig{}, configError(configCodeInvalidRefreshTTL, "refresh_ttl must be greater than zero")
	}
	if refreshTTL < accessTTL {
		return ServerConfig{}, configError(configCodeInvalidRefreshTTL, "refresh_ttl must not be shorter than access_ttl")
	}
	sessionTTL := viper.GetDuration("session_ttl")
	if sessionTTL <= 0 {
		return ServerConfig{}, configError(configCodeInvalidSessionTTL, "session_ttl must be greater than zero")
	}

	databaseURL := strings.TrimSpace(viper.GetString("database_url"))
	sessionStore := strings.ToLower(strings.TrimSpace(viper.GetString("session_store")))
	switch sessionStore {
	case sessionStoreAuto:
		sessionStore = sessionStoreMemory
		if databaseURL != "" {
			sessionStore = sessionStoreDatabase
		}
	case sessionStoreMemory:
	case sessionStoreDatabase, sessionStorePostgresNative:
		if databaseURL == "" {
			return ServerConfig{}, configError(configCodeMissingDatabaseURL, fmt.Sprintf("database_url must be provided when session_store is %s", sessionStore))
		}
	default:
		return ServerConfig{}, configError(configCodeInvalidSessionStore, fmt.Sprintf("session_store %q must be one of database, postgres-native, memory", sessionStore))
	}

	bcryptCost := viper.GetInt("bcrypt_cost")
	if bcryptCost == 0 {
		bcryptCost = authkit.DefaultBcryptCost
	}
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		return ServerConfig{}, configError(configCodeInvalidBcryptCost, fmt.Sprintf("bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}

	issuer := viper.GetString("jwt_issuer")
	if strings.TrimSpace(issuer) == "" {
		issuer = defaultJWTIssuer
	}

	return ServerConfig{
		ListenAddr:   viper.GetString("listen_addr"),
		DatabaseURL:  databaseURL,
		RedisURL:     strings.TrimSpace(viper.GetString("redis_url")),
		SessionStore: sessionStore,
		Tokens: authkit.TokenConfig{
			AccessSecret:  []byte(jwtSecret),
			RefreshSecret: []byte(jwtRefreshSecret),
			Issuer:        issuer,
			AccessTTL:     accessTTL,
			RefreshTTL:    refreshTTL,
		},
		SessionTTL:         sessionTTL,
		CookieDomain:       viper.GetString("cookie_domain"),
		AllowInsecureHTTP:  viper.GetBool("dev_insecure_http"),
		EnableCORS:         viper.GetBool("enable_cors"),
		CORSAllowedOrigins: viper.GetStringSlice("cors_allowed_origins"),
		Google: authkit.GoogleConfig{
			ClientID:     viper.GetString("google_client_id"),
			ClientSecret: viper.GetString("google_client_secret"),
			RedirectURL:  viper.GetString("google_redirect_url"),
		},
		FrontendURL:      viper.GetString("frontend_url"),
		AMQPURL:          strings.TrimSpace(viper.GetString("amqp_url")),
		AuditQueue:       viper.GetString("audit_queue"),
		BcryptCost:       bcryptCost,
		RateLimitEnabled: viper.GetBool("rate_limit_enabled"),
		TrustedProxies:   viper.GetStringSlice("trusted_proxies"),
	}, nil
}
