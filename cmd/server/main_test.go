package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/dualauth/internal/authkit"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"google.golang.org/api/idtoken"
)

func TestZapLoggerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	logger, err := zap.NewProduction()
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	router := gin.New()
	router.Use(zapLoggerMiddleware(logger))
	router.GET("/ping", func(contextGin *gin.Context) {
		contextGin.Status(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", recorder.Code)
	}
}

func TestRunServerMissingConfig(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	err := runServer(&cobra.Command{}, nil)
	if err == nil {
		t.Fatalf("expected configuration error")
	}

	expectedMessage := "config.uninitialized_server_config: server configuration not prepared; PreRunE must execute before RunE"
	if err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, err.Error())
	}
}

func setBaseConfig() {
	viper.Set("listen_addr", ":0")
	viper.Set("jwt_secret", "access-signing-secret")
	viper.Set("jwt_refresh_secret", "refresh-signing-secret")
	viper.Set("access_ttl", 15*time.Minute)
	viper.Set("refresh_ttl", 7*24*time.Hour)
	viper.Set("session_ttl", 24*time.Hour)
	viper.Set("bcrypt_cost", 4)
	viper.Set("rate_limit_enabled", true)
}

func TestLoadServerConfigValidation(t *testing.T) {
	testCases := []struct {
		name            string
		overrides       map[string]any
		expectedMessage string
	}{
		{
			name:            "missing access secret",
			overrides:       map[string]any{"jwt_secret": ""},
			expectedMessage: "config.missing_jwt_secret: jwt_secret must be provided",
		},
		{
			name:            "missing refresh secret",
			overrides:       map[string]any{"jwt_refresh_secret": ""},
			expectedMessage: "config.missing_jwt_refresh_secret: jwt_refresh_secret must be provided",
		},
		{
			name:            "identical secrets",
			overrides:       map[string]any{"jwt_refresh_secret": "access-signing-secret"},
			expectedMessage: "config.identical_jwt_secrets: jwt_secret and jwt_refresh_secret must differ",
		},
		{
			name:            "non-positive access ttl",
			overrides:       map[string]any{"access_ttl": 0},
			expectedMessage: "config.invalid_access_ttl: access_ttl must be greater than zero",
		},
		{
			name:            "non-positive refresh ttl",
			overrides:       map[string]any{"refresh_ttl": -time.Second},
			expectedMessage: "config.invalid_refresh_ttl: refresh_ttl must be greater than zero",
		},
		{
			name:            "refresh shorter than access",
			overrides:       map[string]any{"refresh_ttl": time.Minute},
			expectedMessage: "config.invalid_refresh_ttl: refresh_ttl must not be shorter than access_ttl",
		},
		{
			name:            "non-positive session ttl",
			overrides:       map[string]any{"session_ttl": 0},
			expectedMessage: "config.invalid_session_ttl: session_ttl must be greater than zero",
		},
		{
			name:            "unknown session store",
			overrides:       map[string]any{"session_store": "cassandra"},
			expectedMessage: `config.invalid_session_store: session_store "cassandra" must be one of database, postgres-native, memory`,
		},
		{
			name:            "database session store without url",
			overrides:       map[string]any{"session_store": "database"},
			expectedMessage: "config.missing_database_url: database_url must be provided when session_store is database",
		},
		{
			name:            "bcrypt cost out of range",
			overrides:       map[string]any{"bcrypt_cost": 99},
			expectedMessage: "config.invalid_bcrypt_cost: bcrypt_cost must be between 4 and 31",
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			viper.Reset()
			defer viper.Reset()
			setBaseConfig()
			for key, value := range testCase.overrides {
				viper.Set(key, value)
			}

			_, err := LoadServerConfig()
			if err == nil {
				t.Fatalf("expected configuration error")
			}
			if err.Error() != testCase.expectedMessage {
				t.Fatalf("expected error %q, got %q", testCase.expectedMessage, err.Error())
			}
		})
	}
}

func TestLoadServerConfigSelectsSessionStore(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	setBaseConfig()

	config, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.SessionStore != sessionStoreMemory {
		t.Fatalf("expected memory sessions without database_url, got %q", config.SessionStore)
	}
	if config.Tokens.Issuer != defaultJWTIssuer {
		t.Fatalf("expected default issuer, got %q", config.Tokens.Issuer)
	}

	viper.Set("database_url", "sqlite://file::memory:?cache=shared")
	config, err = LoadServerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.SessionStore != sessionStoreDatabase {
		t.Fatalf("expected database sessions with database_url, got %q", config.SessionStore)
	}

	viper.Set("session_store", "Memory")
	config, err = LoadServerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.SessionStore != sessionStoreMemory {
		t.Fatalf("expected explicit memory sessions, got %q", config.SessionStore)
	}
}

func TestLoadEnvFile(t *testing.T) {
	if err := loadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing env file should be ignored, got %v", err)
	}
	if err := loadEnvFile(""); err != nil {
		t.Fatalf("empty path should be ignored, got %v", err)
	}

	envPath := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(envPath, []byte("APP_DUALAUTH_TEST_MARKER=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("APP_DUALAUTH_TEST_MARKER") })
	if err := loadEnvFile(envPath); err != nil {
		t.Fatalf("load env file: %v", err)
	}
	if value := os.Getenv("APP_DUALAUTH_TEST_MARKER"); value != "from-dotenv" {
		t.Fatalf("expected dotenv value, got %q", value)
	}
}

func commandWithConfig(t *testing.T) *cobra.Command {
	t.Helper()
	config, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("expected configuration load to succeed, got %v", err)
	}
	command := &cobra.Command{}
	command.SetContext(context.WithValue(context.Background(), serverConfigContextKey, config))
	return command
}

func TestRunServerValidatorInitFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	restoreServe := withServeHTTPStub(func(server *http.Server) error {
		return http.ErrServerClosed
	})
	defer restoreServe()

	restoreValidator := withGoogleValidatorBuilderStub(func(ctx context.Context) (authkit.GoogleTokenValidator, error) {
		return nil, errors.New("validator_fail")
	})
	defer restoreValidator()

	setBaseConfig()
	viper.Set("google_client_id", "client")
	viper.Set("google_client_secret", "secret")
	viper.Set("google_redirect_url", "http://localhost:8080/auth/google/callback")

	if err := runServer(commandWithConfig(t), nil); err == nil || err.Error() != "config.google_validator_init: validator_fail" {
		t.Fatalf("expected google validator init error, got %v", err)
	}
}

func TestRunServerDatabaseBacked(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	restoreServe := withServeHTTPStub(func(server *http.Server) error {
		if server.Handler == nil {
			t.Fatalf("expected handler to be configured")
		}
		return http.ErrServerClosed
	})
	defer restoreServe()

	restoreValidator := withGoogleValidatorBuilderStub(func(ctx context.Context) (authkit.GoogleTokenValidator, error) {
		return noopGoogleValidator{}, nil
	})
	defer restoreValidator()

	setBaseConfig()
	viper.Set("cookie_domain", "localhost")
	viper.Set("dev_insecure_http", true)
	viper.Set("database_url", "sqlite://"+filepath.ToSlash(filepath.Join(t.TempDir(), "server.db")))
	viper.Set("enable_cors", true)
	viper.Set("cors_allowed_origins", []string{"http://localhost:3000"})
	viper.Set("google_client_id", "client")
	viper.Set("google_client_secret", "secret")
	viper.Set("google_redirect_url", "http://localhost:8080/auth/google/callback")

	if err := runServer(commandWithConfig(t), nil); err != nil {
		t.Fatalf("expected runServer to succeed, got %v", err)
	}
}

func TestRunServerRejectsUnsafeCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	restoreServe := withServeHTTPStub(func(server *http.Server) error {
		t.Fatalf("server must not start with invalid CORS configuration")
		return nil
	})
	defer restoreServe()

	setBaseConfig()
	viper.Set("enable_cors", true)
	viper.Set("cors_allowed_origins", []string{"*"})

	if err := runServer(commandWithConfig(t), nil); err == nil {
		t.Fatalf("expected wildcard origin to be rejected")
	}
}

func TestRunServerRejectsInvalidTrustedProxies(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	restoreServe := withServeHTTPStub(func(server *http.Server) error {
		t.Fatalf("server must not start with invalid trusted proxies")
		return nil
	})
	defer restoreServe()

	setBaseConfig()
	viper.Set("trusted_proxies", []string{"proxy.internal"})

	err := runServer(commandWithConfig(t), nil)
	if err == nil || !strings.HasPrefix(err.Error(), configCodeInvalidTrustedProxies) {
		t.Fatalf("expected %s error, got %v", configCodeInvalidTrustedProxies, err)
	}
}

func TestRunServerRedisBacked(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	redisServer := miniredis.RunT(t)
	restoreServe := withServeHTTPStub(func(server *http.Server) error {
		return http.ErrServerClosed
	})
	defer restoreServe()

	setBaseConfig()
	viper.Set("redis_url", "redis://"+redisServer.Addr())

	if err := runServer(commandWithConfig(t), nil); err != nil {
		t.Fatalf("expected runServer to succeed with redis, got %v", err)
	}
}

func TestRunServerUnreachableRedis(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	redisServer := miniredis.RunT(t)
	address := redisServer.Addr()
	redisServer.Close()

	setBaseConfig()
	viper.Set("redis_url", "redis://"+address)

	if err := runServer(commandWithConfig(t), nil); err == nil {
		t.Fatalf("expected unreachable redis to fail startup")
	}
}

func TestRunServerServesHealthAndMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	restoreServe := withServeHTTPStub(func(server *http.Server) error {
		health := httptest.NewRecorder()
		server.Handler.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/health", nil))
		if health.Code != http.StatusOK || !strings.Contains(health.Body.String(), `"status":"ok"`) {
			t.Fatalf("unexpected health response %d %s", health.Code, health.Body.String())
		}

		register := httptest.NewRecorder()
		registerRequest := httptest.NewRequest(http.MethodPost, "/auth/jwt/register", strings.NewReader(`{"email":"m@x.com","password":"secret1"}`))
		registerRequest.Header.Set("Content-Type", "application/json")
		server.Handler.ServeHTTP(register, registerRequest)
		if register.Code != http.StatusCreated {
			t.Fatalf("expected 201 from register, got %d %s", register.Code, register.Body.String())
		}

		metrics := httptest.NewRecorder()
		server.Handler.ServeHTTP(metrics, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		if metrics.Code != http.StatusOK {
			t.Fatalf("expected 200 from metrics, got %d", metrics.Code)
		}
		if !strings.Contains(metrics.Body.String(), `dualauth_auth_events_total{event="auth.register.success"} 1`) {
			t.Fatalf("expected register counter in metrics output:\n%s", metrics.Body.String())
		}
		return http.ErrServerClosed
	})
	defer restoreServe()

	setBaseConfig()

	if err := runServer(commandWithConfig(t), nil); err != nil {
		t.Fatalf("expected runServer to succeed with in-memory stores, got %v", err)
	}
}

func TestRunServerPropagatesListenError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	restoreServe := withServeHTTPStub(func(server *http.Server) error {
		return errors.New("address in use")
	})
	defer restoreServe()

	setBaseConfig()

	err := runServer(commandWithConfig(t), nil)
	if err == nil || !strings.Contains(err.Error(), "listen error: address in use") {
		t.Fatalf("expected listen error, got %v", err)
	}
}

func TestRunJanitorRunsTasksUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int64
	failing := janitorTask{name: "failing", purge: func(context.Context) (int64, error) {
		return 0, errors.New("store offline")
	}}
	counting := janitorTask{name: "counting", purge: func(context.Context) (int64, error) {
		if calls.Add(1) >= 2 {
			cancel()
		}
		return 1, nil
	}}

	done := make(chan struct{})
	go func() {
		runJanitor(ctx, time.Millisecond, zaptest.NewLogger(t), failing, counting)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatalf("janitor did not stop after cancellation")
	}
	if calls.Load() < 2 {
		t.Fatalf("expected at least two purge rounds, got %d", calls.Load())
	}
}

func TestNewRootCommandHelp(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"--help"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected help execution to succeed: %v", err)
	}
}

func withServeHTTPStub(stub func(server *http.Server) error) func() {
	previous := serveHTTP
	serveHTTP = stub
	return func() {
		serveHTTP = previous
	}
}

type noopGoogleValidator struct{}

func (noopGoogleValidator) Validate(ctx context.Context, token string, audience string) (*idtoken.Payload, error) {
	return &idtoken.Payload{}, nil
}

func withGoogleValidatorBuilderStub(stub func(ctx context.Context) (authkit.GoogleTokenValidator, error)) func() {
	previous := buildGoogleTokenValidator
	buildGoogleTokenValidator = stub
	return func() {
		buildGoogleTokenValidator = previous
	}
}
