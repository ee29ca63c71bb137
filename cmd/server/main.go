package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/dualauth/internal/authkit"
	"github.com/tyemirov/dualauth/internal/web"
	"go.uber.org/zap"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

var buildGoogleTokenValidator = func(ctx context.Context) (authkit.GoogleTokenValidator, error) {
	return authkit.NewGoogleTokenValidator(ctx)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "dualauth",
		Short:   "Authentication service with cookie sessions, rotating JWT pairs, and Google sign-in",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	rootCmd.Flags().String("env_file", ".env", "Optional dotenv file loaded before reading configuration")
	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("database_url", "", "Database URL (postgres:// or sqlite://); empty keeps users, audit, and sessions in memory")
	rootCmd.Flags().String("redis_url", "", "Redis URL for the revocation registry and rate limiter; empty keeps them in process")
	rootCmd.Flags().String("jwt_secret", "", "HS256 secret for access tokens")
	rootCmd.Flags().String("jwt_refresh_secret", "", "HS256 secret for refresh tokens")
	rootCmd.Flags().String("jwt_issuer", defaultJWTIssuer, "Issuer claim for minted tokens")
	rootCmd.Flags().Duration("access_ttl", 15*time.Minute, "Access token TTL")
	rootCmd.Flags().Duration("refresh_ttl", 7*24*time.Hour, "Refresh token TTL")
	rootCmd.Flags().Duration("session_ttl", 24*time.Hour, "Cookie session TTL")
	rootCmd.Flags().String("session_store", "", "Session backend: database, postgres-native, or memory (default follows database_url)")
	rootCmd.Flags().String("cookie_domain", "", "Cookie domain; empty for host-only")
	rootCmd.Flags().Bool("dev_insecure_http", false, "Allow insecure HTTP cookies for local dev")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for cross-origin clients (required to set SameSite=None cookies)")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled (required if enable_cors is true)")
	rootCmd.Flags().String("google_client_id", "", "Google OAuth client ID; empty disables Google sign-in")
	rootCmd.Flags().String("google_client_secret", "", "Google OAuth client secret")
	rootCmd.Flags().String("google_redirect_url", "", "Google OAuth redirect URL ending in /auth/google/callback")
	rootCmd.Flags().String("frontend_url", "", "Frontend base URL for post-login redirects")
	rootCmd.Flags().String("amqp_url", "", "RabbitMQ URL for audit fan-out; empty disables publishing")
	rootCmd.Flags().String("audit_queue", "dualauth.audit", "RabbitMQ queue receiving audit events")
	rootCmd.Flags().Int("bcrypt_cost", authkit.DefaultBcryptCost, "bcrypt cost for new password hashes")
	rootCmd.Flags().Bool("rate_limit_enabled", true, "Enforce per-client rate limits")
	rootCmd.Flags().StringSlice("trusted_proxies", []string{}, "Proxy IPs or CIDRs allowed to set X-Forwarded-For; empty keys clients by socket address")

	for _, flagName := range []string{
		"env_file", "listen_addr", "database_url", "redis_url", "jwt_secret", "jwt_refresh_secret", "jwt_issuer",
		"access_ttl", "refresh_ttl", "session_ttl", "session_store", "cookie_domain", "dev_insecure_http",
		"enable_cors", "cors_allowed_origins", "google_client_id", "google_client_secret", "google_redirect_url",
		"frontend_url", "amqp_url", "audit_queue", "bcrypt_cost", "rate_limit_enabled", "trusted_proxies",
	} {
		_ = viper.BindPFlag(flagName, rootCmd.Flags().Lookup(flagName))
	}

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	if err := loadEnvFile(viper.GetString("env_file")); err != nil {
		return err
	}
	serverConfig, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, serverConfig))
	return nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	serverConfig, ok := contextValue.(ServerConfig)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}

	backgroundCtx, cancelBackground := context.WithCancel(commandContext)
	defer cancelBackground()

	metricsRegistry := prometheus.NewRegistry()
	metricsRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metricsRecorder, metricsErr := authkit.NewPrometheusMetrics(metricsRegistry)
	if metricsErr != nil {
		return metricsErr
	}

	clock := authkit.SystemClock{}
	dependencies, buildErr := buildDependencies(backgroundCtx, serverConfig, logger, clock)
	if buildErr != nil {
		return buildErr
	}
	defer dependencies.close()

	issuer, issuerErr := authkit.NewIssuer(serverConfig.Tokens, clock)
	if issuerErr != nil {
		return issuerErr
	}
	verifier, verifierErr := authkit.NewVerifier(serverConfig.Tokens, dependencies.revocations, clock)
	if verifierErr != nil {
		return verifierErr
	}
	service, serviceErr := authkit.NewService(authkit.ServiceConfig{
		Credentials: dependencies.credentials,
		Audit:       dependencies.audit,
		Passwords:   authkit.NewBcryptHasher(serverConfig.BcryptCost),
		Issuer:      issuer,
		Verifier:    verifier,
		Revocations: dependencies.revocations,
		Sessions:    dependencies.sessions,
		SessionTTL:  serverConfig.SessionTTL,
		Metrics:     metricsRecorder,
		Logger:      logger,
		Clock:       clock,
	})
	if serviceErr != nil {
		return serviceErr
	}

	var googleProvider *authkit.GoogleProvider
	if serverConfig.Google.Enabled() {
		validator, validatorErr := buildGoogleTokenValidator(commandContext)
		if validatorErr != nil {
			return fmt.Errorf("%s: %w", configCodeGoogleValidatorInit, validatorErr)
		}
		provider, providerErr := authkit.NewGoogleProvider(serverConfig.Google, validator)
		if providerErr != nil {
			return fmt.Errorf("%s: %w", configCodeGoogleValidatorInit, providerErr)
		}
		googleProvider = provider
	} else {
		logger.Info("google sign-in disabled", zap.String("code", "google.disabled"))
	}

	cookieSettings := web.CookieSettings{
		Domain:        serverConfig.CookieDomain,
		SameSite:      http.SameSiteLaxMode,
		AllowInsecure: serverConfig.AllowInsecureHTTP,
	}
	if serverConfig.EnableCORS {
		cookieSettings.SameSite = http.SameSiteNoneMode
	}

	var limiter authkit.RateLimiter
	if serverConfig.RateLimitEnabled {
		limiter = dependencies.limiter
	}

	api, apiErr := web.NewAPI(web.APIConfig{
		Service:        service,
		Limiter:        limiter,
		Google:         googleProvider,
		Cookies:        cookieSettings,
		FrontendURL:    serverConfig.FrontendURL,
		Metrics:        metricsRecorder,
		MetricsHandler: promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{}),
		Logger:         logger,
		Clock:          clock,
	})
	if apiErr != nil {
		return apiErr
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	if err := web.ConfigureTrustedProxies(router, serverConfig.TrustedProxies); err != nil {
		return configError(configCodeInvalidTrustedProxies, err.Error())
	}
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if serverConfig.EnableCORS {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, serverConfig.CORSAllowedOrigins, cookieSettings)
		if corsErr != nil {
			return corsErr
		}
		router.Use(corsMiddleware)
	}

	api.Mount(router)

	go runJanitor(backgroundCtx, janitorInterval, logger, dependencies.janitorTasks...)

	server := &http.Server{
		Addr:              serverConfig.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(stopSignals)
		select {
		case <-stopSignals:
		case <-backgroundCtx.Done():
			return
		}
		graceCtx, graceCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", serverConfig.ListenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
