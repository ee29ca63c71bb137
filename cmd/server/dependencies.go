package main

import (
	"context"
	"time"

	"github.com/tyemirov/dualauth/internal/auditbus"
	"github.com/tyemirov/dualauth/internal/authkit"
	"github.com/tyemirov/dualauth/internal/authkitpg"
	"github.com/tyemirov/dualauth/internal/store"
	"go.uber.org/zap"
)

const janitorInterval = 10 * time.Minute

type janitorTask struct {
	name  string
	purge func(ctx context.Context) (int64, error)
}

// dependencies holds the collaborators selected from configuration and their release hooks.
type dependencies struct {
	credentials  authkit.CredentialStore
	audit        authkit.AuditLog
	sessions     authkit.SessionRegistry
	revocations  authkit.RevocationRegistry
	limiter      authkit.RateLimiter
	janitorTasks []janitorTask
	closers      []func()
}

func (deps *dependencies) close() {
	for index := len(deps.closers) - 1; index >= 0; index-- {
		deps.closers[index]()
	}
}

func buildDependencies(ctx context.Context, serverConfig ServerConfig, logger *zap.Logger, clock authkit.Clock) (*dependencies, error) {
	deps := &dependencies{}
	failed := true
	defer func() {
		if failed {
			deps.close()
		}
	}()

	var database *store.Database
	if serverConfig.DatabaseURL != "" {
		opened, openErr := store.Open(ctx, serverConfig.DatabaseURL)
		if openErr != nil {
			return nil, openErr
		}
		database = opened
		deps.closers = append(deps.closers, func() { _ = opened.Close() })
		deps.credentials = store.NewCredentialStore(database, clock)
		deps.audit = store.NewAuditLog(database, clock)
		logger.Info("using database credential store", zap.String("driver", database.Driver()))
	} else {
		memoryCredentials := authkit.NewMemoryCredentialStore(clock)
		deps.credentials = memoryCredentials
		deps.audit = authkit.NewMemoryAuditLog(memoryCredentials, clock)
		logger.Info("using in-memory credential store")
	}

	switch serverConfig.SessionStore {
	case sessionStoreDatabase:
		registry := store.NewSessionRegistry(database, clock)
		deps.sessions = registry
		deps.janitorTasks = append(deps.janitorTasks, janitorTask{name: "sessions", purge: registry.PurgeExpired})
	case sessionStorePostgresNative:
		pool, poolErr := authkitpg.BuildPool(ctx, serverConfig.DatabaseURL)
		if poolErr != nil {
			return nil, poolErr
		}
		deps.closers = append(deps.closers, pool.Close)
		if err := authkitpg.EnsureSchema(ctx, pool); err != nil {
			return nil, err
		}
		registry := authkitpg.NewPostgresSessionRegistry(pool, clock)
		deps.sessions = registry
		deps.janitorTasks = append(deps.janitorTasks, janitorTask{name: "sessions", purge: registry.PurgeExpired})
	default:
		deps.sessions = authkit.NewMemorySessionRegistry(clock)
	}
	logger.Info("session registry selected", zap.String("session_store", serverConfig.SessionStore))

	if serverConfig.RedisURL != "" {
		client, clientErr := authkit.NewRedisClient(ctx, serverConfig.RedisURL)
		if clientErr != nil {
			return nil, clientErr
		}
		deps.closers = append(deps.closers, func() { _ = client.Close() })
		deps.revocations = authkit.NewRedisRevocationRegistry(client, clock)
		deps.limiter = authkit.NewRedisRateLimiter(client)
		logger.Info("using redis revocation registry and rate limiter")
	} else {
		deps.revocations = authkit.NewMemoryRevocationRegistry(clock)
		memoryLimiter := authkit.NewMemoryRateLimiter(clock)
		deps.limiter = memoryLimiter
		deps.janitorTasks = append(deps.janitorTasks, janitorTask{name: "rate_limits", purge: func(context.Context) (int64, error) {
			memoryLimiter.Purge()
			return 0, nil
		}})
		logger.Info("using in-process revocation registry and rate limiter")
	}

	if serverConfig.AMQPURL != "" {
		publisher, dialErr := auditbus.Dial(serverConfig.AMQPURL, serverConfig.AuditQueue)
		if dialErr != nil {
			return nil, dialErr
		}
		deps.closers = append(deps.closers, func() { _ = publisher.Close() })
		deps.audit = auditbus.NewFanoutAuditLog(deps.audit, publisher, logger, clock)
		logger.Info("publishing audit events", zap.String("queue", publisher.Queue()))
	}

	failed = false
	return deps, nil
}

// runJanitor runs every task each interval until ctx is cancelled.
func runJanitor(ctx context.Context, interval time.Duration, logger *zap.Logger, tasks ...janitorTask) {
	if len(tasks) == 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, task := range tasks {
				purged, err := task.purge(ctx)
				if err != nil {
					logger.Warn("janitor task failed", zap.String("code", "janitor.purge_failed"), zap.String("task", task.name), zap.Error(err))
					continue
				}
				if purged > 0 {
					logger.Debug("janitor purged records", zap.String("task", task.name), zap.Int64("purged", purged))
				}
			}
		}
	}
}
