package auditbus

import (
	"context"
	"time"

	"github.com/tyemirov/dualauth/internal/authkit"
	"go.uber.org/zap"
)

const publishTimeout = 2 * time.Second

// EventPublisher sends audit events to the bus.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// FanoutAuditLog writes to a primary audit log and then publishes the entry.
// Publish failures are logged and never fail the audited operation.
type FanoutAuditLog struct {
	primary   authkit.AuditLog
	publisher EventPublisher
	logger    *zap.Logger
	clock     authkit.Clock
}

// NewFanoutAuditLog wraps primary. Nil logger and clock fall back to no-op and wall clock.
func NewFanoutAuditLog(primary authkit.AuditLog, publisher EventPublisher, logger *zap.Logger, clock authkit.Clock) *FanoutAuditLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = authkit.SystemClock{}
	}
	return &FanoutAuditLog{primary: primary, publisher: publisher, logger: logger, clock: clock}
}

func (auditLog *FanoutAuditLog) Append(ctx context.Context, actorID *int64, action string, details map[string]any) error {
	if err := auditLog.primary.Append(ctx, actorID, action, details); err != nil {
		return err
	}
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	event := Event{UserID: actorID, Action: action, Details: details, OccurredAt: auditLog.clock.Now().UTC()}
	if err := auditLog.publisher.Publish(publishCtx, event); err != nil {
		auditLog.logger.Warn("audit publish failed", zap.String("code", "audit.publish_failed"), zap.String("action", action), zap.Error(err))
	}
	return nil
}

func (auditLog *FanoutAuditLog) List(ctx context.Context, filter authkit.AuditFilter) ([]authkit.AuditEntry, int64, error) {
	return auditLog.primary.List(ctx, filter)
}
