package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
	"github.com/arklim/rbac-auth-service/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, aggregateID string, at time.Time, fields ...zap.Field) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	base := []zap.Field{
		zap.String("event_type", eventType),
		zap.String("aggregate_id", aggregateID),
		zap.Time("timestamp", at.UTC()),
	}
	p.logger.Info("stub event published", append(base, fields...)...)
}

func (p *StubPublisher) PublishPermissionTreeReconciled(_ context.Context, event domain.PermissionTreeReconciledEvent) error {
	p.logEvent(EventPermissionTreeReconciled, "permission_tree", event.ReconciledAt,
		zap.String("actor_id", event.ActorID),
		zap.Int("created", event.Result.Created),
		zap.Int("reparented", event.Result.Reparented),
		zap.Int("deleted", event.Result.Deleted),
	)
	return nil
}

func (p *StubPublisher) PublishRolePermissionsChanged(_ context.Context, event domain.RolePermissionsChangedEvent) error {
	eventType := EventRolePermissionsGranted
	if event.Replaced {
		eventType = EventRolePermissionsReplaced
	}
	p.logEvent(eventType, event.RoleID, event.ChangedAt,
		zap.String("role_name", event.RoleName),
		zap.Strings("permission_ids", event.PermissionIDs),
		zap.String("changed_by", event.ChangedBy),
	)
	return nil
}

func (p *StubPublisher) PublishUserRolesChanged(_ context.Context, event domain.UserRolesChangedEvent) error {
	if len(event.Added) > 0 {
		p.logEvent(EventUserRolesAssigned, event.UserID, event.ChangedAt, zap.Any("roles_added", event.Added))
	}
	if len(event.Removed) > 0 {
		p.logEvent(EventUserRolesRevoked, event.UserID, event.ChangedAt, zap.Any("roles_removed", event.Removed))
	}
	return nil
}

func (p *StubPublisher) PublishUserLoggedIn(_ context.Context, event domain.UserLoggedInEvent) error {
	p.logEvent(EventUserLoggedIn, event.UserID, event.LoggedInAt,
		zap.String("method", event.Method),
		zap.Strings("roles", event.RoleNames),
	)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
