package port

import (
	"context"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishPermissionTreeReconciled(ctx context.Context, event domain.PermissionTreeReconciledEvent) error
	PublishRolePermissionsChanged(ctx context.Context, event domain.RolePermissionsChangedEvent) error
	PublishUserRolesChanged(ctx context.Context, event domain.UserRolesChangedEvent) error
	PublishUserLoggedIn(ctx context.Context, event domain.UserLoggedInEvent) error
}
