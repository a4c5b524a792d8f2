package port

import (
	"context"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
)

// PermissionRepository manages the permission tree.
type PermissionRepository interface {
	Create(ctx context.Context, permission domain.Permission) error
	GetByID(ctx context.Context, id string) (*domain.Permission, error)
	List(ctx context.Context) ([]domain.Permission, error)
	ListByIDs(ctx context.Context, ids []string) ([]domain.Permission, error)
	Update(ctx context.Context, permission domain.Permission) error
	UpdateParent(ctx context.Context, id string, parentID *string) error
	Delete(ctx context.Context, id string) error
	DeleteByIDs(ctx context.Context, ids []string) (int, error)
	// ListMenuByUser returns DISTINCT (permission, role name) rows reachable through the user's roles.
	ListMenuByUser(ctx context.Context, userID string) ([]domain.MenuEntry, error)
	// ListSummariesByUser returns each reachable permission once.
	ListSummariesByUser(ctx context.Context, userID string) ([]domain.PermissionSummary, error)
}
