package port

import (
	"context"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
)

// RoleRepository handles role CRUD and role-permission grants.
type RoleRepository interface {
	Create(ctx context.Context, role domain.Role) error
	GetByID(ctx context.Context, id string) (*domain.Role, error)
	GetByName(ctx context.Context, name string) (*domain.Role, error)
	List(ctx context.Context, filter domain.Filter, page domain.Page) (domain.PageResult[domain.Role], error)
	ListByIDs(ctx context.Context, ids []string) ([]domain.Role, error)
	Update(ctx context.Context, role domain.Role) error
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string) ([]domain.Role, error)

	GrantPermission(ctx context.Context, grant domain.RolePermission) error
	ReplacePermissions(ctx context.Context, roleID string, grants []domain.RolePermission) error
	ListPermissions(ctx context.Context, roleID string) ([]domain.RolePermission, error)
}
