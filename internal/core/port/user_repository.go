package port

import (
	"context"
	"time"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
)

// UserRepository exposes persistence behavior for users and their role assignments.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, user domain.User) error
	UpdatePassword(ctx context.Context, id string, passwordHash string) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter domain.Filter, page domain.Page) (domain.PageResult[domain.UserWithRoles], error)

	AssignRoles(ctx context.Context, userID string, roleIDs []string, at time.Time) error
	RevokeRoles(ctx context.Context, userID string, roleIDs []string) error
}
