package port

import (
	"context"
	"time"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
)

// TokenRepository persists refresh tokens. A revoked record is blacklisted.
type TokenRepository interface {
	CreateRefreshToken(ctx context.Context, token domain.RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, hash string) (*domain.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id string, reason string, at time.Time) error
	RevokeRefreshTokensForUser(ctx context.Context, userID string, reason string, at time.Time) (int, error)
}
