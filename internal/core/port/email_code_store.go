package port

import (
	"context"
	"time"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
)

// EmailCodeStore caches one-time email codes. Saving overwrites any previous code for the address.
type EmailCodeStore interface {
	Save(ctx context.Context, code domain.EmailCode, ttl time.Duration) error
	Get(ctx context.Context, email string) (*domain.EmailCode, error)
	Delete(ctx context.Context, email string) error
}
