package port

import (
	"context"
	"time"
)

// TokenRevocationStore caches revoked access-token identifiers until the tokens expire.
type TokenRevocationStore interface {
	MarkRevoked(ctx context.Context, jti string, reason string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, string, error)
}
