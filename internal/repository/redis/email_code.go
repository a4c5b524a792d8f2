package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
	"github.com/arklim/rbac-auth-service/internal/core/port"
	"github.com/arklim/rbac-auth-service/internal/repository"
)

const (
	defaultEmailCodePrefix = "email_code"

	fieldCode      = "code"
	fieldCreatedAt = "created_at"
)

// EmailCodeRepository caches one-time email codes as Redis hashes keyed by address.
type EmailCodeRepository struct {
	client *red.Client
	prefix string
}

// NewEmailCodeRepository constructs a repository with the provided client and key prefix.
func NewEmailCodeRepository(client *red.Client, keyPrefix string) *EmailCodeRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultEmailCodePrefix
	}
	return &EmailCodeRepository{client: client, prefix: prefix}
}

// Save overwrites the code for the address and resets its TTL.
func (r *EmailCodeRepository) Save(ctx context.Context, code domain.EmailCode, ttl time.Duration) error {
	key := r.key(code.Email)
	switch {
	case key == "":
		return errors.New("email is required")
	case strings.TrimSpace(code.Code) == "":
		return errors.New("code is required")
	case ttl <= 0:
		return errors.New("ttl must be positive")
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, map[string]any{
		fieldCode:      code.Code,
		fieldCreatedAt: strconv.FormatInt(code.CreatedAt.UTC().UnixNano(), 10),
	})
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store email code: %w", err)
	}
	return nil
}

// Get returns the cached code or repository.ErrNotFound once it is absent or evicted.
func (r *EmailCodeRepository) Get(ctx context.Context, email string) (*domain.EmailCode, error) {
	key := r.key(email)
	if key == "" {
		return nil, errors.New("email is required")
	}

	values, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall email code: %w", err)
	}

	code := strings.TrimSpace(values[fieldCode])
	if code == "" {
		return nil, repository.ErrNotFound
	}

	nanos, err := strconv.ParseInt(values[fieldCreatedAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &domain.EmailCode{
		Email:     normalizeEmail(email),
		Code:      code,
		CreatedAt: time.Unix(0, nanos).UTC(),
	}, nil
}

// Delete removes the code. Deleting an absent code is not an error.
func (r *EmailCodeRepository) Delete(ctx context.Context, email string) error {
	key := r.key(email)
	if key == "" {
		return errors.New("email is required")
	}

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete email code: %w", err)
	}
	return nil
}

func (r *EmailCodeRepository) key(email string) string {
	email = normalizeEmail(email)
	if email == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", r.prefix, email)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ port.EmailCodeStore = (*EmailCodeRepository)(nil)
