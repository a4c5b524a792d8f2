package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
	"github.com/arklim/rbac-auth-service/internal/core/port"
	"github.com/arklim/rbac-auth-service/internal/repository"
)

// TokenRepository persists refresh tokens and their blacklist state.
type TokenRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewTokenRepository constructs a new token repository.
func NewTokenRepository(exec pgExecutor) *TokenRepository {
	return &TokenRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance executing within the provided transaction.
func (r *TokenRepository) WithTx(tx pgx.Tx) *TokenRepository {
	if tx == nil {
		return r
	}
	return &TokenRepository{exec: tx, builder: r.builder}
}

// CreateRefreshToken stores a new refresh token hash.
func (r *TokenRepository) CreateRefreshToken(ctx context.Context, token domain.RefreshToken) error {
	stmt, args, err := r.builder.Insert("rbac.refresh_tokens").
		Columns("id", "user_id", "token_hash", "rotated_from", "created_at", "expires_at").
		Values(token.ID, token.UserID, token.TokenHash, token.RotatedFrom, token.CreatedAt, token.ExpiresAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert refresh token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return mapWriteError("insert refresh token", err)
	}
	return nil
}

// GetRefreshTokenByHash returns the record for a token hash regardless of its state.
func (r *TokenRepository) GetRefreshTokenByHash(ctx context.Context, hash string) (*domain.RefreshToken, error) {
	stmt, args, err := r.builder.Select(
		"id",
		"user_id",
		"token_hash",
		"rotated_from",
		"created_at",
		"expires_at",
		"revoked_at",
		"revoke_reason",
	).
		From("rbac.refresh_tokens").
		Where(squirrel.Eq{"token_hash": hash}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select refresh token sql: %w", err)
	}

	var (
		token       domain.RefreshToken
		rotatedFrom sql.NullString
		reason      sql.NullString
	)
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&rotatedFrom,
		&token.CreatedAt,
		&token.ExpiresAt,
		&token.RevokedAt,
		&reason,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}

	token.RotatedFrom = nullableString(rotatedFrom)
	token.RevokeReason = nullableString(reason)
	return &token, nil
}

// RevokeRefreshToken blacklists an active token. A token that is already revoked yields repository.ErrNotFound,
// so two concurrent rotations of the same token cannot both succeed.
func (r *TokenRepository) RevokeRefreshToken(ctx context.Context, id string, reason string, at time.Time) error {
	stmt, args, err := r.builder.Update("rbac.refresh_tokens").
		Set("revoked_at", at).
		Set("revoke_reason", reason).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Eq{"revoked_at": nil}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build revoke refresh token sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// RevokeRefreshTokensForUser blacklists every active token of a user.
func (r *TokenRepository) RevokeRefreshTokensForUser(ctx context.Context, userID string, reason string, at time.Time) (int, error) {
	stmt, args, err := r.builder.Update("rbac.refresh_tokens").
		Set("revoked_at", at).
		Set("revoke_reason", reason).
		Where(squirrel.Eq{"user_id": userID}).
		Where(squirrel.Eq{"revoked_at": nil}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build revoke user refresh tokens sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return int(res.RowsAffected()), nil
}

var _ port.TokenRepository = (*TokenRepository)(nil)
