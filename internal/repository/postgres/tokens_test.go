package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
	"github.com/arklim/rbac-auth-service/internal/repository"
)

func TestTokenRepository_CreateRefreshToken(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewTokenRepository(mock)
	now := time.Now().UTC()
	token := domain.RefreshToken{
		ID:        "rt-1",
		UserID:    "user-1",
		TokenHash: "hash",
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	}

	mock.ExpectExec(`INSERT INTO rbac\.refresh_tokens`).
		WithArgs(token.ID, token.UserID, token.TokenHash, token.RotatedFrom, token.CreatedAt, token.ExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.CreateRefreshToken(context.Background(), token); err != nil {
		t.Fatalf("CreateRefreshToken returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTokenRepository_GetRefreshTokenByHash(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewTokenRepository(mock)
	now := time.Now().UTC()
	reason := domain.RevokeReasonRotated

	mock.ExpectQuery(`SELECT id, user_id, token_hash, rotated_from, created_at, expires_at, revoked_at, revoke_reason FROM rbac\.refresh_tokens WHERE token_hash = \$1`).
		WithArgs("hash").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "user_id", "token_hash", "rotated_from", "created_at", "expires_at", "revoked_at", "revoke_reason",
		}).AddRow("rt-1", "user-1", "hash", nil, now, now.Add(time.Hour), &now, reason))

	token, err := repo.GetRefreshTokenByHash(context.Background(), "hash")
	if err != nil {
		t.Fatalf("GetRefreshTokenByHash returned error: %v", err)
	}
	if !token.IsRevoked() || token.RevokeReason == nil || *token.RevokeReason != reason {
		t.Fatalf("expected revoked token with reason, got %+v", token)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTokenRepository_RevokeRefreshTokenAlreadyRevoked(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewTokenRepository(mock)
	at := time.Now().UTC()

	mock.ExpectExec(`UPDATE rbac\.refresh_tokens SET revoked_at = \$1, revoke_reason = \$2 WHERE id = \$3 AND revoked_at IS NULL`).
		WithArgs(at, domain.RevokeReasonRotated, "rt-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.RevokeRefreshToken(context.Background(), "rt-1", domain.RevokeReasonRotated, at)
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
