package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/arklim/rbac-auth-service/internal/core/port"
)

type txStarter interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// Transactor runs units of work inside a single transaction.
type Transactor struct {
	db txStarter
}

// NewTransactor constructs a transactor over a pool (or pgxmock in tests).
func NewTransactor(db txStarter) *Transactor {
	return &Transactor{db: db}
}

// WithinTx begins a transaction, optionally takes pg_advisory_xact_lock(hashtext(lockKey)), hands
// transaction-bound repositories to fn and commits. Any error rolls the transaction back.
//
// Unlocked work runs at REPEATABLE READ. Locked work runs at READ COMMITTED: a REPEATABLE READ
// snapshot would be taken by the lock statement itself, before a previous holder commits, so
// statements after the lock must see fresh snapshots.
func (t *Transactor) WithinTx(ctx context.Context, lockKey string, fn func(ctx context.Context, repos port.TxRepositories) error) (err error) {
	tx, err := t.db.BeginTx(ctx, txOptions(lockKey))
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if lockKey != "" {
		if _, err = tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", lockKey); err != nil {
			return fmt.Errorf("acquire advisory lock: %w", err)
		}
	}

	repos := port.TxRepositories{
		Permissions: NewPermissionRepository(tx),
		Roles:       NewRoleRepository(tx),
		Users:       NewUserRepository(tx),
	}

	if err = fn(ctx, repos); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func txOptions(lockKey string) pgx.TxOptions {
	if lockKey != "" {
		return pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
	}
	return pgx.TxOptions{IsoLevel: pgx.RepeatableRead}
}

var _ port.Transactor = (*Transactor)(nil)
