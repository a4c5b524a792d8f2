package port

import "context"

// TxRepositories are the repositories bound to one open transaction.
type TxRepositories struct {
	Permissions PermissionRepository
	Roles       RoleRepository
	Users       UserRepository
}

// Transactor runs fn inside a single serialisable unit of work. When lockKey is non-empty a
// transaction-scoped advisory lock on it is taken before fn runs. A non-nil error from fn rolls back.
type Transactor interface {
	WithinTx(ctx context.Context, lockKey string, fn func(ctx context.Context, repos TxRepositories) error) error
}
