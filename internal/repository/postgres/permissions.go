package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
	"github.com/arklim/rbac-auth-service/internal/core/port"
	"github.com/arklim/rbac-auth-service/internal/repository"
)

var permissionColumns = []string{"id", "name", "codename", "parent_id"}

// PermissionRepository persists the permission tree.
type PermissionRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewPermissionRepository constructs a PostgreSQL-backed permission repository.
func NewPermissionRepository(exec pgExecutor) *PermissionRepository {
	return &PermissionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository configured to execute within the provided transaction.
func (r *PermissionRepository) WithTx(tx pgx.Tx) *PermissionRepository {
	if tx == nil {
		return r
	}
	return &PermissionRepository{exec: tx, builder: r.builder}
}

// Create inserts a permission.
func (r *PermissionRepository) Create(ctx context.Context, permission domain.Permission) error {
	stmt, args, err := r.builder.Insert("rbac.permissions").
		Columns(permissionColumns...).
		Values(permission.ID, permission.Name, permission.Codename, permission.ParentID).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert permission sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return mapWriteError("insert permission", err)
	}
	return nil
}

// GetByID retrieves a permission by identifier.
func (r *PermissionRepository) GetByID(ctx context.Context, id string) (*domain.Permission, error) {
	stmt, args, err := r.builder.Select(permissionColumns...).
		From("rbac.permissions").
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select permission sql: %w", err)
	}

	permission, err := scanPermission(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan permission: %w", err)
	}
	return &permission, nil
}

// List returns every permission ordered by name.
func (r *PermissionRepository) List(ctx context.Context) ([]domain.Permission, error) {
	stmt, args, err := r.builder.Select(permissionColumns...).
		From("rbac.permissions").
		OrderBy("name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list permissions sql: %w", err)
	}
	return r.queryPermissions(ctx, stmt, args)
}

// ListByIDs returns the permissions among ids that exist.
func (r *PermissionRepository) ListByIDs(ctx context.Context, ids []string) ([]domain.Permission, error) {
	if len(ids) == 0 {
		return []domain.Permission{}, nil
	}

	stmt, args, err := r.builder.Select(permissionColumns...).
		From("rbac.permissions").
		Where(squirrel.Eq{"id": ids}).
		OrderBy("name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build permissions by ids sql: %w", err)
	}
	return r.queryPermissions(ctx, stmt, args)
}

// Update overwrites name, codename and parent.
func (r *PermissionRepository) Update(ctx context.Context, permission domain.Permission) error {
	stmt, args, err := r.builder.Update("rbac.permissions").
		Set("name", permission.Name).
		Set("codename", permission.Codename).
		Set("parent_id", permission.ParentID).
		Where(squirrel.Eq{"id": permission.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update permission sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return mapWriteError("update permission", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateParent moves a permission under parentID, or to the root when parentID is nil.
func (r *PermissionRepository) UpdateParent(ctx context.Context, id string, parentID *string) error {
	stmt, args, err := r.builder.Update("rbac.permissions").
		Set("parent_id", parentID).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update permission parent sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update permission parent: %w", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete removes a permission. Grants cascade; children are detached to the root.
func (r *PermissionRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete("rbac.permissions").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete permission sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete permission: %w", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteByIDs removes every listed permission and reports how many rows went away.
func (r *PermissionRepository) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	stmt, args, err := r.builder.Delete("rbac.permissions").
		Where(squirrel.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete permissions sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete permissions: %w", err)
	}
	return int(res.RowsAffected()), nil
}

// ListMenuByUser returns one row per distinct (permission, role) pair granted to the user.
func (r *PermissionRepository) ListMenuByUser(ctx context.Context, userID string) ([]domain.MenuEntry, error) {
	stmt, args, err := r.builder.Select("p.id", "p.name", "p.codename", "p.parent_id", "r.name").
		Distinct().
		From("rbac.user_roles ur").
		Join("rbac.roles r ON r.id = ur.role_id").
		Join("rbac.role_permissions rp ON rp.role_id = ur.role_id").
		Join("rbac.permissions p ON p.id = rp.permission_id").
		Where(squirrel.Eq{"ur.user_id": userID}).
		OrderBy("r.name ASC", "p.name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build menu by user sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query menu by user: %w", err)
	}
	defer rows.Close()

	menu := make([]domain.MenuEntry, 0)
	for rows.Next() {
		var (
			entry    domain.MenuEntry
			parentID sql.NullString
		)
		if err := rows.Scan(&entry.PermissionID, &entry.Name, &entry.Codename, &parentID, &entry.RoleName); err != nil {
			return nil, fmt.Errorf("scan menu entry: %w", err)
		}
		entry.ParentID = nullableString(parentID)
		menu = append(menu, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate menu entries: %w", err)
	}
	return menu, nil
}

// ListSummariesByUser returns each permission reachable through the user's roles once.
func (r *PermissionRepository) ListSummariesByUser(ctx context.Context, userID string) ([]domain.PermissionSummary, error) {
	stmt, args, err := r.builder.Select("p.id", "p.name", "p.codename").
		Distinct().
		From("rbac.user_roles ur").
		Join("rbac.role_permissions rp ON rp.role_id = ur.role_id").
		Join("rbac.permissions p ON p.id = rp.permission_id").
		Where(squirrel.Eq{"ur.user_id": userID}).
		OrderBy("p.name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build permission summaries sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query permission summaries: %w", err)
	}
	defer rows.Close()

	summaries := make([]domain.PermissionSummary, 0)
	for rows.Next() {
		var summary domain.PermissionSummary
		if err := rows.Scan(&summary.ID, &summary.Name, &summary.Codename); err != nil {
			return nil, fmt.Errorf("scan permission summary: %w", err)
		}
		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permission summaries: %w", err)
	}
	return summaries, nil
}

func (r *PermissionRepository) queryPermissions(ctx context.Context, stmt string, args []any) ([]domain.Permission, error) {
	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query permissions: %w", err)
	}
	defer rows.Close()

	permissions := make([]domain.Permission, 0)
	for rows.Next() {
		permission, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		permissions = append(permissions, permission)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permissions: %w", err)
	}
	return permissions, nil
}

func scanPermission(row pgx.Row) (domain.Permission, error) {
	var (
		permission domain.Permission
		parentID   sql.NullString
	)
	if err := row.Scan(&permission.ID, &permission.Name, &permission.Codename, &parentID); err != nil {
		return domain.Permission{}, err
	}
	permission.ParentID = nullableString(parentID)
	return permission, nil
}

var _ port.PermissionRepository = (*PermissionRepository)(nil)
