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

var roleColumns = []string{"id", "name", "description", "created_at", "updated_at"}

var roleFilterColumns = map[string]string{
	"name":        "name",
	"description": "description",
	"created_at":  "created_at",
	"updated_at":  "updated_at",
}

// RoleRepository implements role persistence operations.
type RoleRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewRoleRepository constructs a PostgreSQL-backed role repository.
func NewRoleRepository(exec pgExecutor) *RoleRepository {
	return &RoleRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository configured to execute within the provided transaction.
func (r *RoleRepository) WithTx(tx pgx.Tx) *RoleRepository {
	if tx == nil {
		return r
	}
	return &RoleRepository{exec: tx, builder: r.builder}
}

// Create inserts a new role.
func (r *RoleRepository) Create(ctx context.Context, role domain.Role) error {
	stmt, args, err := r.builder.Insert("rbac.roles").
		Columns(roleColumns...).
		Values(role.ID, role.Name, role.Description, role.CreatedAt, role.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert role sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return mapWriteError("insert role", err)
	}
	return nil
}

// GetByID retrieves a role by its ID.
func (r *RoleRepository) GetByID(ctx context.Context, id string) (*domain.Role, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

// GetByName retrieves a role by its unique name.
func (r *RoleRepository) GetByName(ctx context.Context, name string) (*domain.Role, error) {
	return r.getOne(ctx, squirrel.Eq{"name": name})
}

func (r *RoleRepository) getOne(ctx context.Context, pred squirrel.Eq) (*domain.Role, error) {
	stmt, args, err := r.builder.Select(roleColumns...).
		From("rbac.roles").
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select role sql: %w", err)
	}

	role, err := scanRole(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan role: %w", err)
	}
	return &role, nil
}

// List returns one page of roles matching filter, ordered by name, with the total match count.
func (r *RoleRepository) List(ctx context.Context, filter domain.Filter, page domain.Page) (domain.PageResult[domain.Role], error) {
	var result domain.PageResult[domain.Role]

	countStmt, countArgs, err := applyFilter(r.builder.Select("COUNT(*)").From("rbac.roles"), filter, roleFilterColumns).ToSql()
	if err != nil {
		return result, fmt.Errorf("build count roles sql: %w", err)
	}
	if err := r.exec.QueryRow(ctx, countStmt, countArgs...).Scan(&result.Count); err != nil {
		return result, fmt.Errorf("count roles: %w", err)
	}

	query := applyFilter(r.builder.Select(roleColumns...).From("rbac.roles"), filter, roleFilterColumns).
		OrderBy("name ASC")
	stmt, args, err := applyPage(query, page).ToSql()
	if err != nil {
		return result, fmt.Errorf("build list roles sql: %w", err)
	}

	result.Results, err = r.queryRoles(ctx, stmt, args)
	if err != nil {
		return result, err
	}
	return result, nil
}

// ListByIDs returns the roles among ids that exist.
func (r *RoleRepository) ListByIDs(ctx context.Context, ids []string) ([]domain.Role, error) {
	if len(ids) == 0 {
		return []domain.Role{}, nil
	}

	stmt, args, err := r.builder.Select(roleColumns...).
		From("rbac.roles").
		Where(squirrel.Eq{"id": ids}).
		OrderBy("name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build roles by ids sql: %w", err)
	}
	return r.queryRoles(ctx, stmt, args)
}

// Update modifies an existing role.
func (r *RoleRepository) Update(ctx context.Context, role domain.Role) error {
	stmt, args, err := r.builder.Update("rbac.roles").
		Set("name", role.Name).
		Set("description", role.Description).
		Set("updated_at", role.UpdatedAt).
		Where(squirrel.Eq{"id": role.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update role sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return mapWriteError("update role", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete removes a role by ID (cascades to user_roles and role_permissions via FK).
func (r *RoleRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete("rbac.roles").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete role sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListByUser returns roles assigned to the specified user.
func (r *RoleRepository) ListByUser(ctx context.Context, userID string) ([]domain.Role, error) {
	stmt, args, err := r.builder.Select("r.id", "r.name", "r.description", "r.created_at", "r.updated_at").
		From("rbac.roles r").
		Join("rbac.user_roles ur ON ur.role_id = r.id").
		Where(squirrel.Eq{"ur.user_id": userID}).
		OrderBy("r.name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build roles by user sql: %w", err)
	}
	return r.queryRoles(ctx, stmt, args)
}

// GrantPermission links one permission to a role. A duplicate pair yields repository.ErrConflict.
func (r *RoleRepository) GrantPermission(ctx context.Context, grant domain.RolePermission) error {
	stmt, args, err := r.builder.Insert("rbac.role_permissions").
		Columns("id", "role_id", "permission_id").
		Values(grant.ID, grant.RoleID, grant.PermissionID).
		ToSql()
	if err != nil {
		return fmt.Errorf("build grant permission sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return mapWriteError("grant permission", err)
	}
	return nil
}

// ReplacePermissions drops every grant of the role and inserts grants. Callers run it inside a transaction.
func (r *RoleRepository) ReplacePermissions(ctx context.Context, roleID string, grants []domain.RolePermission) error {
	stmt, args, err := r.builder.Delete("rbac.role_permissions").
		Where(squirrel.Eq{"role_id": roleID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build clear role permissions sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("clear role permissions: %w", err)
	}

	if len(grants) == 0 {
		return nil
	}

	insert := r.builder.Insert("rbac.role_permissions").
		Columns("id", "role_id", "permission_id")
	for _, grant := range grants {
		insert = insert.Values(grant.ID, roleID, grant.PermissionID)
	}

	stmt, args, err = insert.ToSql()
	if err != nil {
		return fmt.Errorf("build insert role permissions sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return mapWriteError("insert role permissions", err)
	}
	return nil
}

// ListPermissions returns the grant rows of a role.
func (r *RoleRepository) ListPermissions(ctx context.Context, roleID string) ([]domain.RolePermission, error) {
	stmt, args, err := r.builder.Select("rp.id", "rp.role_id", "rp.permission_id").
		From("rbac.role_permissions rp").
		Join("rbac.permissions p ON p.id = rp.permission_id").
		Where(squirrel.Eq{"rp.role_id": roleID}).
		OrderBy("p.name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build role permissions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query role permissions: %w", err)
	}
	defer rows.Close()

	grants := make([]domain.RolePermission, 0)
	for rows.Next() {
		var grant domain.RolePermission
		if err := rows.Scan(&grant.ID, &grant.RoleID, &grant.PermissionID); err != nil {
			return nil, fmt.Errorf("scan role permission: %w", err)
		}
		grants = append(grants, grant)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role permissions: %w", err)
	}
	return grants, nil
}

func (r *RoleRepository) queryRoles(ctx context.Context, stmt string, args []any) ([]domain.Role, error) {
	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	roles := make([]domain.Role, 0)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}
	return roles, nil
}

func scanRole(row pgx.Row) (domain.Role, error) {
	var (
		role        domain.Role
		description sql.NullString
	)
	if err := row.Scan(&role.ID, &role.Name, &description, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return domain.Role{}, err
	}
	role.Description = nullableString(description)
	return role, nil
}

var _ port.RoleRepository = (*RoleRepository)(nil)
