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

var userColumns = []string{
	"u.id",
	"u.username",
	"u.email",
	"u.name",
	"u.phone_number",
	"u.address",
	"u.password_hash",
	"u.is_active",
	"u.last_login",
	"u.date_joined",
}

var userFilterColumns = map[string]string{
	"username":     "u.username",
	"name":         "u.name",
	"email":        "u.email",
	"phone_number": "u.phone_number",
	"address":      "u.address",
	"is_active":    "u.is_active",
	"last_login":   "u.last_login",
	"date_joined":  "u.date_joined",
}

const hasAllRolesExpr = "u.id IN (SELECT ur.user_id FROM rbac.user_roles ur WHERE ur.role_id = ANY(?) GROUP BY ur.user_id HAVING COUNT(DISTINCT ur.role_id) = ?)"

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository wires a PostgreSQL-backed user repository.
func NewUserRepository(exec pgExecutor) *UserRepository {
	return &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	if tx == nil {
		return r
	}
	return &UserRepository{exec: tx, builder: r.builder}
}

// Create inserts a new user row.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	stmt, args, err := r.builder.Insert("rbac.users").
		Columns(
			"id",
			"username",
			"email",
			"name",
			"phone_number",
			"address",
			"password_hash",
			"is_active",
			"last_login",
			"date_joined",
		).
		Values(
			user.ID,
			user.Username,
			user.Email,
			user.Name,
			user.PhoneNumber,
			user.Address,
			user.PasswordHash,
			user.IsActive,
			user.LastLogin,
			user.DateJoined,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return mapWriteError("insert user", err)
	}
	return nil
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"u.id": id})
}

// GetByUsername retrieves a user by exact username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"u.username": username})
}

// GetByEmail retrieves a user by exact email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"u.email": email})
}

func (r *UserRepository) getOne(ctx context.Context, pred squirrel.Eq) (*domain.User, error) {
	stmt, args, err := r.builder.Select(userColumns...).
		From("rbac.users u").
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	user, err := scanUser(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &user, nil
}

// Update writes profile fields and the active flag.
func (r *UserRepository) Update(ctx context.Context, user domain.User) error {
	stmt, args, err := r.builder.Update("rbac.users").
		Set("username", user.Username).
		Set("email", user.Email).
		Set("name", user.Name).
		Set("phone_number", user.PhoneNumber).
		Set("address", user.Address).
		Set("is_active", user.IsActive).
		Where(squirrel.Eq{"id": user.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update user sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return mapWriteError("update user", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdatePassword stores a new password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	stmt, args, err := r.builder.Update("rbac.users").
		Set("password_hash", passwordHash).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// TouchLastLogin stamps the last successful login time.
func (r *UserRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	stmt, args, err := r.builder.Update("rbac.users").
		Set("last_login", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build touch last login sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return nil
}

// Delete removes a user; role assignments and refresh tokens cascade.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete("rbac.users").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete user sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// List returns one page of users matching filter, each decorated with its roles.
func (r *UserRepository) List(ctx context.Context, filter domain.Filter, page domain.Page) (domain.PageResult[domain.UserWithRoles], error) {
	var result domain.PageResult[domain.UserWithRoles]

	countStmt, countArgs, err := r.filtered(r.builder.Select("COUNT(*)").From("rbac.users u"), filter).ToSql()
	if err != nil {
		return result, fmt.Errorf("build count users sql: %w", err)
	}
	if err := r.exec.QueryRow(ctx, countStmt, countArgs...).Scan(&result.Count); err != nil {
		return result, fmt.Errorf("count users: %w", err)
	}

	query := r.filtered(r.builder.Select(userColumns...).From("rbac.users u"), filter).
		OrderBy("u.date_joined DESC", "u.id ASC")
	stmt, args, err := applyPage(query, page).ToSql()
	if err != nil {
		return result, fmt.Errorf("build list users sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return result, fmt.Errorf("query users: %w", err)
	}

	users := make([]domain.UserWithRoles, 0)
	ids := make([]string, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			rows.Close()
			return result, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, domain.UserWithRoles{User: user, Roles: []domain.Role{}})
		ids = append(ids, user.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return result, fmt.Errorf("iterate users: %w", err)
	}

	roles, err := r.rolesByUsers(ctx, ids)
	if err != nil {
		return result, err
	}
	for i := range users {
		if assigned, ok := roles[users[i].ID]; ok {
			users[i].Roles = assigned
		}
	}

	result.Results = users
	return result, nil
}

func (r *UserRepository) filtered(query squirrel.SelectBuilder, filter domain.Filter) squirrel.SelectBuilder {
	query = applyFilter(query, filter, userFilterColumns)
	if roleIDs := dedupe(filter.RoleIDs); len(roleIDs) > 0 {
		query = query.Where(squirrel.Expr(hasAllRolesExpr, roleIDs, len(roleIDs)))
	}
	return query
}

func (r *UserRepository) rolesByUsers(ctx context.Context, userIDs []string) (map[string][]domain.Role, error) {
	out := make(map[string][]domain.Role, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	stmt, args, err := r.builder.Select("ur.user_id", "r.id", "r.name", "r.description", "r.created_at", "r.updated_at").
		From("rbac.user_roles ur").
		Join("rbac.roles r ON r.id = ur.role_id").
		Where(squirrel.Eq{"ur.user_id": userIDs}).
		OrderBy("r.name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build roles by users sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query roles by users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			userID      string
			role        domain.Role
			description sql.NullString
		)
		if err := rows.Scan(&userID, &role.ID, &role.Name, &description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan role by user: %w", err)
		}
		role.Description = nullableString(description)
		out[userID] = append(out[userID], role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles by users: %w", err)
	}
	return out, nil
}

// AssignRoles adds role assignments; existing pairs are left untouched.
func (r *UserRepository) AssignRoles(ctx context.Context, userID string, roleIDs []string, at time.Time) error {
	if len(roleIDs) == 0 {
		return nil
	}

	query := r.builder.Insert("rbac.user_roles").
		Columns("user_id", "role_id", "assigned_at")
	for _, roleID := range roleIDs {
		query = query.Values(userID, roleID, at)
	}

	stmt, args, err := query.Suffix("ON CONFLICT DO NOTHING").ToSql()
	if err != nil {
		return fmt.Errorf("build assign roles sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("assign roles: %w", err)
	}
	return nil
}

// RevokeRoles removes the listed role assignments.
func (r *UserRepository) RevokeRoles(ctx context.Context, userID string, roleIDs []string) error {
	if len(roleIDs) == 0 {
		return nil
	}

	stmt, args, err := r.builder.Delete("rbac.user_roles").
		Where(squirrel.Eq{"user_id": userID}).
		Where(squirrel.Eq{"role_id": roleIDs}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build revoke roles sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("revoke roles: %w", err)
	}
	return nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		user    domain.User
		name    sql.NullString
		phone   sql.NullString
		address sql.NullString
	)
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&name,
		&phone,
		&address,
		&user.PasswordHash,
		&user.IsActive,
		&user.LastLogin,
		&user.DateJoined,
	); err != nil {
		return domain.User{}, err
	}
	user.Name = nullableString(name)
	user.PhoneNumber = nullableString(phone)
	user.Address = nullableString(address)
	return user, nil
}

var _ port.UserRepository = (*UserRepository)(nil)
