package postgres

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
)

func TestUserRepository_ListRequiresEveryRole(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)
	joined := time.Now().UTC()

	filter := domain.UserFilterSchema.Parse(map[string][]string{"is_active": {"true"}})
	filter.RoleIDs = []string{"role-a", "role-b", "role-a"}

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM rbac\.users u WHERE u\.is_active = \$1 AND u\.id IN \(SELECT ur\.user_id FROM rbac\.user_roles ur WHERE ur\.role_id = ANY\(\$2\) GROUP BY ur\.user_id HAVING COUNT\(DISTINCT ur\.role_id\) = \$3\)`).
		WithArgs(true, []string{"role-a", "role-b"}, 2).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

	mock.ExpectQuery(`SELECT u\.id, u\.username, .* FROM rbac\.users u WHERE u\.is_active = \$1 AND u\.id IN .* ORDER BY u\.date_joined DESC`).
		WithArgs(true, []string{"role-a", "role-b"}, 2).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "username", "email", "name", "phone_number", "address", "password_hash", "is_active", "last_login", "date_joined",
		}).AddRow("user-1", "alice", "alice@example.com", "Alice", nil, nil, "hash", true, nil, joined))

	mock.ExpectQuery(`SELECT ur\.user_id, r\.id, r\.name, r\.description, r\.created_at, r\.updated_at FROM rbac\.user_roles ur JOIN rbac\.roles r`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "id", "name", "description", "created_at", "updated_at"}).
			AddRow("user-1", "role-a", "admin", nil, joined, joined).
			AddRow("user-1", "role-b", "editor", nil, joined, joined))

	page, err := repo.List(context.Background(), filter, domain.Page{Number: 1, Size: 20})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if page.Count != 1 || len(page.Results) != 1 {
		t.Fatalf("unexpected page: %+v", page)
	}
	user := page.Results[0]
	if user.Name == nil || *user.Name != "Alice" {
		t.Fatalf("expected name Alice, got %v", user.Name)
	}
	if user.PhoneNumber != nil || user.LastLogin != nil {
		t.Fatalf("expected nullable fields to stay nil")
	}
	if len(user.Roles) != 2 || user.Roles[0].Name != "admin" || user.Roles[1].Name != "editor" {
		t.Fatalf("unexpected roles: %+v", user.Roles)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_AssignRolesIgnoresExisting(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)
	at := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO rbac\.user_roles \(user_id,role_id,assigned_at\) VALUES \(\$1,\$2,\$3\) ON CONFLICT DO NOTHING`).
		WithArgs("user-1", "role-a", at).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	if err := repo.AssignRoles(context.Background(), "user-1", []string{"role-a"}, at); err != nil {
		t.Fatalf("AssignRoles returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
