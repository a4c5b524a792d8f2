package domain

import "time"

const (
	// MaxRoleNameLength mirrors the roles.name column width.
	MaxRoleNameLength = 50
	// MaxPermissionNameLength mirrors the permissions.name column width.
	MaxPermissionNameLength = 50
	// MaxCodenameLength mirrors the permissions.codename column width.
	MaxCodenameLength = 100
)

// Role defines a named bundle of permissions.
type Role struct {
	ID          string
	Name        string
	Description *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission defines a grantable capability. ParentID links permissions into a menu tree.
type Permission struct {
	ID       string
	Name     string
	Codename string
	ParentID *string
}

// HasParent reports whether the permission points at the provided parent (nil for root).
func (p Permission) HasParent(parentID *string) bool {
	switch {
	case p.ParentID == nil && parentID == nil:
		return true
	case p.ParentID == nil || parentID == nil:
		return false
	default:
		return *p.ParentID == *parentID
	}
}

// RolePermission links a role with a permission.
type RolePermission struct {
	ID           string
	RoleID       string
	PermissionID string
}

// UserRole assigns a role to a user.
type UserRole struct {
	UserID     string
	RoleID     string
	AssignedAt time.Time
}

// MenuEntry is one (permission, granting role) row of a user's effective permission set.
// The same permission appears once per distinct granting role name.
type MenuEntry struct {
	PermissionID string
	Name         string
	Codename     string
	ParentID     *string
	RoleName     string
}

// PermissionSummary is the identity-deduplicated projection of a granted permission.
type PermissionSummary struct {
	ID       string
	Name     string
	Codename string
}

// EffectivePermissions is the resolver output: role names and the flat menu list.
type EffectivePermissions struct {
	RoleNames []string
	Menu      []MenuEntry
}
