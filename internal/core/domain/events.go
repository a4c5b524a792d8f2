package domain

import "time"

// PermissionTreeReconciledEvent represents the payload for rbac.permission_tree.reconciled messages.
type PermissionTreeReconciledEvent struct {
	EventID      string
	ActorID      string
	Result       ReconcileResult
	ReconciledAt time.Time
}

// RolePermissionsChangedEvent represents the payload for rbac.role.permissions_granted and
// rbac.role.permissions_replaced messages.
type RolePermissionsChangedEvent struct {
	EventID       string
	RoleID        string
	RoleName      string
	PermissionIDs []string
	Replaced      bool
	ChangedBy     string
	ChangedAt     time.Time
}

// RoleAssignment captures individual role changes associated with an event.
type RoleAssignment struct {
	RoleID   string
	RoleName string
}

// UserRolesChangedEvent represents the payload for rbac.user.roles_assigned and rbac.user.roles_revoked messages.
type UserRolesChangedEvent struct {
	EventID   string
	UserID    string
	Added     []RoleAssignment
	Removed   []RoleAssignment
	ChangedBy string
	ChangedAt time.Time
}

// UserLoggedInEvent represents the payload for rbac.user.logged_in messages.
type UserLoggedInEvent struct {
	EventID    string
	UserID     string
	Username   string
	Method     string
	RoleNames  []string
	LoggedInAt time.Time
}
