package usecase

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is the parent of every input validation failure.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidMenu indicates a malformed menu tree.
	ErrInvalidMenu = fmt.Errorf("%w: invalid menu", ErrValidation)
	// ErrRoleRequired is returned when a grant request omits the role.
	ErrRoleRequired = fmt.Errorf("%w: role is required", ErrValidation)
	// ErrPermissionRequired is returned when a grant request carries no permission.
	ErrPermissionRequired = fmt.Errorf("%w: at least one permission is required", ErrValidation)
	// ErrSinglePermissionOnly is returned when a grant request carries a permission list.
	ErrSinglePermissionOnly = fmt.Errorf("%w: only one permission may be granted", ErrValidation)
	// ErrInvalidPermission indicates a grant references an unknown permission.
	ErrInvalidPermission = fmt.Errorf("%w: invalid permission", ErrValidation)
	// ErrEmailRequired is returned when an email code operation omits the address.
	ErrEmailRequired = fmt.Errorf("%w: email is required", ErrValidation)
	// ErrCodeRequired is returned when verification omits the code.
	ErrCodeRequired = fmt.Errorf("%w: code is required", ErrValidation)
	// ErrWeakPassword wraps a password policy rejection.
	ErrWeakPassword = fmt.Errorf("%w: password does not satisfy policy", ErrValidation)

	ErrUserNotFound       = errors.New("user not found")
	ErrRoleNotFound       = errors.New("role not found")
	ErrPermissionNotFound = errors.New("permission not found")

	// ErrInvalidCredentials covers unknown users, wrong passwords and inactive accounts alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidRefreshToken is returned for unknown, revoked, or expired refresh tokens.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrInvalidAccessToken  = errors.New("invalid access token")
	ErrExpiredAccessToken  = errors.New("access token expired")
	// ErrCodeNotSent indicates no code is cached for the address.
	ErrCodeNotSent = errors.New("email code expired or not sent")
	// ErrCodeExpired indicates the code is older than the validity window.
	ErrCodeExpired  = errors.New("email code expired")
	ErrCodeMismatch = errors.New("email code mismatch")

	// ErrPermissionAlreadyGranted indicates the role already holds the permission.
	ErrPermissionAlreadyGranted = errors.New("permission already granted to role")
	// ErrDuplicateName indicates a unique name or codename collision.
	ErrDuplicateName = errors.New("name already exists")

	// ErrReconciliationAborted wraps any failure that rolled back a menu reconciliation.
	ErrReconciliationAborted = errors.New("permission tree reconciliation aborted")
)
