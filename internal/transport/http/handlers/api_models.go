package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
	"github.com/arklim/rbac-auth-service/internal/transport/http/middleware"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse = middleware.ErrorResponse

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return middleware.NewErrorResponse(c, errorMsg)
}

// DetailResponse is the {detail} payload used by the RBAC administration endpoints.
type DetailResponse struct {
	Detail string `json:"detail"`
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// LoginRequest defines the payload for the password login endpoint.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// MenuItemPayload is one (permission, role) row of the resolved menu.
type MenuItemPayload struct {
	PermissionID       string  `json:"permission__id"`
	PermissionName     string  `json:"permission__name"`
	PermissionCodename string  `json:"permission__codename"`
	PermissionParentID *string `json:"permission__parent_id"`
	RoleName           string  `json:"role__name"`
}

// LoginPermissions carries the resolved permission payload attached to a login.
type LoginPermissions struct {
	RoleName []string          `json:"role_name"`
	Menu     []MenuItemPayload `json:"menu"`
}

// LoginResponse is returned by a successful password login.
type LoginResponse struct {
	Refresh     string           `json:"refresh"`
	AccessToken string           `json:"accessToken"`
	Username    string           `json:"username"`
	Permissions LoginPermissions `json:"permissions"`
}

// RefreshRequest carries the refresh token to rotate or revoke.
type RefreshRequest struct {
	Refresh string `json:"refresh" binding:"required"`
}

// RefreshResponse returns the rotated token pair.
type RefreshResponse struct {
	Refresh string `json:"refresh"`
	Access  string `json:"access"`
}

// UserInfoResponse is the profile of the authenticated user.
type UserInfoResponse struct {
	RealName string `json:"realName"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// UserMenuResponse lists the caller's role names and menu rows.
type UserMenuResponse struct {
	Roles []string          `json:"roles"`
	Menu  []MenuItemPayload `json:"menu"`
}

// UserPermissionPayload is one distinct permission held by the caller.
type UserPermissionPayload struct {
	ID       string `json:"permission__id"`
	Name     string `json:"permission__name"`
	Codename string `json:"permission__codename"`
}

// MenuNodeRequest is one node of the menu tree posted for reconciliation.
type MenuNodeRequest struct {
	Name     string            `json:"name" binding:"menuname"`
	Children []MenuNodeRequest `json:"children" binding:"omitempty,dive"`
}

// RolePermissionGrantRequest grants a single permission to a role.
type RolePermissionGrantRequest struct {
	Role        string   `json:"role"`
	Permission  string   `json:"permission"`
	Permissions []string `json:"permissions"`
}

// PermissionRef references a permission by id.
type PermissionRef struct {
	ID string `json:"id"`
}

// RolePermissionReplaceRequest replaces the whole permission set of a role.
type RolePermissionReplaceRequest struct {
	RoleID      string          `json:"role_id"`
	Permissions []PermissionRef `json:"permissions"`
}

// RolePermissionPayload is a single role grant.
type RolePermissionPayload struct {
	ID         string `json:"id"`
	Role       string `json:"role"`
	Permission string `json:"permission"`
}

// RolePermissionsResponse wraps the outcome of a replace operation.
type RolePermissionsResponse struct {
	Detail      string                  `json:"detail"`
	Permissions []RolePermissionPayload `json:"permissions"`
}

// SendEmailCodeRequest asks for a login code.
type SendEmailCodeRequest struct {
	Email string `json:"email"`
}

// SendEmailCodeResponse confirms that a code was generated. DeliveryError is set when the
// mail task could not be queued.
type SendEmailCodeResponse struct {
	Message       string `json:"message"`
	DeliveryError string `json:"delivery_error,omitempty"`
}

// EmailLoginRequest submits an emailed code.
type EmailLoginRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// EmailUserPayload identifies the user logged in with an email code.
type EmailUserPayload struct {
	Email    string `json:"email"`
	Username string `json:"username"`
}

// EmailLoginResponse is returned by a successful email code login.
type EmailLoginResponse struct {
	User    EmailUserPayload `json:"user"`
	Message string           `json:"message"`
}

// ChangePasswordRequest changes the password of the account owning the emailed code.
type ChangePasswordRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

// RoleRequest is the writable representation of a role.
type RoleRequest struct {
	Name        string  `json:"name" binding:"required"`
	Description *string `json:"description"`
}

// RolePayload is the API representation of a role.
type RolePayload struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PermissionRequest is the writable representation of a permission.
type PermissionRequest struct {
	Name     string  `json:"name" binding:"required"`
	Codename string  `json:"codename"`
	Parent   *string `json:"parent"`
}

// PermissionPayload is the API representation of a permission.
type PermissionPayload struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Codename string  `json:"codename"`
	Parent   *string `json:"parent"`
}

// RoleRef is the compact role projection embedded in user listings.
type RoleRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UserPayload is the administrative representation of a user.
type UserPayload struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	Name        *string    `json:"name"`
	PhoneNumber *string    `json:"phone_number"`
	Address     *string    `json:"address"`
	IsActive    bool       `json:"is_active"`
	LastLogin   *time.Time `json:"last_login"`
	DateJoined  time.Time  `json:"date_joined"`
	Roles       *[]RoleRef `json:"roles,omitempty"`
}

// UserCreateRequest creates an account.
type UserCreateRequest struct {
	Username    string   `json:"username" binding:"required"`
	Email       string   `json:"email" binding:"required,email"`
	Name        *string  `json:"name"`
	PhoneNumber *string  `json:"phone_number"`
	Address     *string  `json:"address"`
	Password    string   `json:"password" binding:"required"`
	IsActive    *bool    `json:"is_active"`
	Roles       []string `json:"roles"`
}

// UserUpdateRequest patches an account. Omitted fields are left untouched.
type UserUpdateRequest struct {
	Username    *string   `json:"username"`
	Email       *string   `json:"email" binding:"omitempty,email"`
	Name        *string   `json:"name"`
	PhoneNumber *string   `json:"phone_number"`
	Address     *string   `json:"address"`
	IsActive    *bool     `json:"is_active"`
	Password    *string   `json:"password"`
	Roles       *[]string `json:"roles"`
}

// PageResponse is the paginated listing envelope.
type PageResponse[T any] struct {
	Count   int `json:"count"`
	Results []T `json:"results"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// JWKSKey describes an individual JSON Web Key in the JWKS response.
type JWKSKey struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKSResponse represents the JSON Web Key Set payload.
type JWKSResponse struct {
	Keys []JWKSKey `json:"keys"`
}

func newMenuPayload(entries []domain.MenuEntry) []MenuItemPayload {
	menu := make([]MenuItemPayload, 0, len(entries))
	for _, entry := range entries {
		menu = append(menu, MenuItemPayload{
			PermissionID:       entry.PermissionID,
			PermissionName:     entry.Name,
			PermissionCodename: entry.Codename,
			PermissionParentID: entry.ParentID,
			RoleName:           entry.RoleName,
		})
	}
	return menu
}

func newRolePayload(role domain.Role) RolePayload {
	return RolePayload{
		ID:          role.ID,
		Name:        role.Name,
		Description: role.Description,
		CreatedAt:   role.CreatedAt,
		UpdatedAt:   role.UpdatedAt,
	}
}

func newPermissionPayload(permission domain.Permission) PermissionPayload {
	return PermissionPayload{
		ID:       permission.ID,
		Name:     permission.Name,
		Codename: permission.Codename,
		Parent:   permission.ParentID,
	}
}

func newRolePermissionPayloads(grants []domain.RolePermission) []RolePermissionPayload {
	payloads := make([]RolePermissionPayload, 0, len(grants))
	for _, grant := range grants {
		payloads = append(payloads, RolePermissionPayload{
			ID:         grant.ID,
			Role:       grant.RoleID,
			Permission: grant.PermissionID,
		})
	}
	return payloads
}

// newUserPayload never exposes the password hash.
func newUserPayload(user domain.User, roles []domain.Role) UserPayload {
	payload := UserPayload{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		Name:        user.Name,
		PhoneNumber: user.PhoneNumber,
		Address:     user.Address,
		IsActive:    user.IsActive,
		LastLogin:   user.LastLogin,
		DateJoined:  user.DateJoined,
	}

	if roles != nil {
		refs := make([]RoleRef, 0, len(roles))
		for _, role := range roles {
			refs = append(refs, RoleRef{ID: role.ID, Name: role.Name})
		}
		payload.Roles = &refs
	}

	return payload
}

func menuNodesFromRequest(nodes []MenuNodeRequest) []domain.MenuNode {
	if len(nodes) == 0 {
		return nil
	}
	result := make([]domain.MenuNode, 0, len(nodes))
	for _, node := range nodes {
		result = append(result, domain.MenuNode{
			Name:     node.Name,
			Children: menuNodesFromRequest(node.Children),
		})
	}
	return result
}
