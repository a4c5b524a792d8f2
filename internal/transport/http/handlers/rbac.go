package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
	"github.com/arklim/rbac-auth-service/internal/infra/security"
	"github.com/arklim/rbac-auth-service/internal/transport/http/middleware"
	"github.com/arklim/rbac-auth-service/internal/usecase"
)

const (
	invalidCredentialsMessage = "Invalid Credentials"
	menuSyncedMessage         = "Menu data successfully saved to permissions."
	menuInvalidMessage        = "Invalid menu data."
	menuSyncFailedMessage     = "Failed to save menu data to permissions."
)

// Authenticator issues, rotates and revokes token pairs.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*usecase.LoginResult, error)
	Refresh(ctx context.Context, rawRefresh string) (domain.TokenPair, error)
	Logout(ctx context.Context, rawRefresh string, access *security.AccessTokenClaims) error
	UserInfo(ctx context.Context, userID string) (usecase.UserInfo, error)
}

// PermissionReader resolves the permissions granted to a user through their roles.
type PermissionReader interface {
	Resolve(ctx context.Context, userID string) (domain.EffectivePermissions, error)
	ListPermissions(ctx context.Context, userID string) ([]domain.PermissionSummary, error)
}

// MenuReconciler rewrites the permission tree from a menu definition.
type MenuReconciler interface {
	Reconcile(ctx context.Context, actorID string, menu []domain.MenuNode) (domain.ReconcileResult, error)
}

// RBACHandler exposes login, token and menu endpoints.
type RBACHandler struct {
	auth     Authenticator
	resolver PermissionReader
	menus    MenuReconciler
}

// NewRBACHandler constructs RBACHandler.
func NewRBACHandler(auth Authenticator, resolver PermissionReader, menus MenuReconciler) *RBACHandler {
	return &RBACHandler{auth: auth, resolver: resolver, menus: menus}
}

// RegisterRoutes binds the RBAC routes. requireAuth guards every route that needs a caller and
// requireAdmin, when set, additionally guards the menu synchronisation. loginMiddlewares run ahead
// of the login handler and refreshMiddlewares ahead of refresh.
func (h *RBACHandler) RegisterRoutes(r *gin.RouterGroup, requireAuth, requireAdmin gin.HandlerFunc, loginMiddlewares, refreshMiddlewares []gin.HandlerFunc) {
	r.POST("/login", chain(loginMiddlewares, h.Login)...)
	r.POST("/refresh", chain(refreshMiddlewares, h.Refresh)...)

	secured := r.Group("")
	secured.Use(requireAuth)
	secured.POST("/logout", h.Logout)
	secured.GET("/userInfo", h.UserInfo)
	secured.GET("/menu", h.Menu)
	secured.GET("/user-permissions", h.UserPermissions)

	admin := secured.Group("")
	if requireAdmin != nil {
		admin.Use(requireAdmin)
	}
	admin.POST("/menu-to-permission", h.MenuToPermission)
}

// Login godoc
// @Summary Log in with username and password
// @Description Verifies the credentials and returns a token pair with the caller's roles and menu.
// @Tags RBAC
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} middleware.RateLimitResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/rbac/login [post]
func (h *RBACHandler) Login(c *gin.Context) {
	if h.auth == nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "login service not configured"))
		return
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, invalidCredentialsMessage))
		return
	}

	result, err := h.auth.Login(c.Request.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusBadRequest, Message: invalidCredentialsMessage},
		}, http.StatusInternalServerError, "login failed")
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Refresh:     result.Tokens.RefreshToken,
		AccessToken: result.Tokens.AccessToken,
		Username:    result.User.Username,
		Permissions: LoginPermissions{
			RoleName: nonNilStrings(result.Permissions.RoleNames),
			Menu:     newMenuPayload(result.Permissions.Menu),
		},
	})
}

// Refresh godoc
// @Summary Rotate a refresh token
// @Description Blacklists the presented refresh token and issues a new pair.
// @Tags RBAC
// @Accept json
// @Produce json
// @Param request body RefreshRequest true "Refresh request"
// @Success 200 {object} RefreshResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/rbac/refresh [post]
func (h *RBACHandler) Refresh(c *gin.Context) {
	if h.auth == nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "refresh service not configured"))
		return
	}

	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "refresh is required"))
		return
	}

	pair, err := h.auth.Refresh(c.Request.Context(), req.Refresh)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidRefreshToken, Status: http.StatusUnauthorized, Message: "Token is invalid or expired"},
		}, http.StatusInternalServerError, "failed to refresh token")
		return
	}

	c.JSON(http.StatusOK, RefreshResponse{Refresh: pair.RefreshToken, Access: pair.AccessToken})
}

// Logout godoc
// @Summary Log out
// @Description Blacklists the refresh token and the caller's access token.
// @Tags RBAC
// @Accept json
// @Param Authorization header string true "Bearer access token"
// @Param request body RefreshRequest true "Refresh token to revoke"
// @Success 204 {string} string ""
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/rbac/logout [post]
func (h *RBACHandler) Logout(c *gin.Context) {
	claims, ok := middleware.GetAccessClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "refresh is required"))
		return
	}

	if err := h.auth.Logout(c.Request.Context(), req.Refresh, claims); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidRefreshToken, Status: http.StatusBadRequest, Message: "Token is invalid or expired"},
		}, http.StatusInternalServerError, "failed to log out")
		return
	}

	c.Status(http.StatusNoContent)
}

// UserInfo godoc
// @Summary Current user profile
// @Tags RBAC
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Success 200 {object} UserInfoResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/rbac/userInfo [get]
func (h *RBACHandler) UserInfo(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	info, err := h.auth.UserInfo(c.Request.Context(), userID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "user not found"},
		}, http.StatusInternalServerError, "failed to load user")
		return
	}

	c.JSON(http.StatusOK, UserInfoResponse{RealName: info.RealName, Username: info.Username, Email: info.Email})
}

// Menu godoc
// @Summary Menu of the current user
// @Description Lists the caller's role names and one menu row per (permission, role) grant.
// @Tags RBAC
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Success 200 {object} UserMenuResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/rbac/menu [get]
func (h *RBACHandler) Menu(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	perms, err := h.resolver.Resolve(c.Request.Context(), userID)
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to resolve menu")
		return
	}

	c.JSON(http.StatusOK, UserMenuResponse{
		Roles: nonNilStrings(perms.RoleNames),
		Menu:  newMenuPayload(perms.Menu),
	})
}

// UserPermissions godoc
// @Summary Permissions of the current user
// @Tags RBAC
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Success 200 {array} UserPermissionPayload
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/rbac/user-permissions [get]
func (h *RBACHandler) UserPermissions(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	summaries, err := h.resolver.ListPermissions(c.Request.Context(), userID)
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to list permissions")
		return
	}

	payload := make([]UserPermissionPayload, 0, len(summaries))
	for _, summary := range summaries {
		payload = append(payload, UserPermissionPayload{ID: summary.ID, Name: summary.Name, Codename: summary.Codename})
	}
	c.JSON(http.StatusOK, payload)
}

// MenuToPermission godoc
// @Summary Reconcile the permission tree with a menu
// @Description Creates, reparents and deletes permissions so the table mirrors the posted tree. All or nothing.
// @Tags RBAC
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param request body []MenuNodeRequest true "Menu tree"
// @Success 200 {object} DetailResponse
// @Failure 400 {object} DetailResponse
// @Failure 500 {object} DetailResponse
// @Router /api/v1/rbac/menu-to-permission [post]
func (h *RBACHandler) MenuToPermission(c *gin.Context) {
	if h.menus == nil {
		c.JSON(http.StatusInternalServerError, DetailResponse{Detail: "menu synchronizer not configured"})
		return
	}

	var req []MenuNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, DetailResponse{Detail: menuInvalidMessage})
		return
	}

	actorID, _ := middleware.GetAuthenticatedUserID(c)
	if _, err := h.menus.Reconcile(c.Request.Context(), actorID, menuNodesFromRequest(req)); err != nil {
		RespondWithMappedDetail(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidMenu, Status: http.StatusBadRequest, Message: menuInvalidMessage},
		}, http.StatusInternalServerError, menuSyncFailedMessage)
		return
	}

	c.JSON(http.StatusOK, DetailResponse{Detail: menuSyncedMessage})
}

func chain(middlewares []gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	handlers := make([]gin.HandlerFunc, 0, len(middlewares)+1)
	handlers = append(handlers, middlewares...)
	return append(handlers, handler)
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
