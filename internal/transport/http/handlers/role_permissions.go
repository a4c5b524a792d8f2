package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
	"github.com/arklim/rbac-auth-service/internal/transport/http/middleware"
	"github.com/arklim/rbac-auth-service/internal/usecase"
)

// RolePermissionEditor edits the permissions granted to a role.
type RolePermissionEditor interface {
	Grant(ctx context.Context, actorID string, input usecase.GrantInput) (domain.RolePermission, error)
	Replace(ctx context.Context, actorID, roleID string, permissionIDs []string) ([]domain.RolePermission, error)
	List(ctx context.Context, roleID string) ([]domain.RolePermission, error)
}

// RolePermissionHandler exposes role grant editing.
type RolePermissionHandler struct {
	grants RolePermissionEditor
}

func NewRolePermissionHandler(grants RolePermissionEditor) *RolePermissionHandler {
	return &RolePermissionHandler{grants: grants}
}

func (h *RolePermissionHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("", h.Grant)
	r.GET("/:id", h.List)
	r.PUT("/:id", h.Replace)
}

// Grant godoc
// @Summary Grant one permission to a role
// @Tags RolePermissions
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param request body RolePermissionGrantRequest true "Grant request"
// @Success 201 {object} DetailResponse
// @Failure 400 {object} DetailResponse
// @Failure 404 {object} DetailResponse
// @Router /api/v1/rbac/role-permissions [post]
func (h *RolePermissionHandler) Grant(c *gin.Context) {
	var req RolePermissionGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, DetailResponse{Detail: "Invalid request payload."})
		return
	}

	actorID, _ := middleware.GetAuthenticatedUserID(c)
	_, err := h.grants.Grant(c.Request.Context(), actorID, usecase.GrantInput{
		RoleID:        req.Role,
		PermissionID:  req.Permission,
		PermissionIDs: req.Permissions,
	})
	if err != nil {
		RespondWithMappedDetail(c, err, []ErrorCase{
			{Err: usecase.ErrRoleRequired, Status: http.StatusBadRequest, Message: "Role is required."},
			{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "Role not found."},
			{Err: usecase.ErrSinglePermissionOnly, Status: http.StatusBadRequest, Message: "Please provide only one permission."},
			{Err: usecase.ErrPermissionRequired, Status: http.StatusBadRequest, Message: "At least one permission is required."},
			{Err: usecase.ErrInvalidPermission, Status: http.StatusBadRequest, Message: "Invalid permission."},
			{Err: usecase.ErrPermissionAlreadyGranted, Status: http.StatusBadRequest, Message: "Permission already exists for this role."},
		}, http.StatusInternalServerError, "Failed to grant permission.")
		return
	}

	c.JSON(http.StatusCreated, DetailResponse{Detail: "Permission successfully added to role."})
}

// List godoc
// @Summary List the grants of a role
// @Tags RolePermissions
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param id path string true "Role ID"
// @Success 200 {array} RolePermissionPayload
// @Router /api/v1/rbac/role-permissions/{id} [get]
func (h *RolePermissionHandler) List(c *gin.Context) {
	grants, err := h.grants.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondWithMappedDetail(c, err, nil, http.StatusInternalServerError, "Failed to list role permissions.")
		return
	}
	c.JSON(http.StatusOK, newRolePermissionPayloads(grants))
}

// Replace godoc
// @Summary Replace the permission set of a role
// @Description Removes every grant of the role and inserts the listed permissions in one transaction.
// @Tags RolePermissions
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param id path string true "Role ID"
// @Param request body RolePermissionReplaceRequest true "Replacement set"
// @Success 200 {object} RolePermissionsResponse
// @Failure 400 {object} DetailResponse
// @Failure 404 {object} DetailResponse
// @Router /api/v1/rbac/role-permissions/{id} [put]
func (h *RolePermissionHandler) Replace(c *gin.Context) {
	var req RolePermissionReplaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, DetailResponse{Detail: "Invalid request payload."})
		return
	}

	ids := make([]string, 0, len(req.Permissions))
	for _, ref := range req.Permissions {
		ids = append(ids, ref.ID)
	}

	actorID, _ := middleware.GetAuthenticatedUserID(c)
	grants, err := h.grants.Replace(c.Request.Context(), actorID, req.RoleID, ids)
	if err != nil {
		RespondWithMappedDetail(c, err, []ErrorCase{
			{Err: usecase.ErrRoleRequired, Status: http.StatusBadRequest, Message: "Role is required."},
			{Err: usecase.ErrPermissionRequired, Status: http.StatusBadRequest, Message: "At least one permission is required."},
			{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "Role not found."},
			{Err: usecase.ErrInvalidPermission, Status: http.StatusBadRequest, Message: "One or more permissions are invalid."},
		}, http.StatusInternalServerError, "Failed to update role permissions.")
		return
	}

	c.JSON(http.StatusOK, RolePermissionsResponse{
		Detail:      "Role permissions successfully updated.",
		Permissions: newRolePermissionPayloads(grants),
	})
}
