package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
	"github.com/arklim/rbac-auth-service/internal/usecase"
)

// PermissionManager administers individual permissions.
type PermissionManager interface {
	List(ctx context.Context) ([]domain.Permission, error)
	Get(ctx context.Context, id string) (*domain.Permission, error)
	Create(ctx context.Context, input usecase.PermissionInput) (*domain.Permission, error)
	Update(ctx context.Context, id string, input usecase.PermissionInput) (*domain.Permission, error)
	Delete(ctx context.Context, id string) error
}

var permissionErrorCases = []ErrorCase{
	{Err: usecase.ErrPermissionNotFound, Status: http.StatusNotFound, Message: "permission not found"},
	{Err: usecase.ErrDuplicateName, Status: http.StatusConflict, Message: "permission name or codename already exists"},
}

type PermissionHandler struct {
	permissions PermissionManager
}

func NewPermissionHandler(permissions PermissionManager) *PermissionHandler {
	return &PermissionHandler{permissions: permissions}
}

func (h *PermissionHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("", h.ListPermissions)
	r.POST("", h.CreatePermission)
	r.GET("/:id", h.GetPermission)
	r.PUT("/:id", h.UpdatePermission)
	r.DELETE("/:id", h.DeletePermission)
}

// ListPermissions godoc
// @Summary List every permission
// @Tags Permissions
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Success 200 {array} PermissionPayload
// @Router /api/v1/rbac/permissions [get]
func (h *PermissionHandler) ListPermissions(c *gin.Context) {
	permissions, err := h.permissions.List(c.Request.Context())
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to list permissions")
		return
	}

	payload := make([]PermissionPayload, 0, len(permissions))
	for _, permission := range permissions {
		payload = append(payload, newPermissionPayload(permission))
	}
	c.JSON(http.StatusOK, payload)
}

// GetPermission godoc
// @Summary Get a permission
// @Tags Permissions
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param id path string true "Permission ID"
// @Success 200 {object} PermissionPayload
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/rbac/permissions/{id} [get]
func (h *PermissionHandler) GetPermission(c *gin.Context) {
	permission, err := h.permissions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondWithMappedError(c, err, permissionErrorCases, http.StatusInternalServerError, "failed to load permission")
		return
	}
	c.JSON(http.StatusOK, newPermissionPayload(*permission))
}

// CreatePermission godoc
// @Summary Create a permission
// @Description An empty codename defaults to the name.
// @Tags Permissions
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param request body PermissionRequest true "Permission"
// @Success 201 {object} PermissionPayload
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/rbac/permissions [post]
func (h *PermissionHandler) CreatePermission(c *gin.Context) {
	var req PermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid permission payload"))
		return
	}

	permission, err := h.permissions.Create(c.Request.Context(), permissionInput(req))
	if err != nil {
		if respondValidation(c, err) {
			return
		}
		RespondWithMappedError(c, err, permissionErrorCases, http.StatusInternalServerError, "failed to create permission")
		return
	}
	c.JSON(http.StatusCreated, newPermissionPayload(*permission))
}

// UpdatePermission godoc
// @Summary Update a permission
// @Tags Permissions
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param id path string true "Permission ID"
// @Param request body PermissionRequest true "Permission"
// @Success 200 {object} PermissionPayload
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/rbac/permissions/{id} [put]
func (h *PermissionHandler) UpdatePermission(c *gin.Context) {
	var req PermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid permission payload"))
		return
	}

	permission, err := h.permissions.Update(c.Request.Context(), c.Param("id"), permissionInput(req))
	if err != nil {
		if respondValidation(c, err) {
			return
		}
		RespondWithMappedError(c, err, permissionErrorCases, http.StatusInternalServerError, "failed to update permission")
		return
	}
	c.JSON(http.StatusOK, newPermissionPayload(*permission))
}

// DeletePermission godoc
// @Summary Delete a permission
// @Description Children are detached and grants of the permission are removed.
// @Tags Permissions
// @Param Authorization header string true "Bearer access token"
// @Param id path string true "Permission ID"
// @Success 204 {string} string ""
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/rbac/permissions/{id} [delete]
func (h *PermissionHandler) DeletePermission(c *gin.Context) {
	if err := h.permissions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		RespondWithMappedError(c, err, permissionErrorCases, http.StatusInternalServerError, "failed to delete permission")
		return
	}
	c.Status(http.StatusNoContent)
}

func permissionInput(req PermissionRequest) usecase.PermissionInput {
	return usecase.PermissionInput{Name: req.Name, Codename: req.Codename, ParentID: req.Parent}
}
