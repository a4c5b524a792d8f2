package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
	"github.com/arklim/rbac-auth-service/internal/usecase"
)

// RoleManager administers roles.
type RoleManager interface {
	List(ctx context.Context, filter domain.Filter, page domain.Page) (domain.PageResult[domain.Role], error)
	Get(ctx context.Context, id string) (*domain.Role, error)
	Create(ctx context.Context, input usecase.RoleInput) (*domain.Role, error)
	Update(ctx context.Context, id string, input usecase.RoleInput) (*domain.Role, error)
	Delete(ctx context.Context, id string) error
}

var roleErrorCases = []ErrorCase{
	{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "role not found"},
	{Err: usecase.ErrDuplicateName, Status: http.StatusConflict, Message: "role already exists"},
}

type RoleHandler struct {
	roles RoleManager
}

func NewRoleHandler(roles RoleManager) *RoleHandler {
	return &RoleHandler{roles: roles}
}

func (h *RoleHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("", h.ListRoles)
	r.POST("", h.CreateRole)
	r.GET("/:id", h.GetRole)
	r.PUT("/:id", h.UpdateRole)
	r.DELETE("/:id", h.DeleteRole)
}

// ListRoles godoc
// @Summary List roles
// @Description Paginated, ordered by name. Filters: name, description, created_at[], updated_at[].
// @Tags Roles
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} PageResponse[RolePayload]
// @Router /api/v1/rbac/roles [get]
func (h *RoleHandler) ListRoles(c *gin.Context) {
	filter := domain.RoleFilterSchema.Parse(c.Request.URL.Query())

	result, err := h.roles.List(c.Request.Context(), filter, parsePage(c))
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to list roles")
		return
	}

	payload := make([]RolePayload, 0, len(result.Results))
	for _, role := range result.Results {
		payload = append(payload, newRolePayload(role))
	}
	c.JSON(http.StatusOK, PageResponse[RolePayload]{Count: result.Count, Results: payload})
}

// GetRole godoc
// @Summary Get a role
// @Tags Roles
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param id path string true "Role ID"
// @Success 200 {object} RolePayload
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/rbac/roles/{id} [get]
func (h *RoleHandler) GetRole(c *gin.Context) {
	role, err := h.roles.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondWithMappedError(c, err, roleErrorCases, http.StatusInternalServerError, "failed to load role")
		return
	}
	c.JSON(http.StatusOK, newRolePayload(*role))
}

// CreateRole godoc
// @Summary Create a role
// @Tags Roles
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param request body RoleRequest true "Role"
// @Success 201 {object} RolePayload
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/rbac/roles [post]
func (h *RoleHandler) CreateRole(c *gin.Context) {
	var req RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid role payload"))
		return
	}

	role, err := h.roles.Create(c.Request.Context(), usecase.RoleInput{Name: req.Name, Description: req.Description})
	if err != nil {
		if respondValidation(c, err) {
			return
		}
		RespondWithMappedError(c, err, roleErrorCases, http.StatusInternalServerError, "failed to create role")
		return
	}
	c.JSON(http.StatusCreated, newRolePayload(*role))
}

// UpdateRole godoc
// @Summary Update a role
// @Tags Roles
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param id path string true "Role ID"
// @Param request body RoleRequest true "Role"
// @Success 200 {object} RolePayload
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/rbac/roles/{id} [put]
func (h *RoleHandler) UpdateRole(c *gin.Context) {
	var req RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid role payload"))
		return
	}

	role, err := h.roles.Update(c.Request.Context(), c.Param("id"), usecase.RoleInput{Name: req.Name, Description: req.Description})
	if err != nil {
		if respondValidation(c, err) {
			return
		}
		RespondWithMappedError(c, err, roleErrorCases, http.StatusInternalServerError, "failed to update role")
		return
	}
	c.JSON(http.StatusOK, newRolePayload(*role))
}

// DeleteRole godoc
// @Summary Delete a role
// @Description Grants and user assignments of the role are removed with it.
// @Tags Roles
// @Param Authorization header string true "Bearer access token"
// @Param id path string true "Role ID"
// @Success 204 {string} string ""
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/rbac/roles/{id} [delete]
func (h *RoleHandler) DeleteRole(c *gin.Context) {
	if err := h.roles.Delete(c.Request.Context(), c.Param("id")); err != nil {
		RespondWithMappedError(c, err, roleErrorCases, http.StatusInternalServerError, "failed to delete role")
		return
	}
	c.Status(http.StatusNoContent)
}
