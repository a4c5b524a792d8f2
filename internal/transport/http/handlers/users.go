package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
	"github.com/arklim/rbac-auth-service/internal/transport/http/middleware"
	"github.com/arklim/rbac-auth-service/internal/usecase"
)

// UserManager administers accounts and their roles.
type UserManager interface {
	List(ctx context.Context, filter domain.Filter, page domain.Page) (domain.PageResult[domain.UserWithRoles], error)
	Get(ctx context.Context, id string) (*domain.User, error)
	Create(ctx context.Context, actorID string, input usecase.CreateUserInput) (*domain.User, error)
	Update(ctx context.Context, actorID, id string, input usecase.UpdateUserInput) (*domain.User, error)
	Delete(ctx context.Context, id string) error
}

var userErrorCases = []ErrorCase{
	{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "user not found"},
	{Err: usecase.ErrDuplicateName, Status: http.StatusConflict, Message: "username or email already exists"},
}

// UserHandler serves the all-users administration endpoints.
type UserHandler struct {
	users UserManager
}

func NewUserHandler(users UserManager) *UserHandler {
	return &UserHandler{users: users}
}

func (h *UserHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("", h.ListUsers)
	r.POST("", h.CreateUser)
	r.GET("/:id", h.GetUser)
	r.PUT("/:id", h.UpdateUser)
	r.DELETE("/:id", h.DeleteUser)
}

// ListUsers godoc
// @Summary List users with their roles
// @Description Filters: username, name, email, phone_number, address, is_active, last_login[], date_joined[], roles[].
// @Tags Users
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} PageResponse[UserPayload]
// @Router /api/v1/rbac/all-users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	query := c.Request.URL.Query()
	filter := domain.UserFilterSchema.Parse(query)
	filter.RoleIDs = query["roles[]"]

	result, err := h.users.List(c.Request.Context(), filter, parsePage(c))
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to list users")
		return
	}

	payload := make([]UserPayload, 0, len(result.Results))
	for _, user := range result.Results {
		roles := user.Roles
		if roles == nil {
			roles = []domain.Role{}
		}
		payload = append(payload, newUserPayload(user.User, roles))
	}
	c.JSON(http.StatusOK, PageResponse[UserPayload]{Count: result.Count, Results: payload})
}

// GetUser godoc
// @Summary Get a user
// @Tags Users
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param id path string true "User ID"
// @Success 200 {object} UserPayload
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/rbac/all-users/{id} [get]
func (h *UserHandler) GetUser(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondWithMappedError(c, err, userErrorCases, http.StatusInternalServerError, "failed to load user")
		return
	}
	c.JSON(http.StatusOK, newUserPayload(*user, nil))
}

// CreateUser godoc
// @Summary Create a user
// @Description The password is checked against the password policy. Unknown role ids are ignored.
// @Tags Users
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param request body UserCreateRequest true "User"
// @Success 201 {object} UserPayload
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/rbac/all-users [post]
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req UserCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid user payload"))
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	actorID, _ := middleware.GetAuthenticatedUserID(c)
	user, err := h.users.Create(c.Request.Context(), actorID, usecase.CreateUserInput{
		Username:    req.Username,
		Email:       req.Email,
		Name:        req.Name,
		PhoneNumber: req.PhoneNumber,
		Address:     req.Address,
		Password:    req.Password,
		IsActive:    isActive,
		RoleIDs:     req.Roles,
	})
	if err != nil {
		if respondValidation(c, err) {
			return
		}
		RespondWithMappedError(c, err, userErrorCases, http.StatusInternalServerError, "failed to create user")
		return
	}
	c.JSON(http.StatusCreated, newUserPayload(*user, nil))
}

// UpdateUser godoc
// @Summary Update a user
// @Description Omitted fields are kept. A roles list replaces the assignments; omit it to keep them.
// @Tags Users
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param id path string true "User ID"
// @Param request body UserUpdateRequest true "Changes"
// @Success 200 {object} UserPayload
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/rbac/all-users/{id} [put]
func (h *UserHandler) UpdateUser(c *gin.Context) {
	var req UserUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid user payload"))
		return
	}

	actorID, _ := middleware.GetAuthenticatedUserID(c)
	user, err := h.users.Update(c.Request.Context(), actorID, c.Param("id"), usecase.UpdateUserInput{
		Username:    req.Username,
		Email:       req.Email,
		Name:        req.Name,
		PhoneNumber: req.PhoneNumber,
		Address:     req.Address,
		IsActive:    req.IsActive,
		Password:    req.Password,
		RoleIDs:     req.Roles,
	})
	if err != nil {
		if respondValidation(c, err) {
			return
		}
		RespondWithMappedError(c, err, userErrorCases, http.StatusInternalServerError, "failed to update user")
		return
	}
	c.JSON(http.StatusOK, newUserPayload(*user, nil))
}

// DeleteUser godoc
// @Summary Delete a user
// @Tags Users
// @Param Authorization header string true "Bearer access token"
// @Param id path string true "User ID"
// @Success 204 {string} string ""
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/rbac/all-users/{id} [delete]
func (h *UserHandler) DeleteUser(c *gin.Context) {
	if err := h.users.Delete(c.Request.Context(), c.Param("id")); err != nil {
		RespondWithMappedError(c, err, userErrorCases, http.StatusInternalServerError, "failed to delete user")
		return
	}
	c.Status(http.StatusNoContent)
}
