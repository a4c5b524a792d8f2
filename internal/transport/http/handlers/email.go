package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
	"github.com/arklim/rbac-auth-service/internal/usecase"
)

// EmailCodeIssuer implements the one-time email code channel.
type EmailCodeIssuer interface {
	RequestCode(ctx context.Context, email string) (usecase.CodeRequestResult, error)
	VerifyCode(ctx context.Context, email, code string) (*domain.User, error)
	ChangePassword(ctx context.Context, email, code, newPassword string) error
}

// codeErrorCases is shared by every endpoint that checks a submitted code.
var codeErrorCases = []ErrorCase{
	{Err: usecase.ErrCodeNotSent, Status: http.StatusBadRequest, Message: "Verification code expired or not sent."},
	{Err: usecase.ErrCodeExpired, Status: http.StatusBadRequest, Message: "Verification code expired."},
	{Err: usecase.ErrCodeMismatch, Status: http.StatusBadRequest, Message: "Invalid verification code."},
	{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "User does not exist."},
}

// EmailHandler exposes email code login and password change.
type EmailHandler struct {
	codes EmailCodeIssuer
}

func NewEmailHandler(codes EmailCodeIssuer) *EmailHandler {
	return &EmailHandler{codes: codes}
}

// RegisterRoutes binds the email routes. codeMiddlewares run ahead of the code request handler.
func (h *EmailHandler) RegisterRoutes(r *gin.RouterGroup, codeMiddlewares ...gin.HandlerFunc) {
	r.POST("/send-email-code/", chain(codeMiddlewares, h.SendCode)...)
	r.POST("/email-login/", h.EmailLogin)
	r.POST("/change-password/", h.ChangePassword)
}

// SendCode godoc
// @Summary Email a one-time login code
// @Tags Email
// @Accept json
// @Produce json
// @Param request body SendEmailCodeRequest true "Recipient"
// @Success 200 {object} SendEmailCodeResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 429 {object} middleware.RateLimitResponse
// @Router /api/v1/email/send-email-code/ [post]
func (h *EmailHandler) SendCode(c *gin.Context) {
	var req SendEmailCodeRequest
	_ = c.ShouldBindJSON(&req)

	if strings.TrimSpace(req.Email) == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "Email is required."))
		return
	}

	result, err := h.codes.RequestCode(c.Request.Context(), req.Email)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrEmailRequired, Status: http.StatusBadRequest, Message: "Email is required."},
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "User does not exist."},
		}, http.StatusInternalServerError, "Failed to send verification code.")
		return
	}

	c.JSON(http.StatusOK, SendEmailCodeResponse{
		Message:       "Verification code sent.",
		DeliveryError: result.DeliveryError,
	})
}

// EmailLogin godoc
// @Summary Log in with an emailed code
// @Tags Email
// @Accept json
// @Produce json
// @Param request body EmailLoginRequest true "Email and code"
// @Success 200 {object} EmailLoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/email/email-login/ [post]
func (h *EmailHandler) EmailLogin(c *gin.Context) {
	var req EmailLoginRequest
	_ = c.ShouldBindJSON(&req)

	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Code) == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "Email and code are required."))
		return
	}

	user, err := h.codes.VerifyCode(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		RespondWithMappedError(c, err, codeErrorCases, http.StatusInternalServerError, "Login failed.")
		return
	}

	c.JSON(http.StatusOK, EmailLoginResponse{
		User:    EmailUserPayload{Email: user.Email, Username: user.Username},
		Message: "Login successful.",
	})
}

// ChangePassword godoc
// @Summary Change a password with an emailed code
// @Description Verifies the code, stores the new password and revokes every refresh token of the account.
// @Tags Email
// @Accept json
// @Produce json
// @Param request body ChangePasswordRequest true "Email, code and new password"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/email/change-password/ [post]
func (h *EmailHandler) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	_ = c.ShouldBindJSON(&req)

	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Code) == "" || req.NewPassword == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "Email, code and new password are required."))
		return
	}

	err := h.codes.ChangePassword(c.Request.Context(), req.Email, req.Code, req.NewPassword)
	if err != nil {
		cases := append([]ErrorCase{
			{Err: usecase.ErrWeakPassword, Status: http.StatusBadRequest, Message: "Password does not meet requirements."},
		}, codeErrorCases...)
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "Failed to change password.")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "Password changed successfully."})
}
