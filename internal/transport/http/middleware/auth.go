package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/rbac-auth-service/internal/infra/security"
	"github.com/arklim/rbac-auth-service/internal/usecase"
)

// AccessTokenParser verifies bearer tokens.
type AccessTokenParser interface {
	ParseAccessToken(ctx context.Context, raw string) (*security.AccessTokenClaims, error)
}

// RequireAuth validates the Authorization header and stores the caller's claims on the context.
func RequireAuth(parser AccessTokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				NewErrorResponse(c, "Authentication credentials were not provided."))
			return
		}

		claims, err := parser.ParseAccessToken(c.Request.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, usecase.ErrExpiredAccessToken):
				c.AbortWithStatusJSON(http.StatusUnauthorized, NewErrorResponse(c, "access token expired"))
			case errors.Is(err, usecase.ErrInvalidAccessToken):
				c.AbortWithStatusJSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid access token"))
			default:
				_ = c.Error(err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, NewErrorResponse(c, "authentication failed"))
			}
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(ClaimsKey, claims)
		GetRequestContext(c).UserID = claims.UserID

		c.Next()
	}
}

// RequireRole admits callers whose access token carries any of roles. It must run after RequireAuth.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetAccessClaims(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				NewErrorResponse(c, "Authentication credentials were not provided."))
			return
		}

		if !hasAnyRole(claims.Roles, roles) {
			c.AbortWithStatusJSON(http.StatusForbidden,
				NewErrorResponse(c, "You do not have permission to perform this action."))
			return
		}

		c.Next()
	}
}

func hasAnyRole(userRoles []string, requiredRoles []string) bool {
	held := make(map[string]struct{}, len(userRoles))
	for _, role := range userRoles {
		held[role] = struct{}{}
	}

	for _, required := range requiredRoles {
		if _, ok := held[required]; ok {
			return true
		}
	}
	return false
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// GetAuthenticatedUserID retrieves the user ID set by RequireAuth.
func GetAuthenticatedUserID(c *gin.Context) (string, bool) {
	id := c.GetString(UserIDKey)
	return id, id != ""
}

// GetAccessClaims retrieves the claims set by RequireAuth.
func GetAccessClaims(c *gin.Context) (*security.AccessTokenClaims, bool) {
	v, exists := c.Get(ClaimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*security.AccessTokenClaims)
	return claims, ok && claims != nil
}
