package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
	"github.com/arklim/rbac-auth-service/internal/usecase"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// parsePage reads page and page_size, clamping both into range.
func parsePage(c *gin.Context) domain.Page {
	page := domain.Page{Number: 1, Size: defaultPageSize}

	if raw := c.Query("page"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			page.Number = n
		}
	}
	if raw := c.Query("page_size"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			page.Size = min(n, maxPageSize)
		}
	}

	return page
}

// respondValidation writes a 400 carrying the validation message when err is a validation failure.
func respondValidation(c *gin.Context, err error) bool {
	if !errors.Is(err, usecase.ErrValidation) {
		return false
	}
	c.JSON(http.StatusBadRequest, NewErrorResponse(c, err.Error()))
	return true
}
