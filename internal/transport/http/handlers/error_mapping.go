package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	status, message := matchErrorCase(c, err, cases, fallbackStatus, fallbackMessage)
	c.JSON(status, NewErrorResponse(c, message))
}

// RespondWithMappedDetail is RespondWithMappedError for endpoints that answer with {detail}.
func RespondWithMappedDetail(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	status, message := matchErrorCase(c, err, cases, fallbackStatus, fallbackMessage)
	c.JSON(status, DetailResponse{Detail: message})
}

// matchErrorCase records unmapped errors on the context so the access log carries them.
func matchErrorCase(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) (int, string) {
	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			return cs.Status, cs.Message
		}
	}

	_ = c.Error(err)
	return fallbackStatus, fallbackMessage
}
