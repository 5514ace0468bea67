package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/synapse/internal/domain/agent"
	"github.com/GriffinCanCode/synapse/internal/domain/terminal"
)

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, terminal.ErrSessionNotFound),
		errors.Is(err, agent.ErrAgentNotFound):
		return http.StatusNotFound
	case errors.Is(err, agent.ErrInvalidState),
		errors.Is(err, agent.ErrLimitReached),
		errors.Is(err, terminal.ErrWriteFailed),
		errors.Is(err, terminal.ErrSessionClosed):
		return http.StatusConflict
	case errors.Is(err, terminal.ErrInvalidSize):
		return http.StatusBadRequest
	case errors.Is(err, terminal.ErrSpawn),
		errors.Is(err, agent.ErrSpawn):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as a JSON error body
func (h *Handlers) respondError(c *gin.Context, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	_ = c.Error(err)
	c.JSON(code, gin.H{"error": err.Error()})
}

// badRequest reports a malformed request body or parameter
func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
