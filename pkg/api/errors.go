package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jakechorley/teamclean/pkg/core/services"
)

// statusFor maps workflow errors onto HTTP statuses
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrRequestExpired):
		return http.StatusGone
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNoSlotsRemaining),
		errors.Is(err, services.ErrUnitTaken),
		errors.Is(err, services.ErrDuplicatePending),
		errors.Is(err, services.ErrNotPending),
		errors.Is(err, services.ErrJobClosed),
		errors.Is(err, services.ErrHomeExists):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
