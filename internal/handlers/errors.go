package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prepstack/attempt-service/internal/services"
	"github.com/prepstack/attempt-service/internal/validator"
)

// handleServiceError translates service errors to HTTP responses. Typed
// errors first, then sentinels; anything unrecognized is a 500.
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors,
		})
		return
	}

	var permissionError *services.PermissionError
	if errors.As(err, &permissionError) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
			Details: map[string]interface{}{
				"action":   permissionError.Action,
				"resource": permissionError.Resource,
			},
		})
		return
	}

	var businessRuleError *services.BusinessRuleError
	if errors.As(err, &businessRuleError) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: businessRuleError.Message,
			Details: map[string]interface{}{
				"rule": businessRuleError.Rule,
			},
		})
		return
	}

	var poolError *services.InsufficientPoolError
	if errors.As(err, &poolError) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: "Section pool is too small",
			Details: map[string]interface{}{
				"section":   poolError.SectionTitle,
				"pool_size": poolError.PoolSize,
				"requested": poolError.Requested,
			},
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrSeriesNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Test series not found"})
	case errors.Is(err, services.ErrAttemptNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Attempt not found"})
	case errors.Is(err, services.ErrQuestionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Question not found"})

	case errors.Is(err, services.ErrAttemptLimitExceeded):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Maximum attempts for this series reached"})
	case errors.Is(err, services.ErrAttemptInProgress):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "An attempt is already in progress for this series"})
	case errors.Is(err, services.ErrAttemptNotInProgress):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Attempt is not in progress"})
	case errors.Is(err, services.ErrConcurrencyConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Attempt was modified concurrently, retry with fresh state"})
	case errors.Is(err, services.ErrAttemptAlreadyGraded):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Attempt is already graded"})
	case errors.Is(err, services.ErrAttemptNotGraded):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Attempt is not graded yet"})

	case errors.Is(err, services.ErrSeriesWindowClosed):
		c.JSON(http.StatusGone, ErrorResponse{Message: "Series is outside its live window"})
	case errors.Is(err, services.ErrAttemptTerminated):
		c.JSON(http.StatusGone, ErrorResponse{Message: "Attempt was terminated for integrity violations"})

	case errors.Is(err, services.ErrUnknownQuestion):
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Question is not part of this attempt"})
	case errors.Is(err, services.ErrStrictModeDisabled):
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Strict mode is not enabled for this attempt"})

	default:
		h.LogError(c, err, "Unexpected service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "Internal server error"})
	}
}
