package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/martijn/vmorch/internal/api/dto"
	"github.com/martijn/vmorch/internal/core/repository"
	"github.com/martijn/vmorch/internal/execution"
	"github.com/martijn/vmorch/internal/presets"
)

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, dto.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}

func respondLookupError(c *gin.Context, id string, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		respondError(c, http.StatusNotFound, fmt.Sprintf("Job not found: %s", id))
		return
	}
	respondError(c, http.StatusInternalServerError, err.Error())
}

// executeStatus maps an Execute failure to an HTTP status.
func executeStatus(err error) int {
	var rejected *execution.RejectedError
	switch {
	case errors.As(err, &rejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, execution.ErrEmptyCommand),
		errors.Is(err, execution.ErrUnknownStrategy),
		errors.Is(err, execution.ErrMissingHost),
		errors.Is(err, presets.ErrUnknownPreset):
		return http.StatusBadRequest
	case errors.Is(err, execution.ErrShuttingDown):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func respondExecuteError(c *gin.Context, jobID string, err error) {
	status := executeStatus(err)
	c.JSON(status, dto.ErrorResponse{
		Error:   http.StatusText(status),
		Message: err.Error(),
		Code:    status,
		JobID:   jobID,
	})
}
