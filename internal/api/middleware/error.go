package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/martijn/vmorch/internal/api/dto"
	"github.com/martijn/vmorch/internal/logger"
)

// ErrorHandlerMiddleware recovers handler panics and renders errors attached
// with c.Error when the handler wrote no body of its own.
func ErrorHandlerMiddleware(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if p := recover(); p != nil {
				logger.FromContext(c.Request.Context(), log).Error("panic in handler",
					"method", c.Request.Method, "path", c.Request.URL.Path, "panic", p)
				abortWithError(c, http.StatusInternalServerError, "An unexpected error occurred")
			}
		}()

		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		last := c.Errors.Last()
		status := http.StatusInternalServerError
		if last.IsType(gin.ErrorTypeBind) {
			status = http.StatusBadRequest
		}
		abortWithError(c, status, last.Error())
	}
}

func abortWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, dto.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}
