package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/dbferry/dbferry/internal/api/dto"
)

// ErrorHandlerMiddleware converts panics and unhandled gin errors into
// JSON 500 responses. Handlers map their own service errors to status
// codes, so anything that reaches this point is a server-side fault.
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, dto.ErrorResponse{
					Error:   http.StatusText(http.StatusInternalServerError),
					Message: "An unexpected error occurred",
					Code:    http.StatusInternalServerError,
				})
			}
		}()

		c.Next()

		if last := c.Errors.Last(); last != nil {
			c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
				Error:   http.StatusText(http.StatusInternalServerError),
				Message: last.Error(),
				Code:    http.StatusInternalServerError,
			})
		}
	}
}
