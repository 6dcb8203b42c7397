package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CORSMiddleware admits browser callers from the configured origins.
// An empty whitelist admits every origin, the usual setup when the
// server fronts a localhost dashboard. Preflight requests are answered
// here and never reach a handler.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if originAllowed(allowedOrigins, origin) {
			header := c.Writer.Header()
			if origin != "" {
				header.Set("Access-Control-Allow-Origin", origin)
			} else if len(allowedOrigins) > 0 {
				header.Set("Access-Control-Allow-Origin", allowedOrigins[0])
			}
			header.Set("Access-Control-Allow-Credentials", "true")
			header.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
			header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
			header.Set("Access-Control-Max-Age", "86400")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// originAllowed reports whether origin passes the whitelist. An empty
// whitelist or a "*" entry admits everything.
func originAllowed(whitelist []string, origin string) bool {
	if len(whitelist) == 0 {
		return true
	}
	for _, entry := range whitelist {
		if entry == "*" || entry == origin {
			return true
		}
	}
	return false
}
