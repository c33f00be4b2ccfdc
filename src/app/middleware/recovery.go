package middleware

import (
	"log/slog"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"productservice/src/app/http/response"
)

// Recovery recovers from panics, logs them with the stack and answers 500.
// It must be the first middleware in the chain.
func Recovery(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestID := GetRequestID(c)
				log.Error("panic recovered",
					"request_id", requestID,
					"error", err,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
					"stack", string(debug.Stack()),
				)

				// Internal details stay in the log.
				response.InternalError(c, requestID)
				c.Abort()
			}
		}()

		c.Next()
	}
}
