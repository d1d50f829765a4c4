package middlewares

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// MaxBodyBytes caps the request body size. Requests that declare an oversized
// Content-Length are refused with 413 before any reading happens; chunked
// uploads without a length hit the reader cap during bind instead.
func MaxBodyBytes(max int64) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.Request.ContentLength > max {
			ctx.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"success": false,
				"error": gin.H{
					"code":      "PAYLOAD_TOO_LARGE",
					"message":   "Request body is too large.",
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				},
			})

			return
		}

		ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, max)

		ctx.Next()
	}
}
