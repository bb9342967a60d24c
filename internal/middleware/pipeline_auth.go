package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "pennywise/internal/errors"
	"pennywise/internal/logger"
)

const callerKey = "caller"

// PipelineAuthMiddleware guards the job trigger endpoints. The key is read
// from X-API-Key or, for schedulers that can only send bearer tokens, from
// "Authorization: Bearer <key>". With no key configured the endpoints are
// disabled.
func PipelineAuthMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			abortWithAppError(c, apperrors.ErrPipelineNotConfigured)
			return
		}
		if subtle.ConstantTimeCompare([]byte(pipelineKey(c)), []byte(apiKey)) != 1 {
			logger.Get().Warnw("rejected pipeline call", "path", c.Request.URL.Path, "client_ip", c.ClientIP())
			abortWithAppError(c, apperrors.ErrInvalidAPIKey)
			return
		}
		c.Set(callerKey, "pipeline")
		c.Next()
	}
}

func pipelineKey(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	if token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok {
		return token
	}
	return ""
}
