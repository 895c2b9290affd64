package middleware

import (
	"Parley/internal/pkg/logger"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const traceHeader = "X-Trace-ID"

// 上游传入的 trace id 只接受常见字符，避免日志注入
var traceIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,64}$`)

func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(traceHeader)
		if !traceIDPattern.MatchString(traceID) {
			traceID = uuid.NewString()
		}

		c.Set(logger.TraceIDKey, traceID)
		c.Request = c.Request.WithContext(logger.WithTraceID(c.Request.Context(), traceID))

		c.Header(traceHeader, traceID)
		c.Next()
	}
}
