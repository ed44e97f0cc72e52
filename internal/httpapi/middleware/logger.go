package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/ai-chat/internal/logger"
	"github.com/suPer8Hu/ai-chat/internal/metrics"
)

// RequestLogger logs each request once it completes and feeds the HTTP
// metrics. Routes are labelled by pattern, not by raw path.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	log = log.WithComponent("http")
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		elapsed := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.ObserveHTTP(c.Request.Method, route, status, elapsed)

		l := log.WithContext(c.Request.Context())
		attrs := []any{
			slog.String("method", c.Request.Method),
			slog.String("route", route),
			slog.Int("status", status),
			slog.Duration("duration", elapsed),
			slog.String("remote_addr", c.ClientIP()),
		}
		if status >= 500 {
			l.Error("request completed", attrs...)
			return
		}
		l.Info("request completed", attrs...)
	}
}
