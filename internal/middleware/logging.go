package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RequestLogger logs one structured line per request. Probes are logged at debug.
func RequestLogger(logger *logrus.Logger) gin.HandlerFunc {
	entry := logger.WithField("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      status,
			"duration_ms": time.Since(start).Milliseconds(),
			"client_ip":   c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			fields["error"] = c.Errors.Last().Error()
		}

		log := entry.WithFields(fields)
		switch {
		case status >= 500:
			log.Error("Request failed")
		case status >= 400:
			log.Warn("Request rejected")
		case untracedPaths[c.Request.URL.Path]:
			log.Debug("Request served")
		default:
			log.Info("Request served")
		}
	}
}
