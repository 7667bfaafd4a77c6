package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// requestLogger attaches a request-scoped logger to the request context and
// logs every request after it completes.
func requestLogger(base logr.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		logger := base.WithValues("method", c.Request.Method, "path", c.FullPath())
		c.Request = c.Request.WithContext(log.IntoContext(c.Request.Context(), logger))

		c.Next()

		status := c.Writer.Status()
		kv := []any{"status", status, "duration", time.Since(start).Round(time.Millisecond)}
		switch {
		case status >= http.StatusInternalServerError:
			var err error
			if last := c.Errors.Last(); last != nil {
				err = last.Err
			}
			logger.Error(err, "request failed", kv...)
		case c.FullPath() == "/healthz" || c.FullPath() == "/metrics":
			logger.V(2).Info("request", kv...)
		default:
			logger.V(1).Info("request", kv...)
		}
	}
}

// bearerAuth rejects requests that do not carry the admin token.
func bearerAuth(token string) gin.HandlerFunc {
	want := []byte(token)
	return func(c *gin.Context) {
		got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), want) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
