package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chris/helpem/internal/auth"
	"github.com/chris/helpem/internal/metrics"
)

const userKey = "user_id"

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if user := c.GetString(userKey); user != "" {
			fields = append(fields, zap.String("user", user))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		logger.Info("request", fields...)
	}
}

// observe records request metrics labelled by route template, so ids in
// the path don't create new series.
func observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

// authenticate resolves the bearer token to a user id. Without an auth
// service every request belongs to owner.
func authenticate(svc *auth.Service, owner string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if svc == nil {
			c.Set(userKey, owner)
			c.Next()
			return
		}

		id, err := svc.Authenticate(c.GetHeader("Authorization"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Set(userKey, id.UserID)
		c.Next()
	}
}

func userID(c *gin.Context) string {
	return c.GetString(userKey)
}
