package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger 访问日志中间件，4xx/5xx使用不同前缀
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		switch {
		case status >= 500:
			log.Printf("❌ [HTTP] %s %s %d %v %s", c.Request.Method, path, status, latency, c.Errors.ByType(gin.ErrorTypePrivate).String())
		case status >= 400:
			log.Printf("⚠️ [HTTP] %s %s %d %v", c.Request.Method, path, status, latency)
		default:
			log.Printf("[HTTP] %s %s %d %v", c.Request.Method, path, status, latency)
		}
	}
}
