package middleware

import "github.com/gin-gonic/gin"

// NoStore marks responses as uncacheable and sets baseline hardening headers.
// Progress and stats change continuously during a run.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		c.Next()
	}
}
