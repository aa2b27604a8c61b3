// internal/app/middleware/cors.go
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CorsOptions 跨域配置
type CorsOptions struct {
	// AllowOrigins 为空或包含 "*" 时允许任意来源
	AllowOrigins []string

	// Paths 只对这些前缀下的请求添加跨域头
	Paths []string
}

// Cors 为 Paths 下的请求添加跨域头，不下发 Allow-Credentials
func Cors(opts CorsOptions) gin.HandlerFunc {
	allowAll := len(opts.AllowOrigins) == 0
	allowed := make(map[string]struct{}, len(opts.AllowOrigins))
	for _, o := range opts.AllowOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			allowAll = true
		}
		if o != "" {
			allowed[o] = struct{}{}
		}
	}
	allowHeaders := strings.Join([]string{"Authorization", "Content-Type", HeaderAPIKey, "Accept"}, ", ")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" || !hasAnyPrefix(c.Request.URL.Path, opts.Paths) {
			c.Next()
			return
		}

		c.Writer.Header().Add("Vary", "Origin")
		if _, ok := allowed[origin]; !ok && !allowAll {
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Next()
			return
		}

		if allowAll {
			c.Header("Access-Control-Allow-Origin", "*")
		} else {
			c.Header("Access-Control-Allow-Origin", origin)
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", allowHeaders)
		// 随机接口靠 Location 跳转，限流靠 Retry-After
		c.Header("Access-Control-Expose-Headers", "Content-Length, Location, Retry-After")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
