/*
 * @Description: 管理接口的 API Key 校验
 * @Author: 安知鱼
 * @Date: 2025-06-15 12:16:18
 * @LastEditTime: 2026-10-12 14:05:31
 * @LastEditors: 安知鱼
 */
// internal/app/middleware/auth.go
package middleware

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"

	"github.com/osirismin/CattoPic/pkg/response"

	"github.com/gin-gonic/gin"
)

// HeaderAPIKey 除 Authorization: Bearer 之外也可以用这个头传递 API Key
const HeaderAPIKey = "X-API-Key"

type Middleware struct {
	apiKey string
}

// NewMiddleware apiKey 为空时所有管理接口都放行
func NewMiddleware(apiKey string) *Middleware {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		log.Println("⚠️ [APIKeyAuth] 未配置 System.APIKey，管理接口不做鉴权")
	}
	return &Middleware{apiKey: apiKey}
}

// APIKeyAuth 是一个强制性的 API Key 认证中间件
func (m *Middleware) APIKeyAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.apiKey == "" {
			c.Next()
			return
		}

		key := requestAPIKey(c)
		if key == "" {
			response.Fail(c, http.StatusUnauthorized, "请求未携带 API Key，无权限访问")
			c.Abort()
			return
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(m.apiKey)) != 1 {
			log.Printf("[APIKeyAuth] API Key 校验失败: %s %s", c.Request.Method, c.Request.URL.Path)
			response.Fail(c, http.StatusUnauthorized, "无效的 API Key")
			c.Abort()
			return
		}
		c.Next()
	}
}

func requestAPIKey(c *gin.Context) string {
	if key := strings.TrimSpace(c.GetHeader(HeaderAPIKey)); key != "" {
		return key
	}
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
