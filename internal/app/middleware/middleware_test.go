package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/test", handlers...)
	return r
}

func TestAPIKeyAuth(t *testing.T) {
	tests := []struct {
		name    string
		apiKey  string
		headers map[string]string
		want    int
	}{
		{"未配置时放行", "", nil, http.StatusOK},
		{"缺少 Key", "secret", nil, http.StatusUnauthorized},
		{"Bearer 正确", "secret", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
		{"X-API-Key 正确", "secret", map[string]string{HeaderAPIKey: "secret"}, http.StatusOK},
		{"Key 错误", "secret", map[string]string{HeaderAPIKey: "wrong"}, http.StatusUnauthorized},
		{"非 Bearer 格式", "secret", map[string]string{"Authorization": "Basic secret"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newEngine(NewMiddleware(tt.apiKey).APIKeyAuth())
			req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func doGet(r http.Handler, path, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remote
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(RateLimitOptions{PerMinute: 1, Burst: 2, Exempt: []string{"/i/"}}))
	r.GET("/api/test", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/i/*path", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = doGet(r, "/api/test", "10.0.0.1:12345")
		codes = append(codes, last.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "1", last.Header().Get("X-RateLimit-Limit"))
	retry, err := strconv.Atoi(last.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.InDelta(t, 60, retry, 1)

	t.Run("其他 IP 不受影响", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, doGet(r, "/api/test", "10.0.0.2:12345").Code)
	})
	t.Run("豁免路径不计数", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			w := doGet(r, "/i/landscape/original/a.jpg", "10.0.0.1:12345")
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
		}
	})
}

func TestRateLimit_Disabled(t *testing.T) {
	r := newEngine(RateLimit(RateLimitOptions{}))
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, doGet(r, "/api/test", "10.0.0.1:1").Code)
	}
}

func TestVisitorTable(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	table := newVisitorTable(60, 1)
	table.now = func() time.Time { return now }

	ok, _ := table.allow("a")
	assert.True(t, ok)
	ok, wait := table.allow("a")
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)

	t.Run("令牌按速率恢复", func(t *testing.T) {
		now = now.Add(time.Second)
		ok, _ := table.allow("a")
		assert.True(t, ok)
	})

	t.Run("空闲 IP 被清扫", func(t *testing.T) {
		table.allow("b")
		assert.Equal(t, 2, table.size())
		now = now.Add(visitorIdleTTL + time.Minute)
		table.allow("c")
		assert.Equal(t, 1, table.size())
	})

	t.Run("突发默认等于每分钟配额", func(t *testing.T) {
		assert.Equal(t, 30, newVisitorTable(30, 0).burst)
	})
}

func TestCors(t *testing.T) {
	tests := []struct {
		name       string
		origins    []string
		method     string
		path       string
		origin     string
		wantCode   int
		wantOrigin string
	}{
		{"允许任意来源", []string{"*"}, http.MethodOptions, "/api/test", "https://a.com", http.StatusNoContent, "*"},
		{"未配置等于任意来源", nil, http.MethodGet, "/api/test", "https://a.com", http.StatusOK, "*"},
		{"白名单来源原样返回", []string{"https://a.com/"}, http.MethodOptions, "/api/test", "https://a.com", http.StatusNoContent, "https://a.com"},
		{"非白名单预检被拒绝", []string{"https://a.com"}, http.MethodOptions, "/api/test", "https://b.com", http.StatusForbidden, ""},
		{"非白名单普通请求不带头", []string{"https://a.com"}, http.MethodGet, "/api/test", "https://b.com", http.StatusOK, ""},
		{"图片文件同样允许跨域", []string{"*"}, http.MethodGet, "/i/a.jpg", "https://a.com", http.StatusOK, "*"},
		{"其他路径不处理", []string{"*"}, http.MethodGet, "/other", "https://a.com", http.StatusOK, ""},
		{"没有 Origin 不处理", []string{"*"}, http.MethodGet, "/api/test", "", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(Cors(CorsOptions{AllowOrigins: tt.origins, Paths: []string{"/api/", "/i/"}}))
			ok := func(c *gin.Context) { c.Status(http.StatusOK) }
			r.GET("/api/test", ok)
			r.GET("/i/a.jpg", ok)
			r.GET("/other", ok)

			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
		})
	}
}
