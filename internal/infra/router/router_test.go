package router

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/osirismin/CattoPic/internal/app/middleware"
	image_handler "github.com/osirismin/CattoPic/pkg/handler/image"
	tag_handler "github.com/osirismin/CattoPic/pkg/handler/tag"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, opts Options) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	r := NewRouter(
		image_handler.NewHandler(nil),
		tag_handler.NewHandler(nil),
		middleware.NewMiddleware("secret"),
		opts,
	)
	r.Setup(engine)
	return engine
}

func TestSetup_AdminRoutesRequireAPIKey(t *testing.T) {
	engine := newEngine(t, Options{})
	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/upload"},
		{http.MethodPut, "/api/images/x"},
		{http.MethodDelete, "/api/images/x"},
		{http.MethodPost, "/api/tags"},
		{http.MethodPost, "/api/tags/batch"},
		{http.MethodPut, "/api/tags/a"},
		{http.MethodDelete, "/api/tags/a"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestSetup_Health(t *testing.T) {
	engine := newEngine(t, Options{})
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Cache-Control"), "no-store")
}

func TestSetup_ServesLocalObjects(t *testing.T) {
	root := t.TempDir()
	key := filepath.Join("landscape", "original", "abc.jpg")
	require.NoError(t, os.MkdirAll(filepath.Join(root, filepath.Dir(key)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, key), []byte("jpeg-bytes"), 0o644))

	engine := newEngine(t, Options{LocalRoot: root})
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, LocalObjectsPrefix+"/landscape/original/abc.jpg", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "jpeg-bytes", w.Body.String())
}

func TestSetup_RateLimitExemptions(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.jpg"), []byte("x"), 0o644))
	engine := newEngine(t, Options{
		LocalRoot: root,
		RateLimit: middleware.RateLimitOptions{PerMinute: 1, Burst: 1},
	})

	do := func(method, path string) int {
		req := httptest.NewRequest(method, path, nil)
		req.RemoteAddr = "10.0.0.9:1000"
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w.Code
	}

	// 对象文件与健康检查不消耗整站配额
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(http.MethodGet, LocalObjectsPrefix+"/a.jpg"))
		assert.Equal(t, http.StatusOK, do(http.MethodGet, "/api/health"))
	}
	assert.Equal(t, http.StatusUnauthorized, do(http.MethodPost, "/api/upload"))
	assert.Equal(t, http.StatusTooManyRequests, do(http.MethodPost, "/api/upload"))
}
