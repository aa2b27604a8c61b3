/*
 * @Description:
 * @Author: 安知鱼
 * @Date: 2025-06-15 11:30:55
 * @LastEditTime: 2026-10-12 18:20:07
 * @LastEditors: 安知鱼
 */
// internal/infra/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osirismin/CattoPic/internal/app/middleware"
	image_handler "github.com/osirismin/CattoPic/pkg/handler/image"
	tag_handler "github.com/osirismin/CattoPic/pkg/handler/tag"
)

// LocalObjectsPrefix 本地存储时对象文件的访问前缀
const LocalObjectsPrefix = "/i"

// NoCacheMiddleware 全局反缓存中间件，确保所有API响应都不会被CDN缓存
func NoCacheMiddleware() gin.HandlerFunc {
	return gin.HandlerFunc(func(c *gin.Context) {
		// 🚫 强制禁用所有形式的缓存
		c.Header("Cache-Control", "no-cache, no-store, must-revalidate, private, max-age=0")
		c.Header("Pragma", "no-cache")
		c.Header("Expires", "0")
		c.Header("X-Content-Type-Options", "nosniff")

		// 继续处理请求
		c.Next()
	})
}

// Options 路由相关的配置
type Options struct {
	// LocalRoot 非空时在 LocalObjectsPrefix 下提供本地存储的对象文件
	LocalRoot string

	// CORSOrigins 允许跨域访问的来源，为空表示任意来源
	CORSOrigins []string

	// RateLimit 作用于除随机接口、健康检查和对象文件以外的全部请求
	RateLimit middleware.RateLimitOptions

	// RandomRateLimit 随机接口单独计数
	RandomRateLimit middleware.RateLimitOptions
}

// Router 封装了应用的所有路由和其依赖的处理器。
type Router struct {
	imageHandler *image_handler.Handler
	tagHandler   *tag_handler.Handler
	mw           *middleware.Middleware
	opts         Options
}

// NewRouter 是 Router 的构造函数，通过依赖注入接收所有处理器。
func NewRouter(
	imageHandler *image_handler.Handler,
	tagHandler *tag_handler.Handler,
	mw *middleware.Middleware,
	opts Options,
) *Router {
	return &Router{
		imageHandler: imageHandler,
		tagHandler:   tagHandler,
		mw:           mw,
		opts:         opts,
	}
}

// Setup 将所有路由注册到 Gin 引擎。
// 这是在 app.go 中将被调用的唯一入口点。
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.Cors(middleware.CorsOptions{
		AllowOrigins: r.opts.CORSOrigins,
		Paths:        []string{"/api/", LocalObjectsPrefix + "/"},
	}))

	general := r.opts.RateLimit
	general.Exempt = append(general.Exempt, "/api/random", "/api/health", LocalObjectsPrefix+"/")
	engine.Use(middleware.RateLimit(general))

	// 创建 /api 分组
	apiGroup := engine.Group("/api")

	// 随机图片会被跳转，不加反缓存中间件，由处理器自行设置
	apiGroup.GET("/random", middleware.RateLimit(r.opts.RandomRateLimit), r.imageHandler.Random)

	// 应用全局反缓存中间件
	apiGroup.Use(NoCacheMiddleware())
	apiGroup.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 注册各个模块的路由
	r.registerImageRoutes(apiGroup)
	r.registerTagRoutes(apiGroup)

	if r.opts.LocalRoot != "" {
		engine.Static(LocalObjectsPrefix, r.opts.LocalRoot)
	}
}

func (r *Router) registerImageRoutes(api *gin.RouterGroup) {
	api.GET("/images", r.imageHandler.List)
	api.GET("/images/:id", r.imageHandler.Get)

	imagesAdmin := api.Group("").Use(r.mw.APIKeyAuth())
	{
		imagesAdmin.POST("/upload", r.imageHandler.Upload)
		imagesAdmin.PUT("/images/:id", r.imageHandler.Update)
		imagesAdmin.DELETE("/images/:id", r.imageHandler.Delete)
	}
}

func (r *Router) registerTagRoutes(api *gin.RouterGroup) {
	api.GET("/tags", r.tagHandler.List)

	tagsAdmin := api.Group("/tags").Use(r.mw.APIKeyAuth())
	{
		tagsAdmin.POST("", r.tagHandler.Create)
		tagsAdmin.POST("/batch", r.tagHandler.Batch)
		tagsAdmin.PUT("/:name", r.tagHandler.Rename)
		tagsAdmin.DELETE("/:name", r.tagHandler.Delete)
	}
}
