/*
 * @Description: 组装应用的全部组件
 * @Author: 安知鱼
 * @Date: 2025-10-17 10:35:28
 * @LastEditTime: 2026-10-13 10:22:51
 * @LastEditors: 安知鱼
 */
// cmd/server/app.go
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/osirismin/CattoPic/internal/app/bootstrap"
	"github.com/osirismin/CattoPic/internal/app/listener"
	"github.com/osirismin/CattoPic/internal/app/middleware"
	"github.com/osirismin/CattoPic/internal/app/task"
	"github.com/osirismin/CattoPic/internal/infra/persistence/database"
	"github.com/osirismin/CattoPic/internal/infra/persistence/sqlrepo"
	"github.com/osirismin/CattoPic/internal/infra/queue"
	"github.com/osirismin/CattoPic/internal/infra/router"
	"github.com/osirismin/CattoPic/internal/infra/storage"
	"github.com/osirismin/CattoPic/internal/pkg/event"
	"github.com/osirismin/CattoPic/pkg/config"
	image_handler "github.com/osirismin/CattoPic/pkg/handler/image"
	tag_handler "github.com/osirismin/CattoPic/pkg/handler/tag"
	"github.com/osirismin/CattoPic/pkg/service/compress"
	"github.com/osirismin/CattoPic/pkg/service/delivery"
	image_service "github.com/osirismin/CattoPic/pkg/service/image"
	"github.com/osirismin/CattoPic/pkg/service/imagecache"
	"github.com/osirismin/CattoPic/pkg/service/lifecycle"
	tag_service "github.com/osirismin/CattoPic/pkg/service/tag"
	"github.com/osirismin/CattoPic/pkg/service/utility"
)

// App 结构体，用于封装应用的所有核心组件
type App struct {
	cfg        *config.Config
	engine     *gin.Engine
	server     *http.Server
	taskBroker *task.Broker
	sqlDB      *sql.DB
	eventBus   *event.EventBus
	imageSvc   *image_service.Service
	tagSvc     *tag_service.Service
}

func (a *App) PrintBanner() {
	banner := `
   ____      _   _        ____  _
  / ___|__ _| |_| |_ ___ |  _ \(_) ___
 | |   / _' | __| __/ _ \| |_) | |/ __|
 | |__| (_| | |_| || (_) |  __/| | (__
  \____\__,_|\__|\__\___/|_|   |_|\___|
`
	fmt.Println(banner)
}

// NewApp 是应用的构造函数，它执行所有的初始化和依赖注入工作。
// 返回的 cleanup 负责按依赖的逆序释放资源。
func NewApp(configPath string) (*App, func(), error) {
	ctx := context.Background()

	// --- Phase 1: 加载外部配置 ---
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("加载配置失败: %w", err)
	}

	// --- Phase 2: 初始化基础设施 ---
	sqlDB, dbType, err := database.NewSQLDB(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("创建数据库连接失败: %w", err)
	}
	if err := bootstrap.NewBootstrapper(sqlDB, dbType).InitializeDatabase(ctx); err != nil {
		sqlDB.Close()
		return nil, nil, fmt.Errorf("数据库初始化失败: %w", err)
	}

	redisClient, _ := database.NewRedisClient(ctx, cfg)
	cacheSvc := utility.NewCacheServiceWithFallback(redisClient)
	cache := imagecache.New(cacheSvc, cfg.GetDuration(config.KeyCacheTTL))
	deletionQueue := queue.New(cfg.GetString(config.KeyQueueType), redisClient)

	storageType, err := storage.ParseType(cfg.GetString(config.KeyStorageType))
	if err != nil {
		closeInfra(sqlDB, redisClient, cacheSvc, deletionQueue)
		return nil, nil, err
	}
	provider, err := storage.NewProvider(ctx, storage.Options{
		Type:      storageType,
		Bucket:    cfg.GetString(config.KeyStorageBucket),
		Region:    cfg.GetString(config.KeyStorageRegion),
		Endpoint:  cfg.GetString(config.KeyStorageEndpoint),
		AccessKey: cfg.GetString(config.KeyStorageAccessKey),
		SecretKey: cfg.GetString(config.KeyStorageSecretKey),
		LocalPath: cfg.GetString(config.KeyStorageLocalPath),
	})
	if err != nil {
		closeInfra(sqlDB, redisClient, cacheSvc, deletionQueue)
		return nil, nil, fmt.Errorf("初始化对象存储失败: %w", err)
	}
	log.Printf("✅ 对象存储使用 %s", provider.Name())

	// --- Phase 3: 初始化数据仓库层 ---
	dialect := sqlrepo.ParseDialect(dbType)
	randomOpt := sqlrepo.WithRandomOffsetThreshold(cfg.GetInt64(config.KeyRandomOffsetThreshold))
	imageRepo := sqlrepo.NewImageRepository(sqlDB, dialect, randomOpt)
	tagRepo := sqlrepo.NewTagRepository(sqlDB, dialect)
	txManager := sqlrepo.NewTransactionManager(sqlDB, dialect, randomOpt)

	// --- Phase 4: 初始化业务逻辑层 ---
	vipsPath := cfg.GetString(config.KeyCompressVipsPath)
	compressOpts := compress.Options{
		Quality:           cfg.GetInt(config.KeyCompressQuality),
		MaxWidth:          cfg.GetInt(config.KeyCompressMaxWidth),
		MaxHeight:         cfg.GetInt(config.KeyCompressMaxHeight),
		PreserveAnimation: cfg.GetBool(config.KeyCompressPreserveAnimation),
		GenerateWebP:      cfg.GetBool(config.KeyCompressGenerateWebP),
		GenerateAVIF:      cfg.GetBool(config.KeyCompressGenerateAVIF),
	}.Normalize()
	transformer := compress.NewTransformer(cfg.GetString(config.KeyCompressBackend), vipsPath, cfg.GetString(config.KeyCompressEndpoint))
	engine := compress.NewEngine(transformer, 0)
	colorSvc := utility.NewColorService(vipsPath)
	resolver := delivery.NewResolver(delivery.ParseTransformStyle(cfg.GetString(config.KeyDeliveryTransformStyle)), compressOpts.Quality)

	eventBus := event.NewEventBus()
	pipeline := lifecycle.NewPipeline(txManager, cache, deletionQueue)

	port := cfg.GetString(config.KeyServerPort)
	if port == "" {
		port = "8091"
	}
	var localRoot string
	if local, ok := provider.(*storage.LocalProvider); ok {
		localRoot = local.Root()
	}
	baseURL := publicBaseURL(cfg.GetString(config.KeyServerBaseURL), port, localRoot != "")

	imageSvc := image_service.NewService(imageRepo, provider, engine, colorSvc, resolver, cache, pipeline, eventBus, image_service.Settings{
		BaseURL:       baseURL,
		ExpiryMinutes: cfg.GetInt(config.KeyUploadExpiryMinutes),
		MaxSize:       cfg.GetInt64(config.KeyUploadMaxSize),
		Compress:      compressOpts,
	})
	tagSvc := tag_service.NewService(tagRepo, cache, pipeline)

	// --- Phase 5: 初始化应用层 (事件监听与后台任务) ---
	_ = listener.NewUploadCacheListener(eventBus, cache)
	taskBroker := task.NewBroker(pipeline, deletionQueue, lifecycle.NewWorker(provider).Handle)

	// --- Phase 6: 初始化表现层 (Handlers) ---
	mw := middleware.NewMiddleware(cfg.GetString(config.KeyServerAPIKey))
	appRouter := router.NewRouter(
		image_handler.NewHandler(imageSvc),
		tag_handler.NewHandler(tagSvc),
		mw,
		router.Options{
			LocalRoot:   localRoot,
			CORSOrigins: cfg.GetStringList(config.KeyServerCORSOrigins),
			RateLimit: middleware.RateLimitOptions{
				PerMinute: cfg.GetInt(config.KeyRateLimitPerMinute),
				Burst:     cfg.GetInt(config.KeyRateLimitBurst),
			},
			RandomRateLimit: middleware.RateLimitOptions{
				PerMinute: cfg.GetInt(config.KeyRandomRateLimit),
				Burst:     cfg.GetInt(config.KeyRandomBurst),
			},
		},
	)

	// --- Phase 7: 配置 Gin 引擎 ---
	if cfg.GetBool(config.KeyServerDebug) {
		gin.SetMode(gin.DebugMode)
		log.Println("运行模式: Debug (Gin 将打印详细路由日志)")
	} else {
		gin.SetMode(gin.ReleaseMode)
		log.Println("运行模式: Release (Gin 路由日志已禁用)")
	}
	ginEngine := gin.Default()
	// 上传表单超过阈值的部分写入临时文件
	ginEngine.MaxMultipartMemory = 32 << 20
	if err := ginEngine.SetTrustedProxies(nil); err != nil {
		log.Printf("⚠️ 设置受信任代理失败: %v", err)
	}
	appRouter.Setup(ginEngine)

	app := &App{
		cfg:        cfg,
		engine:     ginEngine,
		taskBroker: taskBroker,
		sqlDB:      sqlDB,
		eventBus:   eventBus,
		imageSvc:   imageSvc,
		tagSvc:     tagSvc,
		server: &http.Server{
			Addr:              ":" + port,
			Handler:           ginEngine,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	cleanup := func() {
		log.Println("执行清理操作...")
		eventBus.Shutdown()
		closeInfra(sqlDB, redisClient, cacheSvc, deletionQueue)
	}

	return app, cleanup, nil
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		return config.NewConfig()
	}
	return config.Load(configPath)
}

// publicBaseURL 未配置 BaseURL 且使用本地存储时，指向本服务提供的对象路径
func publicBaseURL(configured, port string, local bool) string {
	configured = strings.TrimRight(strings.TrimSpace(configured), "/")
	if configured != "" || !local {
		if configured == "" {
			log.Println("⚠️ 未配置 System.BaseURL，返回的图片地址将只包含对象路径")
		}
		return configured
	}
	return "http://localhost:" + port + router.LocalObjectsPrefix
}

func closeInfra(sqlDB *sql.DB, redisClient *redis.Client, cacheSvc utility.CacheService, q queue.Queue) {
	if q != nil {
		q.Close()
	}
	utility.StopCacheService(cacheSvc)
	if redisClient != nil {
		redisClient.Close()
	}
	if sqlDB != nil {
		sqlDB.Close()
	}
}

func (a *App) Config() *config.Config {
	return a.cfg
}

func (a *App) Engine() *gin.Engine {
	return a.engine
}

func (a *App) DB() *sql.DB {
	return a.sqlDB
}

// EventBus 返回事件总线，用于发布和订阅事件
func (a *App) EventBus() *event.EventBus {
	return a.eventBus
}

func (a *App) ImageService() *image_service.Service {
	return a.imageSvc
}

func (a *App) TagService() *tag_service.Service {
	return a.tagSvc
}

// Run 启动后台任务并阻塞监听，Shutdown 后返回 nil
func (a *App) Run() error {
	if err := a.taskBroker.RegisterCronJobs(a.cfg.GetString(config.KeyLifecyclePurgeSchedule)); err != nil {
		return err
	}
	a.taskBroker.Start()
	// 启动时先清理一次停机期间过期的图片
	a.taskBroker.DispatchPurgeExpired()

	fmt.Printf("应用程序启动成功，正在监听端口: %s\n", strings.TrimPrefix(a.server.Addr, ":"))
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 停止接收新请求并等待进行中的请求完成
func (a *App) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}

func (a *App) Stop() {
	if a.taskBroker != nil {
		a.taskBroker.Stop()
		log.Println("任务调度器已停止。")
	}
}
