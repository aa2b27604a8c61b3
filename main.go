/*
 * @Description:
 * @Author: 安知鱼
 * @Date: 2025-06-28 00:21:55
 * @LastEditTime: 2026-10-13 10:40:02
 * @LastEditors: 安知鱼
 */
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/osirismin/CattoPic/cmd/server"
)

// @title           CattoPic API
// @version         1.0
// @description     CattoPic 图床接口文档

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8091
// @BasePath  /api

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description 管理接口的 API Key，也可以使用 Authorization: Bearer {key}
func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "配置文件路径，默认 data/conf.ini")
	flag.Parse()

	// 调用位于 cmd/server 包中的 NewApp 函数来构建整个应用
	app, cleanup, err := server.NewApp(configPath)
	if err != nil {
		log.Fatalf("应用初始化失败: %v", err)
	}

	// 使用 defer 来确保 cleanup 函数在 main 退出时被调用
	defer cleanup()

	// 确保后台任务在程序退出时被停止
	defer app.Stop()

	app.PrintBanner()

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Run()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Printf("应用运行失败: %v", err)
		}
	case sig := <-quit:
		log.Printf("收到信号 %s，正在关闭服务...", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := app.Shutdown(ctx); err != nil {
			log.Printf("关闭 HTTP 服务失败: %v", err)
		}
	}
}
