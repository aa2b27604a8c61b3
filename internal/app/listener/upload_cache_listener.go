/*
 * @Description: 监听 ImageUploaded 事件，在后台失效列表缓存
 * @Author: 安知鱼
 * @Date: 2026-09-10 18:30:00
 * @LastEditTime: 2026-10-09 20:01:58
 * @LastEditors: 安知鱼
 */
package listener

import (
	"context"
	"log"
	"time"

	"github.com/osirismin/CattoPic/internal/pkg/event"
	"github.com/osirismin/CattoPic/pkg/service/imagecache"
)

// UploadCacheListener 上传成功后清除图片列表和标签列表缓存。
// 它运行在事件总线的 worker 中，失败只记录日志，不会影响上传请求。
type UploadCacheListener struct {
	cache   *imagecache.Cache
	timeout time.Duration
}

// NewUploadCacheListener 是 UploadCacheListener 的构造函数，并订阅 ImageUploaded 事件。
func NewUploadCacheListener(eventBus *event.EventBus, cache *imagecache.Cache) *UploadCacheListener {
	listener := &UploadCacheListener{cache: cache, timeout: 10 * time.Second}
	eventBus.Subscribe(event.ImageUploaded, listener.handleImageUploaded)
	return listener
}

// handleImageUploaded 是事件处理器
func (l *UploadCacheListener) handleImageUploaded(payload interface{}) {
	p, ok := payload.(event.ImageUploadedPayload)
	if !ok {
		log.Printf("[UploadCacheListener] 错误：收到的ImageUploaded事件负载类型不正确")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	if err := l.cache.InvalidateImagesList(ctx); err != nil {
		log.Printf("[UploadCacheListener] 图片 %s 上传后失效图片列表缓存失败: %v", p.ImageID, err)
	}
	// 新图片带来的标签会改变标签计数
	if len(p.Tags) > 0 {
		if err := l.cache.InvalidateTagsList(ctx); err != nil {
			log.Printf("[UploadCacheListener] 图片 %s 上传后失效标签列表缓存失败: %v", p.ImageID, err)
		}
	}
}
