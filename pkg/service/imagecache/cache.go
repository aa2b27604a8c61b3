/*
 * @Description: 图片与标签列表的读缓存，键名与失效规则集中在这里
 * @Author: 安知鱼
 * @Date: 2026-09-08 11:20:35
 * @LastEditTime: 2026-10-06 16:02:11
 * @LastEditors: 安知鱼
 */
package imagecache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/osirismin/CattoPic/pkg/domain/model"
	"github.com/osirismin/CattoPic/pkg/service/utility"
)

const (
	keyPrefix       = "cattopic:"
	tagsListPrefix  = keyPrefix + "tags:list:"
	imageListPrefix = keyPrefix + "images:list:"

	// DefaultTTL 缓存项默认存活时间
	DefaultTTL = 10 * time.Minute
)

// TagsListKey 标签列表的缓存键
func TagsListKey(limit int) string {
	return fmt.Sprintf("%s%d", tagsListPrefix, limit)
}

// ImagesListKey 分页列表的缓存键，包含全部过滤条件
func ImagesListKey(q model.ImageQuery) string {
	q.Normalize()
	return fmt.Sprintf("%sp%d:l%d:t%s:o%s", imageListPrefix, q.Page, q.Limit, q.Tag, q.Orientation)
}

// Cache 在 CacheService 之上提供 JSON 编解码和失效操作。
// 所有错误只记录日志，读取时按未命中处理，缓存不可用不会影响请求。
type Cache struct {
	svc utility.CacheService
	ttl time.Duration
}

// New ttl <= 0 时使用 DefaultTTL
func New(svc utility.CacheService, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{svc: svc, ttl: ttl}
}

// Get 读取并反序列化缓存值，第二个返回值表示是否命中
func Get[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var zero T
	if c == nil || c.svc == nil {
		return zero, false
	}
	raw, err := c.svc.Get(ctx, key)
	if err != nil {
		log.Printf("[图片缓存] 读取 %s 失败: %v", key, err)
		return zero, false
	}
	if raw == "" {
		return zero, false
	}

	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		log.Printf("[图片缓存] 缓存值 %s 已损坏，丢弃: %v", key, err)
		_ = c.svc.Delete(ctx, key)
		return zero, false
	}
	return v, true
}

// Set 序列化并写入缓存，使用默认 TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}) {
	c.SetWithTTL(ctx, key, value, c.defaultTTL())
}

// SetWithTTL 与 Set 相同，但由调用方指定 TTL；ttl 不大于 0 时使用默认 TTL
func (c *Cache) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if c == nil || c.svc == nil {
		return
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	data, err := json.Marshal(value)
	if err != nil {
		log.Printf("[图片缓存] 序列化 %s 失败: %v", key, err)
		return
	}
	if err := c.svc.Set(ctx, key, data, ttl); err != nil {
		log.Printf("[图片缓存] 写入 %s 失败: %v", key, err)
	}
}

func (c *Cache) defaultTTL() time.Duration {
	if c == nil {
		return 0
	}
	return c.ttl
}

func (c *Cache) deletePattern(ctx context.Context, pattern string) error {
	if c == nil || c.svc == nil {
		return nil
	}
	n, err := c.svc.DeletePattern(ctx, pattern)
	if err != nil {
		log.Printf("[图片缓存] 清除 %s 失败: %v", pattern, err)
		return err
	}
	if n > 0 {
		log.Printf("[图片缓存] 已清除 %d 个缓存键 (%s)", n, pattern)
	}
	return nil
}

// InvalidateTagsList 清除所有标签列表缓存
func (c *Cache) InvalidateTagsList(ctx context.Context) error {
	return c.deletePattern(ctx, tagsListPrefix+"*")
}

// InvalidateImagesList 清除所有图片分页缓存
func (c *Cache) InvalidateImagesList(ctx context.Context) error {
	return c.deletePattern(ctx, imageListPrefix+"*")
}

// InvalidateAfterTagChange 标签改名、删除或批量修改后同时清除两类列表
func (c *Cache) InvalidateAfterTagChange(ctx context.Context) error {
	tagErr := c.InvalidateTagsList(ctx)
	imgErr := c.InvalidateImagesList(ctx)
	if tagErr != nil {
		return tagErr
	}
	return imgErr
}
