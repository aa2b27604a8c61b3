/*
 * @Description: 标签的增删改查，所有修改都会同步失效相关缓存
 * @Author: 安知鱼
 * @Date: 2026-09-10 15:31:07
 * @LastEditTime: 2026-10-09 23:18:40
 * @LastEditors: 安知鱼
 */
package tag

import (
	"context"
	"fmt"
	"log"

	"github.com/osirismin/CattoPic/pkg/constant"
	"github.com/osirismin/CattoPic/pkg/domain/model"
	"github.com/osirismin/CattoPic/pkg/domain/repository"
	"github.com/osirismin/CattoPic/pkg/service/imagecache"
	"github.com/osirismin/CattoPic/pkg/service/lifecycle"
)

// DefaultListLimit 标签列表默认上限
const DefaultListLimit = 1000

// Service 封装了标签的业务逻辑。
type Service struct {
	repo     repository.TagRepository
	cache    *imagecache.Cache
	pipeline *lifecycle.Pipeline
}

// NewService 是 Tag Service 的构造函数。
func NewService(repo repository.TagRepository, cache *imagecache.Cache, pipeline *lifecycle.Pipeline) *Service {
	return &Service{repo: repo, cache: cache, pipeline: pipeline}
}

// List 返回按名称排序的标签及其图片数量，结果会被缓存
func (s *Service) List(ctx context.Context, limit int) ([]*model.Tag, error) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	key := imagecache.TagsListKey(limit)
	if tags, ok := imagecache.Get[[]*model.Tag](ctx, s.cache, key); ok {
		return tags, nil
	}

	tags, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, key, tags)
	return tags, nil
}

// Create 显式创建一个空标签
func (s *Service) Create(ctx context.Context, name string) (*model.Tag, error) {
	name = model.SanitizeTagName(name)
	if name == "" {
		return nil, constant.ErrEmptyTagName
	}
	tag, err := s.repo.Create(ctx, name)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, "创建标签", s.cache.InvalidateTagsList)
	return tag, nil
}

// Rename 改名并保留全部关联，返回受影响的图片数量
func (s *Service) Rename(ctx context.Context, oldName, newName string) (int64, error) {
	oldName = model.SanitizeTagName(oldName)
	newName = model.SanitizeTagName(newName)
	if oldName == "" || newName == "" {
		return 0, constant.ErrEmptyTagName
	}
	affected, err := s.repo.Rename(ctx, oldName, newName)
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx, "重命名标签", s.cache.InvalidateAfterTagChange)
	return affected, nil
}

// DeleteWithImages 删除标签以及带有该标签的所有图片
func (s *Service) DeleteWithImages(ctx context.Context, name string) (*lifecycle.DeletionReport, error) {
	return s.pipeline.DeleteTagWithImages(ctx, name)
}

// BatchUpdate 对一批图片批量添加、移除标签
func (s *Service) BatchUpdate(ctx context.Context, imageIDs, addTags, removeTags []string) error {
	if len(imageIDs) == 0 {
		return fmt.Errorf("%w: 图片列表不能为空", constant.ErrBadRequest)
	}
	add := model.NormalizeTagNames(addTags)
	remove := model.NormalizeTagNames(removeTags)
	if len(add) == 0 && len(remove) == 0 {
		return constant.ErrEmptyTagName
	}
	if err := s.repo.BatchUpdate(ctx, imageIDs, add, remove); err != nil {
		return err
	}
	s.invalidate(ctx, "批量更新标签", s.cache.InvalidateAfterTagChange)
	return nil
}

// invalidate 在返回成功前同步执行；失败只记录日志，缓存随 TTL 自然过期
func (s *Service) invalidate(ctx context.Context, op string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		log.Printf("[TagService] ⚠️ %s后失效缓存失败: %v", op, err)
	}
}
