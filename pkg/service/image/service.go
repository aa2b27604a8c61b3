/*
 * @Description: 图片上传、查询、修改与随机取图
 * @Author: 安知鱼
 * @Date: 2026-09-10 10:02:55
 * @LastEditTime: 2026-10-10 17:46:09
 * @LastEditors: 安知鱼
 */
package image

import (
	"context"
	"fmt"
	"time"

	"github.com/osirismin/CattoPic/internal/infra/storage"
	"github.com/osirismin/CattoPic/internal/pkg/event"
	"github.com/osirismin/CattoPic/pkg/constant"
	"github.com/osirismin/CattoPic/pkg/domain/model"
	"github.com/osirismin/CattoPic/pkg/domain/repository"
	"github.com/osirismin/CattoPic/pkg/idgen"
	"github.com/osirismin/CattoPic/pkg/service/compress"
	"github.com/osirismin/CattoPic/pkg/service/delivery"
	"github.com/osirismin/CattoPic/pkg/service/imagecache"
	"github.com/osirismin/CattoPic/pkg/service/lifecycle"
)

// ColorExtractor 计算图片主色调，失败时上传仍会继续
type ColorExtractor interface {
	GetPrimaryColor(data []byte) (string, error)
}

// Settings 是与上传和访问相关的配置
type Settings struct {
	BaseURL string
	// ExpiryMinutes 默认过期时间，0 表示永不过期
	ExpiryMinutes int
	MaxSize       int64
	Compress      compress.Options
}

// Service 封装了图片相关的业务逻辑。
type Service struct {
	repo     repository.ImageRepository
	provider storage.Provider
	engine   *compress.Engine
	color    ColorExtractor
	resolver *delivery.Resolver
	cache    *imagecache.Cache
	pipeline *lifecycle.Pipeline
	bus      *event.EventBus
	settings Settings

	newID func() (string, error)
	now   func() time.Time
}

// NewService 是 Image Service 的构造函数，engine 与 color 可以为 nil
func NewService(
	repo repository.ImageRepository,
	provider storage.Provider,
	engine *compress.Engine,
	color ColorExtractor,
	resolver *delivery.Resolver,
	cache *imagecache.Cache,
	pipeline *lifecycle.Pipeline,
	bus *event.EventBus,
	settings Settings,
) *Service {
	return &Service{
		repo:     repo,
		provider: provider,
		engine:   engine,
		color:    color,
		resolver: resolver,
		cache:    cache,
		pipeline: pipeline,
		bus:      bus,
		settings: settings,
		newID:    idgen.NewImageID,
		now:      time.Now,
	}
}

// ImageView 是对外返回的图片信息，附带各格式的访问地址
type ImageView struct {
	*model.Image
	URLs delivery.URLs `json:"urls"`
}

// ImageListView 是一页图片
type ImageListView struct {
	Images []*ImageView `json:"images"`
	Total  int64        `json:"total"`
	Page   int          `json:"page"`
	Limit  int          `json:"limit"`
}

func (s *Service) view(img *model.Image) *ImageView {
	return &ImageView{Image: img, URLs: s.resolver.URLsFor(s.settings.BaseURL, img, delivery.Size{})}
}

// List 按上传时间倒序分页，结果会被缓存
func (s *Service) List(ctx context.Context, q model.ImageQuery) (*ImageListView, error) {
	q.Normalize()
	key := imagecache.ImagesListKey(q)

	page, ok := imagecache.Get[*model.ImagePage](ctx, s.cache, key)
	if !ok || page == nil {
		var err error
		page, err = s.repo.List(ctx, &q)
		if err != nil {
			return nil, err
		}
		s.cache.Set(ctx, key, page)
	}

	views := make([]*ImageView, len(page.Images))
	for i, img := range page.Images {
		views[i] = s.view(img)
	}
	return &ImageListView{Images: views, Total: page.Total, Page: page.Page, Limit: page.Limit}, nil
}

// Get 返回单张图片，已过期的图片视为不存在
func (s *Service) Get(ctx context.Context, id string) (*ImageView, error) {
	img, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if img.IsExpired(s.now()) {
		return nil, fmt.Errorf("图片 %s 已过期: %w", id, constant.ErrNotFound)
	}
	return s.view(img), nil
}

// Update 替换标签集合和/或修改过期时间
func (s *Service) Update(ctx context.Context, id string, params *model.UpdateImageParams) (*ImageView, error) {
	if params == nil {
		return nil, fmt.Errorf("%w: 没有需要修改的内容", constant.ErrBadRequest)
	}
	img, err := s.repo.Update(ctx, id, params)
	if err != nil {
		return nil, err
	}
	if err := s.cache.InvalidateAfterTagChange(ctx); err != nil {
		logf("修改图片 %s 后失效缓存失败: %v", id, err)
	}
	return s.view(img), nil
}

// Delete 通过删除流水线删除单张图片
func (s *Service) Delete(ctx context.Context, id string) (*lifecycle.DeletionReport, error) {
	return s.pipeline.DeleteImage(ctx, id)
}

// RandomResult 随机取图的结果
type RandomResult struct {
	Image *model.Image
	URL   string
}

// Random 在匹配条件的图片中均匀随机取一张，并按请求格式或 Accept 头解析地址
func (s *Service) Random(ctx context.Context, q *model.RandomQuery, format, accept string) (*RandomResult, error) {
	img, err := s.repo.FindRandom(ctx, q)
	if err != nil {
		return nil, err
	}
	return &RandomResult{
		Image: img,
		URL:   s.resolver.Resolve(s.settings.BaseURL, img, format, accept),
	}, nil
}
