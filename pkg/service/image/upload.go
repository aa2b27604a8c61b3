package image

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/osirismin/CattoPic/internal/infra/storage"
	"github.com/osirismin/CattoPic/internal/pkg/event"
	"github.com/osirismin/CattoPic/pkg/constant"
	"github.com/osirismin/CattoPic/pkg/domain/model"
	"github.com/osirismin/CattoPic/pkg/service/compress"
	"github.com/osirismin/CattoPic/pkg/service/imageinfo"

	"golang.org/x/sync/errgroup"
)

func logf(format string, args ...interface{}) {
	log.Printf("[ImageService] "+format, args...)
}

// UploadRequest 单张图片上传
type UploadRequest struct {
	Filename string
	Data     []byte
	Tags     []string
	// ExpiryMinutes 为 nil 时使用默认配置，0 表示永不过期
	ExpiryMinutes *int
}

// object 是一次上传需要写入的对象
type object struct {
	key         string
	data        []byte
	contentType string
}

// Upload 校验 -> 压缩 -> 并行写入对象存储 -> 原子写入元数据 -> 异步失效缓存。
// 格式校验在任何存储写入之前完成；元数据写入失败时会尽力删除已写入的对象。
func (s *Service) Upload(ctx context.Context, req *UploadRequest) (*ImageView, error) {
	if req == nil || len(req.Data) == 0 {
		return nil, constant.ErrNoFile
	}
	if s.settings.MaxSize > 0 && int64(len(req.Data)) > s.settings.MaxSize {
		return nil, constant.ErrFileTooLarge
	}

	info, err := imageinfo.GetImageInfo(req.Data)
	if err != nil {
		return nil, err
	}

	id, err := s.newID()
	if err != nil {
		return nil, err
	}

	ext := imageinfo.Extension(info.Format)
	originalKey := storage.ObjectKey(info.Orientation, storage.KindOriginal, id, ext)
	img := &model.Image{
		ID:          id,
		Filename:    sanitizeFilename(req.Filename, id, ext),
		UploadTime:  s.now().UTC(),
		Orientation: info.Orientation,
		Format:      info.Format,
		Width:       info.Width,
		Height:      info.Height,
		Paths:       model.ImagePaths{Original: originalKey, WebP: originalKey, AVIF: originalKey},
		Sizes: model.ImageSizes{
			Original: int64(len(req.Data)),
			WebP:     int64(len(req.Data)),
			AVIF:     int64(len(req.Data)),
		},
		Tags: model.NormalizeTagNames(req.Tags),
	}
	if expiry := s.expiryMinutes(req); expiry > 0 {
		t := img.UploadTime.Add(time.Duration(expiry) * time.Minute)
		img.ExpiryTime = &t
	}

	written, err := s.storeObjects(ctx, img, req.Data)
	if err != nil {
		s.cleanup(written)
		return nil, err
	}

	if err := s.repo.Save(ctx, img); err != nil {
		s.cleanup(written)
		return nil, err
	}

	if s.bus != nil {
		s.bus.Publish(event.ImageUploaded, event.ImageUploadedPayload{ImageID: img.ID, Tags: img.Tags})
	}
	logf("✅ 图片 %s 上传完成 (%s, %dx%d, %s)", img.ID, img.Format, img.Width, img.Height, img.Orientation)
	return s.view(img), nil
}

func (s *Service) expiryMinutes(req *UploadRequest) int {
	if req.ExpiryMinutes != nil {
		return *req.ExpiryMinutes
	}
	return s.settings.ExpiryMinutes
}

// storeObjects 原图写入与压缩同时进行，变体生成后再并行写入；任一写入失败则整体失败。
// 返回值是已经成功写入的键，用于失败时清理。
func (s *Service) storeObjects(ctx context.Context, img *model.Image, data []byte) ([]string, error) {
	var (
		originalWritten bool
		variants        []object
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.provider.Put(gctx, img.Paths.Original, data, imageinfo.ContentType(img.Format)); err != nil {
			return fmt.Errorf("写入原图失败: %w", err)
		}
		originalWritten = true
		return nil
	})
	g.Go(func() error {
		variants = s.compress(gctx, img, data)
		if len(variants) == 0 {
			return nil
		}
		vg, vctx := errgroup.WithContext(gctx)
		for _, obj := range variants {
			obj := obj
			vg.Go(func() error {
				if err := s.provider.Put(vctx, obj.key, obj.data, obj.contentType); err != nil {
					return fmt.Errorf("写入变体 %s 失败: %w", obj.key, err)
				}
				return nil
			})
		}
		return vg.Wait()
	})
	if s.color != nil {
		g.Go(func() error {
			color, err := s.color.GetPrimaryColor(data)
			if err != nil {
				logf("⚠️ 计算图片 %s 主色调失败: %v", img.ID, err)
				return nil
			}
			img.PrimaryColor = color
			return nil
		})
	}

	err := g.Wait()

	// 失败时不知道哪些变体已写入，全部列入清理，删除不存在的键是安全的
	var written []string
	if originalWritten || err != nil {
		written = append(written, img.Paths.Original)
	}
	for _, obj := range variants {
		written = append(written, obj.key)
	}
	if err != nil {
		return written, err
	}

	for _, obj := range variants {
		switch {
		case strings.HasSuffix(obj.key, "."+imageinfo.FormatWebP):
			img.Paths.WebP = obj.key
			img.Sizes.WebP = int64(len(obj.data))
		case strings.HasSuffix(obj.key, "."+imageinfo.FormatAVIF):
			img.Paths.AVIF = obj.key
			img.Sizes.AVIF = int64(len(obj.data))
		}
	}
	return written, nil
}

// compress 生成变体；引擎缺失或生成失败时返回空，调用方使用原图路径
func (s *Service) compress(ctx context.Context, img *model.Image, data []byte) []object {
	if s.engine == nil {
		return nil
	}
	result, err := s.engine.Compress(ctx, data, img.Format, s.settings.Compress)
	if err != nil {
		logf("⚠️ 压缩图片 %s 失败，仅保存原图: %v", img.ID, err)
		return nil
	}

	var out []object
	add := func(v *compress.Variant, kind string) {
		if v == nil || len(v.Data) == 0 {
			return
		}
		key := storage.ObjectKey(img.Orientation, kind, img.ID, v.Format)
		out = append(out, object{key: key, data: v.Data, contentType: imageinfo.ContentType(v.Format)})
	}
	add(result.WebP, storage.KindWebP)
	add(result.AVIF, storage.KindAVIF)
	return out
}

// cleanup 在后台尽力删除已写入的对象，失败只记录日志
func (s *Service) cleanup(keys []string) {
	if len(keys) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := storage.DeleteAll(ctx, s.provider, keys); err != nil && !errors.Is(err, context.Canceled) {
			logf("⚠️ 清理上传失败残留的对象失败: %v", err)
		}
	}()
}

// sanitizeFilename 只保留文件名部分，为空时用 ID 代替
func sanitizeFilename(name, id, ext string) string {
	name = strings.TrimSpace(filepath.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "" || name == "." || name == "/" {
		return id + "." + ext
	}
	if len(name) > 255 {
		name = name[len(name)-255:]
	}
	return name
}
