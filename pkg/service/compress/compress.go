/*
 * @Description: 上传时生成 WebP/AVIF 变体
 * @Author: 安知鱼
 * @Date: 2026-09-06 09:20:14
 * @LastEditTime: 2026-10-07 22:40:51
 * @LastEditors: 安知鱼
 */
package compress

import (
	"context"
	"log"
	"time"

	"github.com/osirismin/CattoPic/pkg/service/imageinfo"
)

const (
	DefaultQuality   = 90
	DefaultMaxWidth  = 3840
	DefaultMaxHeight = 3840
	// AVIF 编码代价高，尺寸上限更严格
	AVIFMaxDimension = 1600

	webpAttempts = 2
	avifAttempts = 3
)

// Options 中的零值字段在 Normalize 后会取默认值
type Options struct {
	Quality           int
	MaxWidth          int
	MaxHeight         int
	PreserveAnimation bool
	GenerateWebP      bool
	GenerateAVIF      bool
}

// DefaultOptions 返回默认配置
func DefaultOptions() Options {
	return Options{
		Quality:           DefaultQuality,
		MaxWidth:          DefaultMaxWidth,
		MaxHeight:         DefaultMaxHeight,
		PreserveAnimation: true,
		GenerateWebP:      true,
		GenerateAVIF:      true,
	}
}

// Normalize 修正非法的质量和尺寸
func (o Options) Normalize() Options {
	if o.Quality <= 0 {
		o.Quality = DefaultQuality
	}
	if o.Quality > 100 {
		o.Quality = 100
	}
	if o.MaxWidth <= 0 {
		o.MaxWidth = DefaultMaxWidth
	}
	if o.MaxHeight <= 0 {
		o.MaxHeight = DefaultMaxHeight
	}
	return o
}

// Variant 是一个生成成功的变体
type Variant struct {
	Data   []byte
	Width  int
	Height int
	Format string
}

// Result 中失败或被跳过的变体为 nil，调用方用原图代替
type Result struct {
	WebP       *Variant
	AVIF       *Variant
	IsAnimated bool
}

// Engine 按顺序生成变体，两种格式的失败互不影响
type Engine struct {
	transformer Transformer
	retryBase   time.Duration
}

// NewEngine retryBase 为 0 时使用 500ms
func NewEngine(t Transformer, retryBase time.Duration) *Engine {
	if retryBase <= 0 {
		retryBase = 500 * time.Millisecond
	}
	return &Engine{transformer: t, retryBase: retryBase}
}

// FitWithin 等比缩小到边界内，从不放大
func FitWithin(width, height, maxWidth, maxHeight int) (int, int) {
	if width <= 0 || height <= 0 {
		return width, height
	}
	if width <= maxWidth && height <= maxHeight {
		return width, height
	}
	scale := minFloat(float64(maxWidth)/float64(width), float64(maxHeight)/float64(height))
	w := int(float64(width)*scale + 0.5)
	h := int(float64(height)*scale + 0.5)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// Compress 先 WebP 后 AVIF，降低转换服务的并发压力
func (e *Engine) Compress(ctx context.Context, data []byte, sourceFormat string, opts Options) (*Result, error) {
	opts = opts.Normalize()
	result := &Result{IsAnimated: IsAnimated(data, sourceFormat)}

	if result.IsAnimated && opts.PreserveAnimation {
		log.Printf("[Compress] 检测到动图 (%s)，跳过压缩，仅保留原图。", sourceFormat)
		return result, nil
	}

	info, err := imageinfo.GetImageInfo(data)
	if err != nil {
		return nil, err
	}

	if opts.GenerateWebP {
		w, h := FitWithin(info.Width, info.Height, opts.MaxWidth, opts.MaxHeight)
		result.WebP = e.variant(ctx, data, imageinfo.FormatWebP, opts.Quality, w, h, webpAttempts)
	}
	if opts.GenerateAVIF {
		maxW, maxH := opts.MaxWidth, opts.MaxHeight
		if maxW > AVIFMaxDimension {
			maxW = AVIFMaxDimension
		}
		if maxH > AVIFMaxDimension {
			maxH = AVIFMaxDimension
		}
		w, h := FitWithin(info.Width, info.Height, maxW, maxH)
		result.AVIF = e.variant(ctx, data, imageinfo.FormatAVIF, opts.Quality, w, h, avifAttempts)
	}
	return result, nil
}

func (e *Engine) variant(ctx context.Context, data []byte, format string, quality, width, height, attempts int) *Variant {
	req := TransformRequest{Format: format, Quality: quality, Width: width, Height: height}
	out, err := withRetry(ctx, format, attempts, e.retryBase, func() ([]byte, error) {
		return e.transformer.Transform(ctx, data, req)
	})
	if err != nil {
		log.Printf("[Compress] ⚠️ 生成 %s 变体失败，将使用原图: %v", format, err)
		return nil
	}
	return &Variant{Data: out, Width: width, Height: height, Format: format}
}
