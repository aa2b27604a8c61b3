/*
 * @Description: 图片格式与尺寸识别，上传前用于校验，压缩时用于计算目标尺寸
 * @Author: 安知鱼
 * @Date: 2026-09-05 16:44:02
 * @LastEditTime: 2026-10-06 10:18:27
 * @LastEditors: 安知鱼
 */
package imageinfo

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"strconv"
	"strings"

	"github.com/osirismin/CattoPic/pkg/constant"
	"github.com/osirismin/CattoPic/pkg/domain/model"

	"github.com/dsoprea/go-exif/v3"
	_ "golang.org/x/image/webp"
)

const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
	FormatGIF  = "gif"
	FormatWebP = "webp"
	FormatAVIF = "avif"
)

// Info 是解码出的图片基础信息，Width/Height 已按 EXIF 方向修正
type Info struct {
	Format      string
	Width       int
	Height      int
	Orientation model.Orientation
}

// NormalizeFormat 统一格式名称，例如 jpg -> jpeg
func NormalizeFormat(format string) string {
	f := strings.ToLower(strings.TrimSpace(format))
	f = strings.TrimPrefix(f, "image/")
	f = strings.TrimPrefix(f, ".")
	if f == "jpg" {
		return FormatJPEG
	}
	return f
}

// IsSupportedFormat 只接受可以上传的原图格式
func IsSupportedFormat(format string) bool {
	switch NormalizeFormat(format) {
	case FormatJPEG, FormatPNG, FormatGIF, FormatWebP:
		return true
	}
	return false
}

// ContentType 返回格式对应的 MIME 类型
func ContentType(format string) string {
	switch f := NormalizeFormat(format); f {
	case FormatJPEG, FormatPNG, FormatGIF, FormatWebP, FormatAVIF:
		return "image/" + f
	default:
		return "application/octet-stream"
	}
}

// Extension 返回存储时使用的扩展名
func Extension(format string) string {
	f := NormalizeFormat(format)
	if f == FormatJPEG {
		return "jpg"
	}
	return f
}

// GetImageInfo 只解析文件头，不解码像素
func GetImageInfo(data []byte) (*Info, error) {
	if len(data) == 0 {
		return nil, constant.ErrNoFile
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, constant.ErrUnsupportedFormat
		}
		return nil, fmt.Errorf("%w: %v", constant.ErrUnsupportedFormat, err)
	}

	format = NormalizeFormat(format)
	if !IsSupportedFormat(format) {
		return nil, constant.ErrUnsupportedFormat
	}

	width, height := cfg.Width, cfg.Height
	if format == FormatJPEG && swapsAxes(exifOrientation(data)) {
		width, height = height, width
	}

	return &Info{
		Format:      format,
		Width:       width,
		Height:      height,
		Orientation: model.OrientationOf(width, height),
	}, nil
}

// swapsAxes EXIF 方向 5~8 表示图片需要旋转 90 度显示
func swapsAxes(orientation int) bool {
	return orientation >= 5 && orientation <= 8
}

// exifOrientation 读取 EXIF Orientation 标签，没有或解析失败时返回 1
func exifOrientation(data []byte) int {
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil {
		if !errors.Is(err, exif.ErrNoExif) {
			log.Printf("[ImageInfo] 警告: 搜索 EXIF 失败: %v", err)
		}
		return 1
	}

	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		log.Printf("[ImageInfo] 警告: 解析 EXIF 条目失败: %v", err)
		return 1
	}

	for _, entry := range entries {
		if entry.TagName != "Orientation" {
			continue
		}
		if values, ok := entry.Value.([]uint16); ok && len(values) > 0 {
			return int(values[0])
		}
		if n, err := strconv.Atoi(strings.TrimSpace(entry.FormattedFirst)); err == nil {
			return n
		}
	}
	return 1
}
