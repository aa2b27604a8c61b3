/*
 * @Description: 图片元数据领域模型
 * @Author: 安知鱼
 * @Date: 2026-09-03 14:05:11
 * @LastEditTime: 2026-10-09 20:31:46
 * @LastEditors: 安知鱼
 */
package model

import "time"

// Orientation 图片方向，上传时根据尺寸推导
type Orientation string

const (
	OrientationLandscape Orientation = "landscape"
	OrientationPortrait  Orientation = "portrait"
)

// ParseOrientation 解析查询参数中的方向，无法识别时返回空字符串
func ParseOrientation(s string) Orientation {
	switch Orientation(s) {
	case OrientationLandscape, OrientationPortrait:
		return Orientation(s)
	default:
		return ""
	}
}

// OrientationOf 宽度不小于高度即为横图
func OrientationOf(width, height int) Orientation {
	if width >= height {
		return OrientationLandscape
	}
	return OrientationPortrait
}

// ImagePaths 对象存储中的三个路径，webp/avif 在没有生成变体时为空或等于原图路径
type ImagePaths struct {
	Original string `json:"original"`
	WebP     string `json:"webp"`
	AVIF     string `json:"avif"`
}

type ImageSizes struct {
	Original int64 `json:"original"`
	WebP     int64 `json:"webp"`
	AVIF     int64 `json:"avif"`
}

// Image 是图片元数据的强类型记录，数据库行在仓储边界就会被转换成它
type Image struct {
	ID           string      `json:"id"`
	Filename     string      `json:"filename"`
	UploadTime   time.Time   `json:"uploadTime"`
	ExpiryTime   *time.Time  `json:"expiryTime,omitempty"`
	Orientation  Orientation `json:"orientation"`
	Format       string      `json:"format"`
	Width        int         `json:"width"`
	Height       int         `json:"height"`
	Paths        ImagePaths  `json:"paths"`
	Sizes        ImageSizes  `json:"sizes"`
	PrimaryColor string      `json:"primaryColor,omitempty"`
	Tags         []string    `json:"tags"`
}

// IsExpired 判断图片在给定时刻是否已经过期
func (i *Image) IsExpired(now time.Time) bool {
	return i.ExpiryTime != nil && !i.ExpiryTime.After(now)
}

// ObjectKeys 返回需要从对象存储删除的全部键，去重且忽略空路径
func (i *Image) ObjectKeys() []string {
	keys := make([]string, 0, 3)
	seen := make(map[string]struct{}, 3)
	for _, p := range []string{i.Paths.Original, i.Paths.WebP, i.Paths.AVIF} {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		keys = append(keys, p)
	}
	return keys
}

// UpdateImageParams 描述 updateImage 支持的修改，nil 字段表示不变
type UpdateImageParams struct {
	// Tags 非 nil 时替换整个标签集合
	Tags *[]string
	// ExpiryTime 非 nil 时设置新的过期时间
	ExpiryTime *time.Time
	// ClearExpiry 为 true 时移除过期时间，优先于 ExpiryTime
	ClearExpiry bool
}

// ImageQuery 是分页列表的过滤条件
type ImageQuery struct {
	Page        int
	Limit       int
	Tag         string
	Orientation Orientation
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	// MaxPage 保证 (Page-1)*Limit 在任何整数宽度下都不溢出
	MaxPage = 1_000_000
)

// Normalize 修正分页参数
func (q *ImageQuery) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	if q.Page > MaxPage {
		q.Page = MaxPage
	}
}

// Offset 返回 SQL OFFSET，调用前需要先 Normalize
func (q *ImageQuery) Offset() int64 {
	return int64(q.Page-1) * int64(q.Limit)
}

// ImagePage 是一页结果，按上传时间倒序
type ImagePage struct {
	Images []*Image `json:"images"`
	Total  int64    `json:"total"`
	Page   int      `json:"page"`
	Limit  int      `json:"limit"`
}

// RandomQuery 随机取图的过滤条件: 必须包含全部 Tags，不能包含任意 Exclude
type RandomQuery struct {
	Tags        []string
	Exclude     []string
	Orientation Orientation
}
