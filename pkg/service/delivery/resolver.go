/*
 * @Description: 图片访问地址解析与格式协商
 * @Author: 安知鱼
 * @Date: 2026-09-07 20:03:48
 * @LastEditTime: 2026-10-08 09:55:12
 * @LastEditors: 安知鱼
 */
package delivery

import (
	"fmt"
	"strings"

	"github.com/osirismin/CattoPic/pkg/domain/model"
	"github.com/osirismin/CattoPic/pkg/service/imageinfo"
)

// TransformStyle 决定即时转换地址的拼写方式，对应不同 CDN 的图片处理能力
type TransformStyle string

const (
	StyleCloudflare TransformStyle = "cloudflare"
	StyleOSS        TransformStyle = "oss"
	StyleCOS        TransformStyle = "cos"
	StyleQiniu      TransformStyle = "qiniu"
)

const (
	FormatAuto     = "auto"
	FormatOriginal = "original"
)

// ParseTransformStyle 无法识别时使用 cloudflare
func ParseTransformStyle(s string) TransformStyle {
	switch TransformStyle(strings.ToLower(strings.TrimSpace(s))) {
	case StyleOSS:
		return StyleOSS
	case StyleCOS:
		return StyleCOS
	case StyleQiniu:
		return StyleQiniu
	default:
		return StyleCloudflare
	}
}

// URLs 是一张图片三种格式的访问地址，空字符串表示该格式不可用
type URLs struct {
	Original string `json:"original"`
	WebP     string `json:"webp"`
	AVIF     string `json:"avif"`
}

// Size 即时转换时可选的缩放尺寸
type Size struct {
	Width  int
	Height int
}

type Resolver struct {
	style   TransformStyle
	quality int
}

func NewResolver(style TransformStyle, quality int) *Resolver {
	if quality <= 0 || quality > 100 {
		quality = 90
	}
	return &Resolver{style: style, quality: quality}
}

func joinURL(baseURL, key string) string {
	if key == "" {
		return ""
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(key, "/")
}

// URLsFor 计算全部格式的地址
func (r *Resolver) URLsFor(baseURL string, img *model.Image, size Size) URLs {
	return URLs{
		Original: joinURL(baseURL, img.Paths.Original),
		WebP:     r.variantURL(baseURL, img, img.Paths.WebP, imageinfo.FormatWebP, size),
		AVIF:     r.variantURL(baseURL, img, img.Paths.AVIF, imageinfo.FormatAVIF, size),
	}
}

// variantURL GIF 不提供变体；已存储的变体优先；JPEG/PNG 退回即时转换；其余返回原图
func (r *Resolver) variantURL(baseURL string, img *model.Image, stored, format string, size Size) string {
	source := imageinfo.NormalizeFormat(img.Format)
	if source == imageinfo.FormatGIF {
		return ""
	}
	if stored != "" && stored != img.Paths.Original {
		return joinURL(baseURL, stored)
	}
	if source == imageinfo.FormatJPEG || source == imageinfo.FormatPNG {
		return r.TransformURL(baseURL, img.Paths.Original, format, size)
	}
	return joinURL(baseURL, img.Paths.Original)
}

// TransformURL 生成由下游 CDN 即时转换的地址
func (r *Resolver) TransformURL(baseURL, key, format string, size Size) string {
	if key == "" {
		return ""
	}
	switch r.style {
	case StyleOSS:
		process := "image"
		if size.Width > 0 || size.Height > 0 {
			process += "/resize"
			if size.Width > 0 {
				process += fmt.Sprintf(",w_%d", size.Width)
			}
			if size.Height > 0 {
				process += fmt.Sprintf(",h_%d", size.Height)
			}
		}
		process += fmt.Sprintf("/format,%s/quality,q_%d", format, r.quality)
		return joinURL(baseURL, key) + "?x-oss-process=" + process
	case StyleCOS, StyleQiniu:
		ops := "imageMogr2"
		if size.Width > 0 || size.Height > 0 {
			ops += "/thumbnail/" + dimension(size.Width) + "x" + dimension(size.Height)
		}
		ops += fmt.Sprintf("/format/%s/quality/%d", format, r.quality)
		return joinURL(baseURL, key) + "?" + ops
	default:
		params := []string{"format=" + format, fmt.Sprintf("quality=%d", r.quality)}
		if size.Width > 0 {
			params = append(params, fmt.Sprintf("width=%d", size.Width))
		}
		if size.Height > 0 {
			params = append(params, fmt.Sprintf("height=%d", size.Height))
		}
		return joinURL(baseURL, "cdn-cgi/image/"+strings.Join(params, ",")+"/"+strings.TrimLeft(key, "/"))
	}
}

func dimension(n int) string {
	if n <= 0 {
		return ""
	}
	return fmt.Sprintf("%d", n)
}

// Negotiate 解析 Accept 头，按 AVIF > WebP > 原图 的顺序返回客户端支持的格式
func Negotiate(accept string) []string {
	accept = strings.ToLower(accept)
	formats := make([]string, 0, 3)
	for _, f := range []string{imageinfo.FormatAVIF, imageinfo.FormatWebP} {
		if acceptsFormat(accept, "image/"+f) {
			formats = append(formats, f)
		}
	}
	return append(formats, FormatOriginal)
}

// acceptsFormat 显式 q=0 视为不接受
func acceptsFormat(accept, mime string) bool {
	for _, part := range strings.Split(accept, ",") {
		fields := strings.Split(part, ";")
		if strings.TrimSpace(fields[0]) != mime {
			continue
		}
		for _, param := range fields[1:] {
			param = strings.ReplaceAll(param, " ", "")
			if param == "q=0" || param == "q=0.0" || param == "q=0.00" || param == "q=0.000" {
				return false
			}
		}
		return true
	}
	return false
}

func (u URLs) byFormat(format string) string {
	switch format {
	case imageinfo.FormatAVIF:
		return u.AVIF
	case imageinfo.FormatWebP:
		return u.WebP
	default:
		return u.Original
	}
}

// Resolve 返回请求格式的地址；未指定格式时按 Accept 协商，只在非空地址中选择
func (r *Resolver) Resolve(baseURL string, img *model.Image, requestedFormat, accept string) string {
	return r.ResolveSized(baseURL, img, requestedFormat, accept, Size{})
}

func (r *Resolver) ResolveSized(baseURL string, img *model.Image, requestedFormat, accept string, size Size) string {
	urls := r.URLsFor(baseURL, img, size)

	requested := imageinfo.NormalizeFormat(requestedFormat)
	switch requested {
	case "", FormatAuto:
	case imageinfo.FormatAVIF, imageinfo.FormatWebP:
		if u := urls.byFormat(requested); u != "" {
			return u
		}
		return urls.Original
	default:
		return urls.Original
	}

	for _, f := range Negotiate(accept) {
		if u := urls.byFormat(f); u != "" {
			return u
		}
	}
	return urls.Original
}
