package delivery

import (
	"testing"

	"github.com/osirismin/CattoPic/pkg/domain/model"

	"github.com/stretchr/testify/assert"
)

const base = "https://img.example.com/"

func jpegWithVariants() *model.Image {
	return &model.Image{
		ID:     "abc",
		Format: "jpeg",
		Paths: model.ImagePaths{
			Original: "images/portrait/original/abc.jpg",
			WebP:     "images/portrait/webp/abc.webp",
			AVIF:     "images/portrait/avif/abc.avif",
		},
	}
}

func jpegWithoutVariants() *model.Image {
	img := jpegWithVariants()
	img.Paths.WebP = img.Paths.Original
	img.Paths.AVIF = ""
	return img
}

func gifImage() *model.Image {
	return &model.Image{
		ID:     "g",
		Format: "gif",
		Paths: model.ImagePaths{
			Original: "images/landscape/original/g.gif",
			WebP:     "images/landscape/original/g.gif",
			AVIF:     "images/landscape/original/g.gif",
		},
	}
}

func webpSource() *model.Image {
	return &model.Image{
		ID:     "w",
		Format: "webp",
		Paths:  model.ImagePaths{Original: "images/landscape/original/w.webp"},
	}
}

func TestResolve(t *testing.T) {
	r := NewResolver(StyleCloudflare, 90)

	tests := []struct {
		name      string
		img       *model.Image
		requested string
		accept    string
		want      string
	}{
		{"协商优先 AVIF", jpegWithVariants(), "", "image/avif,image/webp,*/*", base + "images/portrait/avif/abc.avif"},
		{"只支持 WebP", jpegWithVariants(), "", "image/webp,*/*", base + "images/portrait/webp/abc.webp"},
		{"都不支持返回原图", jpegWithVariants(), "", "*/*", base + "images/portrait/original/abc.jpg"},
		{"q=0 视为不支持", jpegWithVariants(), "auto", "image/avif;q=0, image/webp", base + "images/portrait/webp/abc.webp"},
		{"显式请求原图", jpegWithVariants(), "original", "image/avif", base + "images/portrait/original/abc.jpg"},
		{"显式请求 webp", jpegWithVariants(), "webp", "", base + "images/portrait/webp/abc.webp"},
		{"无变体的 JPEG 退回即时转换", jpegWithoutVariants(), "webp", "",
			base + "cdn-cgi/image/format=webp,quality=90/images/portrait/original/abc.jpg"},
		{"无变体的 JPEG 协商 AVIF", jpegWithoutVariants(), "", "image/avif",
			base + "cdn-cgi/image/format=avif,quality=90/images/portrait/original/abc.jpg"},
		{"GIF 永远是原图", gifImage(), "webp", "image/avif,image/webp", base + "images/landscape/original/g.gif"},
		{"GIF 协商也是原图", gifImage(), "", "image/avif,image/webp", base + "images/landscape/original/g.gif"},
		{"WebP 原图没有变体", webpSource(), "avif", "", base + "images/landscape/original/w.webp"},
		{"未知格式参数", jpegWithVariants(), "tiff", "image/avif", base + "images/portrait/original/abc.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(base, tt.img, tt.requested, tt.accept))
		})
	}
}

func TestURLsFor_GIFVariantsEmpty(t *testing.T) {
	r := NewResolver(StyleCloudflare, 90)
	urls := r.URLsFor(base, gifImage(), Size{})
	assert.NotEmpty(t, urls.Original)
	assert.Empty(t, urls.WebP)
	assert.Empty(t, urls.AVIF)
}

func TestURLsFor_FallbackNeverEmpty(t *testing.T) {
	r := NewResolver(StyleCloudflare, 90)
	for _, img := range []*model.Image{jpegWithVariants(), jpegWithoutVariants(), webpSource()} {
		urls := r.URLsFor(base, img, Size{})
		assert.NotEmpty(t, urls.WebP, img.ID)
		assert.NotEmpty(t, urls.AVIF, img.ID)
	}
}

func TestTransformURL(t *testing.T) {
	key := "images/landscape/original/x.png"
	tests := []struct {
		name  string
		style TransformStyle
		size  Size
		want  string
	}{
		{"cloudflare 带尺寸", StyleCloudflare, Size{Width: 800, Height: 600},
			base + "cdn-cgi/image/format=webp,quality=80,width=800,height=600/" + key},
		{"oss", StyleOSS, Size{},
			base + key + "?x-oss-process=image/format,webp/quality,q_80"},
		{"oss 带宽度", StyleOSS, Size{Width: 300},
			base + key + "?x-oss-process=image/resize,w_300/format,webp/quality,q_80"},
		{"cos", StyleCOS, Size{},
			base + key + "?imageMogr2/format/webp/quality/80"},
		{"qiniu 带高度", StyleQiniu, Size{Height: 200},
			base + key + "?imageMogr2/thumbnail/x200/format/webp/quality/80"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(tt.style, 80)
			assert.Equal(t, tt.want, r.TransformURL(base, key, "webp", tt.size))
		})
	}
}

func TestNegotiate(t *testing.T) {
	assert.Equal(t, []string{"avif", "webp", "original"}, Negotiate("image/webp, image/AVIF"))
	assert.Equal(t, []string{"original"}, Negotiate(""))
	assert.Equal(t, []string{"webp", "original"}, Negotiate("text/html,image/webp;q=0.8"))
}

func TestParseTransformStyle(t *testing.T) {
	assert.Equal(t, StyleOSS, ParseTransformStyle(" OSS "))
	assert.Equal(t, StyleQiniu, ParseTransformStyle("qiniu"))
	assert.Equal(t, StyleCloudflare, ParseTransformStyle("unknown"))
}
