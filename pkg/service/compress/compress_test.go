package compress

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransformer struct {
	mu       sync.Mutex
	requests []TransformRequest
	// errs 按格式给出依次返回的错误，用完后成功
	errs map[string][]error
}

func (f *fakeTransformer) Name() string { return "fake" }

func (f *fakeTransformer) Transform(_ context.Context, _ []byte, req TransformRequest) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if queue := f.errs[req.Format]; len(queue) > 0 {
		f.errs[req.Format] = queue[1:]
		return nil, queue[0]
	}
	return []byte(req.Format + "-bytes"), nil
}

func (f *fakeTransformer) calls(format string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.Format == format {
			n++
		}
	}
	return n
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil))
	return buf.Bytes()
}

func gifBytes(t *testing.T, frames int) []byte {
	t.Helper()
	anim := &gif.GIF{}
	for i := 0; i < frames; i++ {
		p := image.NewPaletted(image.Rect(0, 0, 4, 4), color.Palette{color.Black, color.White})
		p.SetColorIndex(i%4, 0, 1)
		anim.Image = append(anim.Image, p)
		anim.Delay = append(anim.Delay, 10)
	}
	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, anim))
	return buf.Bytes()
}

func pngChunk(typ string, payload []byte) []byte {
	var b bytes.Buffer
	binary.Write(&b, binary.BigEndian, uint32(len(payload)))
	b.WriteString(typ)
	b.Write(payload)
	b.Write([]byte{0, 0, 0, 0}) // CRC 不参与判断
	return b.Bytes()
}

func webpChunk(typ string, payload []byte) []byte {
	var b bytes.Buffer
	b.WriteString(typ)
	binary.Write(&b, binary.LittleEndian, uint32(len(payload)))
	b.Write(payload)
	if len(payload)%2 == 1 {
		b.WriteByte(0)
	}
	return b.Bytes()
}

func riff(chunks ...[]byte) []byte {
	body := []byte("WEBP")
	for _, c := range chunks {
		body = append(body, c...)
	}
	var b bytes.Buffer
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(len(body)))
	b.Write(body)
	return b.Bytes()
}

func TestIsAnimated(t *testing.T) {
	pngSig := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	var staticPNG bytes.Buffer
	require.NoError(t, png.Encode(&staticPNG, image.NewRGBA(image.Rect(0, 0, 2, 2))))

	apng := append(append(append([]byte{}, pngSig...), pngChunk("IHDR", make([]byte, 13))...), pngChunk("acTL", make([]byte, 8))...)
	apng = append(apng, pngChunk("IDAT", []byte{1, 2, 3})...)

	tests := []struct {
		name   string
		data   []byte
		format string
		want   bool
	}{
		{"单帧 GIF", gifBytes(t, 1), "gif", false},
		{"多帧 GIF", gifBytes(t, 3), "gif", true},
		{"普通 PNG", staticPNG.Bytes(), "png", false},
		{"APNG", apng, "png", true},
		{"静态 WebP", riff(webpChunk("VP8 ", []byte{1, 2, 3})), "webp", false},
		{"带 ANIM 块的 WebP", riff(webpChunk("VP8X", make([]byte, 10)), webpChunk("ANIM", make([]byte, 6))), "webp", true},
		{"多个 ANMF 块的 WebP", riff(webpChunk("ANMF", []byte{1}), webpChunk("ANMF", []byte{2})), "webp", true},
		{"JPEG 不会是动图", jpegBytes(t, 2, 2), "jpeg", false},
		{"截断的数据", []byte("GIF89a"), "gif", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAnimated(tt.data, tt.format))
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"超时", errors.New("request Timeout exceeded"), true},
		{"连接重置", errors.New("read tcp: connection reset by peer"), true},
		{"DNS 临时失败", errors.New("dial tcp: lookup x: Temporary failure in name resolution"), true},
		{"意外 EOF", io.ErrUnexpectedEOF, true},
		{"截止时间", context.DeadlineExceeded, true},
		{"主动取消", context.Canceled, false},
		{"格式错误", errors.New("unsupported image format"), false},
		{"连接被拒绝", errors.New("dial tcp 10.0.0.1:8503: connect: connection refused"), true},
		{"服务不可用", &StatusError{Code: http.StatusServiceUnavailable}, true},
		{"网关超时", fmt.Errorf("wrap: %w", &StatusError{Code: http.StatusGatewayTimeout}), true},
		{"请求错误不重试", &StatusError{Code: http.StatusBadRequest, Body: "retry after 503 ms"}, false},
		{"错误信息里的数字不算状态码", errors.New("image too large: 5030 bytes"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	assert.Equal(t, 100*time.Millisecond, backoff(base, 1))
	assert.Equal(t, 200*time.Millisecond, backoff(base, 2))
	assert.Equal(t, 400*time.Millisecond, backoff(base, 3))
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		name       string
		w, h       int
		maxW, maxH int
		wantW      int
		wantH      int
	}{
		{"小图不放大", 800, 600, 3840, 3840, 800, 600},
		{"宽度超限", 4000, 2000, 3840, 3840, 3840, 1920},
		{"高度超限", 2000, 3000, 1600, 1600, 1067, 1600},
		{"恰好等于边界", 1600, 1600, 1600, 1600, 1600, 1600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := FitWithin(tt.w, tt.h, tt.maxW, tt.maxH)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
		})
	}
}

func TestOptionsNormalize(t *testing.T) {
	o := Options{Quality: 500}.Normalize()
	assert.Equal(t, 100, o.Quality)
	assert.Equal(t, DefaultMaxWidth, o.MaxWidth)
	assert.Equal(t, DefaultMaxHeight, o.MaxHeight)
	assert.Equal(t, DefaultQuality, Options{}.Normalize().Quality)
}

func TestEngine_GeneratesBothVariants(t *testing.T) {
	ft := &fakeTransformer{}
	e := NewEngine(ft, time.Millisecond)

	res, err := e.Compress(context.Background(), jpegBytes(t, 2000, 3000), "jpeg", DefaultOptions())
	require.NoError(t, err)
	require.NotNil(t, res.WebP)
	require.NotNil(t, res.AVIF)
	assert.False(t, res.IsAnimated)

	assert.Equal(t, 2000, res.WebP.Width)
	assert.Equal(t, 3000, res.WebP.Height)
	assert.Equal(t, 1067, res.AVIF.Width)
	assert.Equal(t, 1600, res.AVIF.Height)

	require.Len(t, ft.requests, 2)
	assert.Equal(t, "webp", ft.requests[0].Format)
	assert.Equal(t, "avif", ft.requests[1].Format)
	assert.Equal(t, 90, ft.requests[0].Quality)
}

func TestEngine_Retries(t *testing.T) {
	transient := errors.New("i/o timeout")
	permanent := errors.New("bad input")

	tests := []struct {
		name      string
		errs      map[string][]error
		webpOK    bool
		avifOK    bool
		webpCalls int
		avifCalls int
	}{
		{"WebP 一次瞬时失败后成功", map[string][]error{"webp": {transient}}, true, true, 2, 1},
		{"WebP 两次瞬时失败后放弃", map[string][]error{"webp": {transient, transient}}, false, true, 2, 1},
		{"AVIF 两次瞬时失败后第三次成功", map[string][]error{"avif": {transient, transient}}, true, true, 1, 3},
		{"AVIF 三次都失败", map[string][]error{"avif": {transient, transient, transient}}, true, false, 1, 3},
		{"非瞬时错误不重试", map[string][]error{"webp": {permanent}, "avif": {permanent}}, false, false, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := &fakeTransformer{errs: tt.errs}
			e := NewEngine(ft, time.Millisecond)

			res, err := e.Compress(context.Background(), jpegBytes(t, 10, 10), "jpeg", DefaultOptions())
			require.NoError(t, err)
			assert.Equal(t, tt.webpOK, res.WebP != nil)
			assert.Equal(t, tt.avifOK, res.AVIF != nil)
			assert.Equal(t, tt.webpCalls, ft.calls("webp"))
			assert.Equal(t, tt.avifCalls, ft.calls("avif"))
		})
	}
}

func TestEngine_AnimatedGIFSkipped(t *testing.T) {
	ft := &fakeTransformer{}
	e := NewEngine(ft, time.Millisecond)

	res, err := e.Compress(context.Background(), gifBytes(t, 2), "gif", DefaultOptions())
	require.NoError(t, err)
	assert.True(t, res.IsAnimated)
	assert.Nil(t, res.WebP)
	assert.Nil(t, res.AVIF)
	assert.Empty(t, ft.requests)
}

func TestEngine_Toggles(t *testing.T) {
	ft := &fakeTransformer{}
	e := NewEngine(ft, time.Millisecond)
	opts := DefaultOptions()
	opts.GenerateAVIF = false

	res, err := e.Compress(context.Background(), jpegBytes(t, 10, 10), "jpeg", opts)
	require.NoError(t, err)
	assert.NotNil(t, res.WebP)
	assert.Nil(t, res.AVIF)
	assert.Equal(t, 0, ft.calls("avif"))
}

func TestEngine_NoopTransformerOmitsVariants(t *testing.T) {
	e := NewEngine(noopTransformer{}, time.Millisecond)
	res, err := e.Compress(context.Background(), jpegBytes(t, 10, 10), "jpeg", DefaultOptions())
	require.NoError(t, err)
	assert.Nil(t, res.WebP)
	assert.Nil(t, res.AVIF)
}

func TestVipsArgs(t *testing.T) {
	args := vipsArgs(TransformRequest{Format: "webp", Quality: 80, Width: 100, Height: 50})
	assert.Equal(t, []string{"thumbnail_source", "[descriptor=0]", ".webp[Q=80,strip]", "100", "--height", "50", "--size", "down"}, args)
}

func TestHTTPTransformer(t *testing.T) {
	var gotQuery string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotBody, _ = io.ReadAll(r.Body)
		if r.URL.Query().Get("format") == "avif" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("converted"))
	}))
	defer srv.Close()

	tr := NewHTTPTransformer(srv.URL+"/transform", srv.Client())

	out, err := tr.Transform(context.Background(), []byte("src"), TransformRequest{Format: "webp", Quality: 90, Width: 10})
	require.NoError(t, err)
	assert.Equal(t, "converted", string(out))
	assert.Equal(t, "src", string(gotBody))
	assert.Equal(t, "format=webp&quality=90&width=10", gotQuery)

	_, err = tr.Transform(context.Background(), []byte("src"), TransformRequest{Format: "avif", Quality: 90})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
}
