package utility

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheService_SetGet(t *testing.T) {
	ctx := context.Background()
	svc := NewMemoryCacheService()
	defer StopCacheService(svc)

	require.NoError(t, svc.Set(ctx, "k", "v", 0))
	require.NoError(t, svc.Set(ctx, "b", []byte(`{"a":1}`), time.Minute))
	require.NoError(t, svc.Set(ctx, "n", 42, 0))

	got, err := svc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	got, _ = svc.Get(ctx, "b")
	assert.Equal(t, `{"a":1}`, got)

	got, _ = svc.Get(ctx, "n")
	assert.Equal(t, "42", got)

	got, err = svc.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, svc.Delete(ctx, "k", "n"))
	got, _ = svc.Get(ctx, "k")
	assert.Empty(t, got)
}

func TestMemoryCacheService_Expiry(t *testing.T) {
	ctx := context.Background()
	svc := NewMemoryCacheService()
	defer StopCacheService(svc)

	require.NoError(t, svc.Set(ctx, "short", "v", 20*time.Millisecond))
	time.Sleep(40 * time.Millisecond)

	got, err := svc.Get(ctx, "short")
	require.NoError(t, err)
	assert.Empty(t, got)

	keys, _ := svc.Scan(ctx, "*")
	assert.NotContains(t, keys, "short")
}

func TestMemoryCacheService_ScanAndDeletePattern(t *testing.T) {
	ctx := context.Background()
	svc := NewMemoryCacheService()
	defer StopCacheService(svc)

	for _, k := range []string{
		"cattopic:images:list:p1:l20",
		"cattopic:images:list:p2:l20",
		"cattopic:tags:list:1000",
	} {
		require.NoError(t, svc.Set(ctx, k, "x", 0))
	}

	keys, err := svc.Scan(ctx, "cattopic:images:list:*")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"cattopic:images:list:p1:l20", "cattopic:images:list:p2:l20"}, keys)

	n, err := svc.DeletePattern(ctx, "cattopic:images:list:*")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	keys, _ = svc.Scan(ctx, "cattopic:*")
	assert.Equal(t, []string{"cattopic:tags:list:1000"}, keys)
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		s, pattern string
		want       bool
	}{
		{"abc", "abc", true},
		{"abc", "abd", false},
		{"abc", "*", true},
		{"abc", "a*", true},
		{"abc", "*c", true},
		{"abc", "a*c", true},
		{"abc", "a*b*c", true},
		{"ac", "a*b*c", false},
		{"aba", "ab*ba", false},
		{"tags:list:10", "images:*", false},
	}
	for _, tt := range tests {
		t.Run(tt.s+"~"+tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.want, matchPattern(tt.s, tt.pattern))
		})
	}
}

func TestGetCacheServiceType(t *testing.T) {
	mem := NewCacheServiceWithFallback(nil)
	defer StopCacheService(mem)
	assert.Equal(t, CacheTypeMemory, GetCacheServiceType(mem))
	assert.Equal(t, CacheTypeRedis, GetCacheServiceType(NewCacheService(nil)))
}

func TestColorService_GetPrimaryColor(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
	}{
		{"小图直接取色", 32, 32},
		{"大图先缩放再取色", 800, 500},
	}
	svc := &ColorService{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := image.NewRGBA(image.Rect(0, 0, tt.width, tt.height))
			for y := 0; y < tt.height; y++ {
				for x := 0; x < tt.width; x++ {
					img.Set(x, y, color.RGBA{R: 200, G: 10, B: 10, A: 255})
				}
			}
			var buf bytes.Buffer
			require.NoError(t, png.Encode(&buf, img))

			got, err := svc.GetPrimaryColor(buf.Bytes())
			require.NoError(t, err)
			// 缩放插值可能带来 ±1 的误差
			var r, g, b int
			_, err = fmt.Sscanf(got, "#%02x%02x%02x", &r, &g, &b)
			require.NoError(t, err)
			assert.InDelta(t, 200, r, 2)
			assert.InDelta(t, 10, g, 2)
			assert.InDelta(t, 10, b, 2)
		})
	}

	_, err := svc.GetPrimaryColor([]byte("not an image"))
	assert.Error(t, err)
}
