package listener

import (
	"context"
	"testing"
	"time"

	"github.com/osirismin/CattoPic/internal/pkg/event"
	"github.com/osirismin/CattoPic/pkg/domain/model"
	"github.com/osirismin/CattoPic/pkg/service/imagecache"
	"github.com/osirismin/CattoPic/pkg/service/utility"

	"github.com/stretchr/testify/assert"
)

func TestUploadCacheListener(t *testing.T) {
	tests := []struct {
		name        string
		tags        []string
		tagsCleared bool
	}{
		{"带标签的上传清除两类缓存", []string{"cat"}, true},
		{"无标签的上传只清除图片列表", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			svc := utility.NewMemoryCacheService()
			defer utility.StopCacheService(svc)
			cache := imagecache.New(svc, time.Minute)

			bus := event.NewEventBus()
			defer bus.Shutdown()
			NewUploadCacheListener(bus, cache)

			imagesKey := imagecache.ImagesListKey(model.ImageQuery{})
			tagsKey := imagecache.TagsListKey(1000)
			cache.Set(ctx, imagesKey, 1)
			cache.Set(ctx, tagsKey, 1)

			bus.Publish(event.ImageUploaded, event.ImageUploadedPayload{ImageID: "x", Tags: tt.tags})

			assert.Eventually(t, func() bool {
				_, hit := imagecache.Get[int](ctx, cache, imagesKey)
				return !hit
			}, 2*time.Second, 10*time.Millisecond)

			// Shutdown 等待所有 worker 处理完毕
			bus.Shutdown()
			_, tagsHit := imagecache.Get[int](ctx, cache, tagsKey)
			assert.Equal(t, !tt.tagsCleared, tagsHit)
		})
	}
}

func TestUploadCacheListener_IgnoresBadPayload(t *testing.T) {
	svc := utility.NewMemoryCacheService()
	defer utility.StopCacheService(svc)
	l := &UploadCacheListener{cache: imagecache.New(svc, time.Minute), timeout: time.Second}
	assert.NotPanics(t, func() { l.handleImageUploaded("not a payload") })
}
