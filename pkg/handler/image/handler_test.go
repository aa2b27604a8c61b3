package image

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/osirismin/CattoPic/pkg/constant"
	"github.com/osirismin/CattoPic/pkg/domain/model"
	image_service "github.com/osirismin/CattoPic/pkg/service/image"
	"github.com/osirismin/CattoPic/pkg/service/lifecycle"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	uploads    []*image_service.UploadRequest
	uploadErr  map[string]error
	lastQuery  model.ImageQuery
	lastUpdate *model.UpdateImageParams
	lastRandom *model.RandomQuery
	lastFormat string
	lastAccept string
	randomErr  error
}

func (f *fakeService) Upload(_ context.Context, req *image_service.UploadRequest) (*image_service.ImageView, error) {
	f.uploads = append(f.uploads, req)
	if err := f.uploadErr[req.Filename]; err != nil {
		return nil, err
	}
	return &image_service.ImageView{Image: &model.Image{ID: "id-" + req.Filename, Filename: req.Filename, Tags: req.Tags}}, nil
}

func (f *fakeService) List(_ context.Context, q model.ImageQuery) (*image_service.ImageListView, error) {
	f.lastQuery = q
	return &image_service.ImageListView{Page: q.Page, Limit: q.Limit}, nil
}

func (f *fakeService) Get(_ context.Context, id string) (*image_service.ImageView, error) {
	if id == "missing" {
		return nil, fmt.Errorf("图片 %s: %w", id, constant.ErrNotFound)
	}
	return &image_service.ImageView{Image: &model.Image{ID: id}}, nil
}

func (f *fakeService) Update(_ context.Context, id string, params *model.UpdateImageParams) (*image_service.ImageView, error) {
	f.lastUpdate = params
	return &image_service.ImageView{Image: &model.Image{ID: id}}, nil
}

func (f *fakeService) Delete(_ context.Context, id string) (*lifecycle.DeletionReport, error) {
	return &lifecycle.DeletionReport{Stage: lifecycle.StageObjectsQueued, DeletedImages: 1, QueuedJobs: 1}, nil
}

func (f *fakeService) Random(_ context.Context, q *model.RandomQuery, format, accept string) (*image_service.RandomResult, error) {
	f.lastRandom, f.lastFormat, f.lastAccept = q, format, accept
	if f.randomErr != nil {
		return nil, f.randomErr
	}
	return &image_service.RandomResult{Image: &model.Image{ID: "r1"}, URL: "https://img.example.com/portrait/avif/r1.avif"}, nil
}

func newRouter(svc ImageService) (*gin.Engine, *Handler) {
	gin.SetMode(gin.TestMode)
	h := NewHandler(svc)
	h.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	r := gin.New()
	r.POST("/api/upload", h.Upload)
	r.GET("/api/images", h.List)
	r.GET("/api/images/:id", h.Get)
	r.PUT("/api/images/:id", h.Update)
	r.DELETE("/api/images/:id", h.Delete)
	r.GET("/api/random", h.Random)
	return r, h
}

func multipartBody(t *testing.T, fields map[string]string, files ...string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for _, name := range files {
		part, err := w.CreateFormFile("image", name)
		require.NoError(t, err)
		_, err = part.Write([]byte("fake-bytes"))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func TestUpload(t *testing.T) {
	tests := []struct {
		name      string
		fields    map[string]string
		files     []string
		uploadErr map[string]error
		wantCode  int
		wantCalls int
	}{
		{"单个文件成功", map[string]string{"tags": "a, b,a"}, []string{"a.jpg"}, nil, http.StatusOK, 1},
		{"未提供文件", nil, nil, nil, http.StatusBadRequest, 0},
		{"过期时间非法", map[string]string{"expiryMinutes": "-1"}, []string{"a.jpg"}, nil, http.StatusBadRequest, 0},
		{"单个文件格式不支持", nil, []string{"a.txt"}, map[string]error{"a.txt": constant.ErrUnsupportedFormat}, http.StatusBadRequest, 1},
		{"部分成功", nil, []string{"a.jpg", "b.txt"}, map[string]error{"b.txt": constant.ErrUnsupportedFormat}, http.StatusMultiStatus, 2},
		{"存储失败不泄露细节", nil, []string{"a.jpg"}, map[string]error{"a.jpg": errors.New("s3: access denied")}, http.StatusInternalServerError, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{uploadErr: tt.uploadErr}
			r, _ := newRouter(svc)
			body, contentType := multipartBody(t, tt.fields, tt.files...)
			req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
			req.Header.Set("Content-Type", contentType)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Len(t, svc.uploads, tt.wantCalls)
			assert.NotContains(t, w.Body.String(), "access denied")
		})
	}
}

func TestUpload_PassesTagsAndExpiry(t *testing.T) {
	svc := &fakeService{}
	r, _ := newRouter(svc)
	body, contentType := multipartBody(t, map[string]string{"tags": "cat, dog ,cat", "expiryMinutes": "30"}, "a.jpg")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, svc.uploads, 1)
	assert.Equal(t, []string{"cat", "dog"}, svc.uploads[0].Tags)
	require.NotNil(t, svc.uploads[0].ExpiryMinutes)
	assert.Equal(t, 30, *svc.uploads[0].ExpiryMinutes)
	assert.Equal(t, []byte("fake-bytes"), svc.uploads[0].Data)
}

func TestList_ParsesQuery(t *testing.T) {
	svc := &fakeService{}
	r, _ := newRouter(svc)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/images?page=2&limit=5&tag=cat&orientation=portrait", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.ImageQuery{Page: 2, Limit: 5, Tag: "cat", Orientation: model.OrientationPortrait}, svc.lastQuery)
}

func TestGet_NotFound(t *testing.T) {
	r, _ := newRouter(&fakeService{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/images/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdate(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		check    func(t *testing.T, p *model.UpdateImageParams)
	}{
		{"替换标签", `{"tags":["a","b"]}`, http.StatusOK, func(t *testing.T, p *model.UpdateImageParams) {
			require.NotNil(t, p.Tags)
			assert.Equal(t, []string{"a", "b"}, *p.Tags)
			assert.Nil(t, p.ExpiryTime)
		}},
		{"设置过期时间", `{"expiryMinutes":60}`, http.StatusOK, func(t *testing.T, p *model.UpdateImageParams) {
			require.NotNil(t, p.ExpiryTime)
			assert.Equal(t, time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC), *p.ExpiryTime)
		}},
		{"取消过期", `{"expiryMinutes":0}`, http.StatusOK, func(t *testing.T, p *model.UpdateImageParams) {
			assert.True(t, p.ClearExpiry)
		}},
		{"空请求", `{}`, http.StatusBadRequest, nil},
		{"负数过期时间", `{"expiryMinutes":-5}`, http.StatusBadRequest, nil},
		{"非法 JSON", `{`, http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{}
			r, _ := newRouter(svc)
			req := httptest.NewRequest(http.MethodPut, "/api/images/x", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.check != nil {
				tt.check(t, svc.lastUpdate)
			}
		})
	}
}

func TestDelete(t *testing.T) {
	r, _ := newRouter(&fakeService{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/images/x", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data lifecycle.DeletionReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, lifecycle.StageObjectsQueued, body.Data.Stage)
}

func TestRandom(t *testing.T) {
	t.Run("默认跳转", func(t *testing.T) {
		svc := &fakeService{}
		r, _ := newRouter(svc)
		req := httptest.NewRequest(http.MethodGet, "/api/random?tags=a,b&exclude=c&orientation=portrait&format=auto", nil)
		req.Header.Set("Accept", "image/avif,image/webp,*/*")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "https://img.example.com/portrait/avif/r1.avif", w.Header().Get("Location"))
		assert.Equal(t, "Accept", w.Header().Get("Vary"))
		assert.Equal(t, []string{"a", "b"}, svc.lastRandom.Tags)
		assert.Equal(t, []string{"c"}, svc.lastRandom.Exclude)
		assert.Equal(t, model.OrientationPortrait, svc.lastRandom.Orientation)
		assert.Equal(t, "auto", svc.lastFormat)
		assert.Equal(t, "image/avif,image/webp,*/*", svc.lastAccept)
	})

	t.Run("返回 JSON", func(t *testing.T) {
		r, _ := newRouter(&fakeService{})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/random?response=json", nil))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"url":"https://img.example.com/portrait/avif/r1.avif"`)
	})

	t.Run("没有匹配的图片", func(t *testing.T) {
		r, _ := newRouter(&fakeService{randomErr: constant.ErrNotFound})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/random?tags=none", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
