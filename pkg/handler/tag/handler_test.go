package tag

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/osirismin/CattoPic/pkg/constant"
	"github.com/osirismin/CattoPic/pkg/domain/model"
	"github.com/osirismin/CattoPic/pkg/service/lifecycle"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type fakeService struct {
	renamed [2]string
	batch   [][]string
}

func (f *fakeService) List(_ context.Context, limit int) ([]*model.Tag, error) {
	return []*model.Tag{{Name: "a", Count: 1}}, nil
}

func (f *fakeService) Create(_ context.Context, name string) (*model.Tag, error) {
	switch strings.TrimSpace(name) {
	case "":
		return nil, constant.ErrEmptyTagName
	case "dup":
		return nil, constant.ErrTagExists
	}
	return &model.Tag{Name: name}, nil
}

func (f *fakeService) Rename(_ context.Context, oldName, newName string) (int64, error) {
	f.renamed = [2]string{oldName, newName}
	if oldName == "missing" {
		return 0, fmt.Errorf("标签 %s: %w", oldName, constant.ErrNotFound)
	}
	return 3, nil
}

func (f *fakeService) DeleteWithImages(_ context.Context, name string) (*lifecycle.DeletionReport, error) {
	return &lifecycle.DeletionReport{Stage: lifecycle.StageObjectsQueued, TagName: name}, nil
}

func (f *fakeService) BatchUpdate(_ context.Context, imageIDs, addTags, removeTags []string) error {
	f.batch = [][]string{imageIDs, addTags, removeTags}
	if len(addTags) == 0 && len(removeTags) == 0 {
		return constant.ErrEmptyTagName
	}
	return nil
}

func newRouter(svc TagService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(svc)
	r := gin.New()
	r.GET("/api/tags", h.List)
	r.POST("/api/tags", h.Create)
	r.POST("/api/tags/batch", h.Batch)
	r.PUT("/api/tags/:name", h.Rename)
	r.DELETE("/api/tags/:name", h.Delete)
	return r
}

func TestHandler(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		wantCode int
		wantBody string
	}{
		{"列表", http.MethodGet, "/api/tags", "", http.StatusOK, `"name":"a"`},
		{"创建", http.MethodPost, "/api/tags", `{"name":"cat"}`, http.StatusOK, `"name":"cat"`},
		{"创建缺少名称", http.MethodPost, "/api/tags", `{}`, http.StatusBadRequest, ""},
		{"创建空白名称", http.MethodPost, "/api/tags", `{"name":"  "}`, http.StatusBadRequest, constant.ErrEmptyTagName.Error()},
		{"创建重复", http.MethodPost, "/api/tags", `{"name":"dup"}`, http.StatusConflict, constant.ErrTagExists.Error()},
		{"重命名", http.MethodPut, "/api/tags/a", `{"newName":"c"}`, http.StatusOK, `"affectedImages":3`},
		{"重命名不存在", http.MethodPut, "/api/tags/missing", `{"newName":"c"}`, http.StatusNotFound, ""},
		{"删除", http.MethodDelete, "/api/tags/c", "", http.StatusOK, `"stage":"OBJECTS_QUEUED"`},
		{"批量更新", http.MethodPost, "/api/tags/batch", `{"imageIds":["x"],"addTags":["a"]}`, http.StatusOK, ""},
		{"批量更新没有标签", http.MethodPost, "/api/tags/batch", `{"imageIds":["x"]}`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(&fakeService{})
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantBody != "" {
				assert.Contains(t, w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestRename_PassesPathName(t *testing.T) {
	svc := &fakeService{}
	r := newRouter(svc)
	req := httptest.NewRequest(http.MethodPut, "/api/tags/%E7%8C%AB", strings.NewReader(`{"newName":"狗"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, [2]string{"猫", "狗"}, svc.renamed)
}
