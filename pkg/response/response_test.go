package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/osirismin/CattoPic/pkg/constant"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"未找到", fmt.Errorf("图片 x: %w", constant.ErrNotFound), http.StatusNotFound},
		{"标签已存在", constant.ErrTagExists, http.StatusConflict},
		{"格式不支持", constant.ErrUnsupportedFormat, http.StatusBadRequest},
		{"空标签名", constant.ErrEmptyTagName, http.StatusBadRequest},
		{"未授权", constant.ErrUnauthorized, http.StatusUnauthorized},
		{"未知错误", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.err))
		})
	}
}

func TestError_HidesInternalDetail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/images", nil)

	Error(c, errors.New("sql: connection refused at 10.0.0.5"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, http.StatusInternalServerError, body.Code)
	assert.Equal(t, constant.ErrInternalServer.Error(), body.Message)
	assert.NotContains(t, w.Body.String(), "10.0.0.5")
}
