/*
 * @Description: 图片上传、查询、修改、删除与随机取图接口
 * @Author: 安知鱼
 * @Date: 2026-09-11 09:40:12
 * @LastEditTime: 2026-10-12 17:02:38
 * @LastEditors: 安知鱼
 */
package image

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/osirismin/CattoPic/pkg/constant"
	"github.com/osirismin/CattoPic/pkg/domain/model"
	"github.com/osirismin/CattoPic/pkg/response"
	image_service "github.com/osirismin/CattoPic/pkg/service/image"
	"github.com/osirismin/CattoPic/pkg/service/lifecycle"

	"github.com/gin-gonic/gin"
)

// ImageService 是处理器依赖的图片业务能力
type ImageService interface {
	Upload(ctx context.Context, req *image_service.UploadRequest) (*image_service.ImageView, error)
	List(ctx context.Context, q model.ImageQuery) (*image_service.ImageListView, error)
	Get(ctx context.Context, id string) (*image_service.ImageView, error)
	Update(ctx context.Context, id string, params *model.UpdateImageParams) (*image_service.ImageView, error)
	Delete(ctx context.Context, id string) (*lifecycle.DeletionReport, error)
	Random(ctx context.Context, q *model.RandomQuery, format, accept string) (*image_service.RandomResult, error)
}

// Handler 封装了所有与图片相关的 HTTP 处理器。
type Handler struct {
	svc ImageService
	now func() time.Time
}

// NewHandler 是 Handler 的构造函数。
func NewHandler(svc ImageService) *Handler {
	return &Handler{svc: svc, now: time.Now}
}

// UploadResult 是单个文件的上传结果
type UploadResult struct {
	Filename string                   `json:"filename"`
	Success  bool                     `json:"success"`
	Error    string                   `json:"error,omitempty"`
	Image    *image_service.ImageView `json:"image,omitempty"`
}

// Upload
// @Summary      上传图片
// @Description  支持一次上传多个文件，每个文件独立校验、压缩和写入
// @Tags         图片
// @Security     ApiKeyAuth
// @Accept       multipart/form-data
// @Produce      json
// @Param        image          formData  file    true   "图片文件，可重复"
// @Param        tags           formData  string  false  "逗号分隔的标签"
// @Param        expiryMinutes  formData  int     false  "过期分钟数，0 表示永不过期"
// @Success      200  {object}  response.Response{data=[]UploadResult}  "全部成功"
// @Failure      400  {object}  response.Response  "未提供文件或全部校验失败"
// @Failure      401  {object}  response.Response  "未授权"
// @Router       /upload [post]
func (h *Handler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		response.Fail(c, http.StatusBadRequest, "解析上传表单失败: "+err.Error())
		return
	}
	files := form.File["image"]
	if len(files) == 0 {
		files = form.File["images"]
	}
	if len(files) == 0 {
		response.Error(c, constant.ErrNoFile)
		return
	}

	tags := model.SplitTagList(c.PostForm("tags"))
	expiry, err := optionalInt(c.PostForm("expiryMinutes"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, "expiryMinutes 必须是非负整数")
		return
	}

	results := make([]UploadResult, 0, len(files))
	var lastErr error
	for _, fh := range files {
		view, err := h.uploadOne(c.Request.Context(), fh, tags, expiry)
		if err != nil {
			lastErr = err
			results = append(results, UploadResult{Filename: fh.Filename, Error: uploadErrorMessage(err)})
			continue
		}
		results = append(results, UploadResult{Filename: fh.Filename, Success: true, Image: view})
	}

	switch {
	case lastErr == nil:
		response.Success(c, results, "上传成功")
	case len(files) == 1:
		response.Error(c, lastErr)
	default:
		// 部分成功时返回 207，客户端逐个查看结果
		response.SuccessWithStatus(c, http.StatusMultiStatus, results, "部分文件上传失败")
	}
}

func (h *Handler) uploadOne(ctx context.Context, fh *multipart.FileHeader, tags []string, expiry *int) (*image_service.ImageView, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: 读取上传文件失败", constant.ErrBadRequest)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: 读取上传文件失败", constant.ErrBadRequest)
	}
	return h.svc.Upload(ctx, &image_service.UploadRequest{
		Filename:      fh.Filename,
		Data:          data,
		Tags:          tags,
		ExpiryMinutes: expiry,
	})
}

func uploadErrorMessage(err error) string {
	if response.StatusOf(err) == http.StatusInternalServerError {
		return constant.ErrInternalServer.Error()
	}
	return err.Error()
}

// List
// @Summary      分页获取图片
// @Description  按上传时间倒序，可按标签与方向过滤
// @Tags         图片
// @Produce      json
// @Param        page         query  int     false  "页码，从 1 开始"
// @Param        limit        query  int     false  "每页数量，最大 100"
// @Param        tag          query  string  false  "标签"
// @Param        orientation  query  string  false  "landscape 或 portrait"
// @Success      200  {object}  response.Response{data=image_service.ImageListView}  "成功响应"
// @Failure      500  {object}  response.Response  "服务器内部错误"
// @Router       /images [get]
func (h *Handler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(model.DefaultPageSize)))

	result, err := h.svc.List(c.Request.Context(), model.ImageQuery{
		Page:        page,
		Limit:       limit,
		Tag:         model.SanitizeTagName(c.Query("tag")),
		Orientation: model.ParseOrientation(c.Query("orientation")),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result, "获取图片列表成功")
}

// Get
// @Summary      获取单张图片
// @Tags         图片
// @Produce      json
// @Param        id  path  string  true  "图片ID"
// @Success      200  {object}  response.Response{data=image_service.ImageView}  "成功响应"
// @Failure      404  {object}  response.Response  "图片不存在或已过期"
// @Router       /images/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	view, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, view, "获取图片成功")
}

// UpdateRequest 修改图片的请求体，字段缺省表示不修改
type UpdateRequest struct {
	Tags *[]string `json:"tags"`
	// ExpiryMinutes 从当前时刻起算，0 表示取消过期
	ExpiryMinutes *int `json:"expiryMinutes"`
}

// Update
// @Summary      修改图片
// @Description  替换标签集合，或重新设置过期时间
// @Tags         图片
// @Security     ApiKeyAuth
// @Accept       json
// @Produce      json
// @Param        id    path  string         true  "图片ID"
// @Param        body  body  UpdateRequest  true  "修改内容"
// @Success      200  {object}  response.Response{data=image_service.ImageView}  "成功响应"
// @Failure      400  {object}  response.Response  "请求参数错误"
// @Failure      404  {object}  response.Response  "图片不存在"
// @Router       /images/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "请求参数无效: "+err.Error())
		return
	}
	if req.Tags == nil && req.ExpiryMinutes == nil {
		response.Fail(c, http.StatusBadRequest, "没有需要修改的内容")
		return
	}

	params := &model.UpdateImageParams{Tags: req.Tags}
	if req.ExpiryMinutes != nil {
		switch minutes := *req.ExpiryMinutes; {
		case minutes < 0:
			response.Fail(c, http.StatusBadRequest, "expiryMinutes 必须是非负整数")
			return
		case minutes == 0:
			params.ClearExpiry = true
		default:
			t := h.now().UTC().Add(time.Duration(minutes) * time.Minute)
			params.ExpiryTime = &t
		}
	}

	view, err := h.svc.Update(c.Request.Context(), c.Param("id"), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, view, "修改成功")
}

// Delete
// @Summary      删除图片
// @Description  同步删除元数据并失效缓存，对象文件由后台队列删除
// @Tags         图片
// @Security     ApiKeyAuth
// @Produce      json
// @Param        id  path  string  true  "图片ID"
// @Success      200  {object}  response.Response{data=lifecycle.DeletionReport}  "成功响应"
// @Failure      404  {object}  response.Response  "图片不存在"
// @Router       /images/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	report, err := h.svc.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, report, "删除成功")
}

// Random
// @Summary      随机获取一张图片
// @Description  默认 302 跳转到图片地址；response=json 时返回图片信息
// @Tags         图片
// @Produce      json
// @Param        tags         query  string  false  "必须全部包含的标签，逗号分隔"
// @Param        exclude      query  string  false  "不能包含的标签，逗号分隔"
// @Param        orientation  query  string  false  "landscape 或 portrait"
// @Param        format       query  string  false  "auto / original / webp / avif"
// @Param        response     query  string  false  "json 返回图片信息而不跳转"
// @Success      200  {object}  response.Response  "成功响应"
// @Success      302  "跳转到图片地址"
// @Failure      404  {object}  response.Response  "没有符合条件的图片"
// @Router       /random [get]
func (h *Handler) Random(c *gin.Context) {
	q := &model.RandomQuery{
		Tags:        model.SplitTagList(c.Query("tags")),
		Exclude:     model.SplitTagList(c.Query("exclude")),
		Orientation: model.ParseOrientation(c.Query("orientation")),
	}
	accept := c.GetHeader("Accept")
	result, err := h.svc.Random(c.Request.Context(), q, c.Query("format"), accept)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Header("Vary", "Accept")
	if strings.EqualFold(c.Query("response"), "json") {
		response.Success(c, gin.H{"image": result.Image, "url": result.URL}, "获取随机图片成功")
		return
	}
	c.Redirect(http.StatusFound, result.URL)
}

// optionalInt 空字符串返回 nil，负数视为非法
func optionalInt(raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	if v < 0 {
		return nil, errors.New("negative value")
	}
	return &v, nil
}
