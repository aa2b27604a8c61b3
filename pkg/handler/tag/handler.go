package tag

import (
	"context"
	"net/http"
	"strconv"

	"github.com/osirismin/CattoPic/pkg/domain/model"
	"github.com/osirismin/CattoPic/pkg/response"
	"github.com/osirismin/CattoPic/pkg/service/lifecycle"

	"github.com/gin-gonic/gin"
)

// TagService 是处理器依赖的标签业务能力
type TagService interface {
	List(ctx context.Context, limit int) ([]*model.Tag, error)
	Create(ctx context.Context, name string) (*model.Tag, error)
	Rename(ctx context.Context, oldName, newName string) (int64, error)
	DeleteWithImages(ctx context.Context, name string) (*lifecycle.DeletionReport, error)
	BatchUpdate(ctx context.Context, imageIDs, addTags, removeTags []string) error
}

// Handler 封装了所有与标签相关的 HTTP 处理器。
type Handler struct {
	svc TagService
}

// NewHandler 是 Handler 的构造函数。
func NewHandler(svc TagService) *Handler {
	return &Handler{svc: svc}
}

type CreateRequest struct {
	Name string `json:"name" binding:"required"`
}

type RenameRequest struct {
	NewName string `json:"newName" binding:"required"`
}

type BatchRequest struct {
	ImageIDs   []string `json:"imageIds" binding:"required"`
	AddTags    []string `json:"addTags"`
	RemoveTags []string `json:"removeTags"`
}

// List
// @Summary      获取标签列表
// @Description  按名称排序，附带每个标签的图片数量
// @Tags         标签
// @Produce      json
// @Param        limit  query  int  false  "最多返回的数量"
// @Success      200 {object} response.Response{data=[]model.Tag} "成功响应"
// @Failure      500 {object} response.Response "服务器内部错误"
// @Router       /tags [get]
func (h *Handler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	tags, err := h.svc.List(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, tags, "获取标签列表成功")
}

// Create
// @Summary      创建标签
// @Tags         标签
// @Security     ApiKeyAuth
// @Accept       json
// @Produce      json
// @Param        tag body CreateRequest true "标签名"
// @Success      200 {object} response.Response{data=model.Tag} "成功响应"
// @Failure      400 {object} response.Response "标签名为空"
// @Failure      409 {object} response.Response "标签已存在"
// @Router       /tags [post]
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "请求参数无效: "+err.Error())
		return
	}
	tag, err := h.svc.Create(c.Request.Context(), req.Name)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, tag, "创建成功")
}

// Rename
// @Summary      重命名标签
// @Description  保留全部图片关联；目标名称已存在时返回 409
// @Tags         标签
// @Security     ApiKeyAuth
// @Accept       json
// @Produce      json
// @Param        name  path  string         true  "原标签名"
// @Param        body  body  RenameRequest  true  "新标签名"
// @Success      200 {object} response.Response "成功响应"
// @Failure      404 {object} response.Response "标签不存在"
// @Failure      409 {object} response.Response "目标标签已存在"
// @Router       /tags/{name} [put]
func (h *Handler) Rename(c *gin.Context) {
	var req RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "请求参数无效: "+err.Error())
		return
	}
	affected, err := h.svc.Rename(c.Request.Context(), c.Param("name"), req.NewName)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"name": model.SanitizeTagName(req.NewName), "affectedImages": affected}, "重命名成功")
}

// Delete
// @Summary      删除标签及其图片
// @Description  带有该标签的图片会一并删除，对象文件由后台队列删除
// @Tags         标签
// @Security     ApiKeyAuth
// @Produce      json
// @Param        name  path  string  true  "标签名"
// @Success      200 {object} response.Response{data=lifecycle.DeletionReport} "成功响应"
// @Failure      400 {object} response.Response "标签名为空"
// @Router       /tags/{name} [delete]
func (h *Handler) Delete(c *gin.Context) {
	report, err := h.svc.DeleteWithImages(c.Request.Context(), c.Param("name"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, report, "删除成功")
}

// Batch
// @Summary      批量添加、移除标签
// @Tags         标签
// @Security     ApiKeyAuth
// @Accept       json
// @Produce      json
// @Param        body  body  BatchRequest  true  "图片与标签"
// @Success      200 {object} response.Response "成功响应"
// @Failure      400 {object} response.Response "请求参数错误"
// @Router       /tags/batch [post]
func (h *Handler) Batch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "请求参数无效: "+err.Error())
		return
	}
	if err := h.svc.BatchUpdate(c.Request.Context(), req.ImageIDs, req.AddTags, req.RemoveTags); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil, "批量更新成功")
}
