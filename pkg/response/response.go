/*
 * @Description:
 * @Author: 安知鱼
 * @Date: 2025-06-15 12:16:18
 * @LastEditTime: 2026-10-12 15:30:44
 * @LastEditors: 安知鱼
 */
package response

import (
	"errors"
	"log"
	"net/http"

	"github.com/osirismin/CattoPic/pkg/constant"

	"github.com/gin-gonic/gin"
)

// Response 是统一的API返回结构体
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: message,
		Data:    data,
	})
}

// Fail 失败响应
func Fail(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// SuccessWithStatus 成功响应，但允许自定义 HTTP 状态码。
// 这对于返回 201 Created 或 202 Accepted 等状态非常有用。
func SuccessWithStatus(c *gin.Context, code int, data interface{}, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// StatusOf 把业务错误映射为 HTTP 状态码
func StatusOf(err error) int {
	switch {
	case errors.Is(err, constant.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, constant.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, constant.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, constant.ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Error 根据错误类型返回对应的状态码；内部错误只记录日志，不把细节返回给调用方
func Error(c *gin.Context, err error) {
	code := StatusOf(err)
	if code == http.StatusInternalServerError {
		log.Printf("[Response] %s %s 内部错误: %v", c.Request.Method, c.Request.URL.Path, err)
		Fail(c, code, constant.ErrInternalServer.Error())
		return
	}
	Fail(c, code, err.Error())
}
