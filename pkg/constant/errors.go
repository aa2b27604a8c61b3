/*
 * @Description:
 * @Author: 安知鱼
 * @Date: 2026-09-02 10:40:03
 * @LastEditTime: 2026-10-08 16:22:51
 * @LastEditors: 安知鱼
 */
package constant

import "errors"

// 定义业务逻辑相关的标准错误
var (
	// ErrNotFound 表示资源未找到，可以由 Handler 转换为 404
	ErrNotFound = errors.New("资源未找到")

	// ErrConflict 表示资源冲突，可以由 Handler 转换为 409
	ErrConflict = errors.New("资源冲突")

	// ErrBadRequest 表示请求参数错误，可以由 Handler 转换为 400
	ErrBadRequest = errors.New("错误的请求")

	// ErrUnauthorized 表示未授权，可以由 Handler 转换为 401
	ErrUnauthorized = errors.New("未经授权的访问")

	// ErrInternalServer 表示服务器内部错误，可以由 Handler 转换为 500
	ErrInternalServer = errors.New("内部服务器错误")
)

// 上传与标签相关的校验错误，均包装了 ErrBadRequest 或 ErrConflict
var (
	ErrNoFile            = wrap(ErrBadRequest, "未提供图片文件")
	ErrFileTooLarge      = wrap(ErrBadRequest, "图片文件过大")
	ErrUnsupportedFormat = wrap(ErrBadRequest, "不支持的图片格式")
	ErrEmptyTagName      = wrap(ErrBadRequest, "标签名不能为空")
	ErrTagExists         = wrap(ErrConflict, "标签已存在")
)

type wrappedError struct {
	parent error
	msg    string
}

func (e *wrappedError) Error() string { return e.msg }
func (e *wrappedError) Unwrap() error { return e.parent }

func wrap(parent error, msg string) error {
	return &wrappedError{parent: parent, msg: msg}
}
