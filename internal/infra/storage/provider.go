/*
 * @Description: 定义了所有存储驱动需要遵守的接口和公共结构
 * @Author: 安知鱼
 * @Date: 2026-09-05 00:21:55
 * @LastEditTime: 2026-10-07 11:26:38
 * @LastEditors: 安知鱼
 */
package storage

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/osirismin/CattoPic/pkg/constant"
	"github.com/osirismin/CattoPic/pkg/domain/model"
)

// ErrObjectNotFound 表示对象不存在，Get 在对象缺失时返回它
var ErrObjectNotFound = errors.New("object not found")

// 对象键中的变体目录
const (
	KindOriginal = "original"
	KindWebP     = "webp"
	KindAVIF     = "avif"
)

// Options 创建存储提供者所需的配置，字段含义随类型不同：
// S3 的 Endpoint 可为空（使用 Region），OSS/COS 的 Endpoint 为访问域名，七牛的 Endpoint 为上传域名
type Options struct {
	Type      constant.StorageType
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	// LocalPath 本地存储根目录
	LocalPath string
}

// Provider 定义了所有对象存储提供者必须实现的接口。
// 键是不以 / 开头的对象路径，如 images/landscape/webp/abc.webp。
type Provider interface {
	// Name 返回提供者名称，用于日志
	Name() string
	// Put 写入对象，已存在时覆盖
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get 读取对象内容，不存在时返回 ErrObjectNotFound
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete 删除对象，对象不存在视为成功
	Delete(ctx context.Context, key string) error
	// Exists 检查对象是否存在
	Exists(ctx context.Context, key string) (bool, error)
}

// ParseType 解析配置中的存储类型，兼容简写
func ParseType(s string) (constant.StorageType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "local":
		return constant.StorageTypeLocal, nil
	case "s3", "aws_s3", "r2", "minio":
		return constant.StorageTypeS3, nil
	case "oss", "aliyun_oss":
		return constant.StorageTypeAliOSS, nil
	case "cos", "tencent_cos":
		return constant.StorageTypeTencentCOS, nil
	case "qiniu", "kodo", "qiniu_kodo":
		return constant.StorageTypeQiniu, nil
	default:
		return "", fmt.Errorf("不支持的存储类型: %s", s)
	}
}

// NewProvider 根据配置创建对应的存储提供者
func NewProvider(ctx context.Context, opts Options) (Provider, error) {
	switch opts.Type {
	case constant.StorageTypeLocal, "":
		return NewLocalProvider(opts.LocalPath)
	case constant.StorageTypeS3:
		return NewAWSS3Provider(ctx, opts)
	case constant.StorageTypeAliOSS:
		return NewAliOSSProvider(opts)
	case constant.StorageTypeTencentCOS:
		return NewTencentCOSProvider(opts)
	case constant.StorageTypeQiniu:
		return NewQiniuKodoProvider(opts)
	default:
		return nil, fmt.Errorf("不支持的存储类型: %s", opts.Type)
	}
}

// ObjectKey 生成对象键: images/<orientation>/<kind>/<id>.<ext>
func ObjectKey(orientation model.Orientation, kind, id, ext string) string {
	return path.Join("images", string(orientation), kind, id+"."+strings.TrimPrefix(ext, "."))
}

// ContentTypeOf 根据对象键扩展名推断 Content-Type
func ContentTypeOf(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".avif":
		return "image/avif"
	case ".webp":
		return "image/webp"
	}
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// DeleteAll 逐个删除对象，不存在的对象视为成功；返回所有失败合并后的错误
func DeleteAll(ctx context.Context, p Provider, keys []string) error {
	var errs []error
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := p.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("删除对象 %s 失败: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
