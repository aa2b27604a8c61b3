/*
 * @Description: 阿里云OSS存储提供者实现
 * @Author: 安知鱼
 * @Date: 2026-09-05 20:10:00
 * @LastEditTime: 2026-10-07 18:32:41
 * @LastEditors: 安知鱼
 */
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
)

// AliOSSProvider 实现了 Provider 接口，用于处理与阿里云OSS的所有交互。
type AliOSSProvider struct {
	bucket *oss.Bucket
}

// NewAliOSSProvider Endpoint 格式如: https://oss-cn-shanghai.aliyuncs.com
func NewAliOSSProvider(opts Options) (Provider, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("阿里云OSS配置缺少存储桶名称")
	}
	if opts.AccessKey == "" || opts.SecretKey == "" {
		return nil, fmt.Errorf("阿里云OSS配置缺少AccessKey或SecretKey")
	}
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("阿里云OSS配置缺少Endpoint")
	}

	client, err := oss.New(opts.Endpoint, opts.AccessKey, opts.SecretKey)
	if err != nil {
		log.Printf("[阿里云OSS] 创建客户端失败: %v", err)
		return nil, fmt.Errorf("创建阿里云OSS客户端失败: %w", err)
	}
	bucket, err := client.Bucket(opts.Bucket)
	if err != nil {
		log.Printf("[阿里云OSS] 获取存储桶失败: %v", err)
		return nil, fmt.Errorf("获取阿里云OSS存储桶失败: %w", err)
	}

	log.Printf("[阿里云OSS] 成功创建客户端和存储桶: %s", opts.Bucket)
	return &AliOSSProvider{bucket: bucket}, nil
}

func (p *AliOSSProvider) Name() string { return "aliyun_oss" }

func (p *AliOSSProvider) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = ContentTypeOf(key)
	}
	err := p.bucket.PutObject(key, bytes.NewReader(data), oss.ContentType(contentType), oss.WithContext(ctx))
	if err != nil {
		log.Printf("[阿里云OSS] 上传失败: %s, 错误: %v", key, err)
		return fmt.Errorf("上传文件到阿里云OSS失败: %w", err)
	}
	return nil
}

func (p *AliOSSProvider) Get(ctx context.Context, key string) ([]byte, error) {
	body, err := p.bucket.GetObject(key, oss.WithContext(ctx))
	if err != nil {
		if isOSSNotFound(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("从阿里云OSS获取文件失败: %w", err)
	}
	defer body.Close()
	return io.ReadAll(body)
}

// Delete OSS 删除不存在的对象返回 204，同样视为成功
func (p *AliOSSProvider) Delete(ctx context.Context, key string) error {
	if err := p.bucket.DeleteObject(key, oss.WithContext(ctx)); err != nil && !isOSSNotFound(err) {
		log.Printf("[阿里云OSS] 删除对象失败: %s, 错误: %v", key, err)
		return fmt.Errorf("删除阿里云OSS对象 %s 失败: %w", key, err)
	}
	return nil
}

func (p *AliOSSProvider) Exists(ctx context.Context, key string) (bool, error) {
	exist, err := p.bucket.IsObjectExist(key, oss.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("检查阿里云OSS文件是否存在失败: %w", err)
	}
	return exist, nil
}

func isOSSNotFound(err error) bool {
	var svcErr oss.ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.StatusCode == http.StatusNotFound || svcErr.Code == "NoSuchKey"
	}
	return false
}
