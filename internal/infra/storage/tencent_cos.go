/*
 * @Description: 腾讯云COS存储提供者实现
 * @Author: 安知鱼
 * @Date: 2026-09-05 20:31:18
 * @LastEditTime: 2026-10-07 18:35:02
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
	"net/url"
	"time"

	"github.com/tencentyun/cos-go-sdk-v5"
)

// TencentCOSProvider 实现了 Provider 接口，用于处理与腾讯云COS的所有交互。
type TencentCOSProvider struct {
	client *cos.Client
}

// NewTencentCOSProvider Endpoint 为存储桶访问域名，如 https://bucket-1250000000.cos.ap-shanghai.myqcloud.com
func NewTencentCOSProvider(opts Options) (Provider, error) {
	if opts.AccessKey == "" || opts.SecretKey == "" {
		return nil, fmt.Errorf("腾讯云COS配置缺少SecretID或SecretKey")
	}
	if opts.Endpoint == "" {
		log.Printf("[腾讯云COS] 错误: 访问域名为空")
		return nil, fmt.Errorf("腾讯云COS配置缺少访问域名")
	}

	u, err := url.Parse(opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("解析存储桶URL失败: %w", err)
	}

	client := cos.NewClient(&cos.BaseURL{BucketURL: u}, &http.Client{
		Timeout: 100 * time.Second,
		Transport: &cos.AuthorizationTransport{
			SecretID:  opts.AccessKey,
			SecretKey: opts.SecretKey,
		},
	})
	return &TencentCOSProvider{client: client}, nil
}

func (p *TencentCOSProvider) Name() string { return "tencent_cos" }

func (p *TencentCOSProvider) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = ContentTypeOf(key)
	}
	_, err := p.client.Object.Put(ctx, key, bytes.NewReader(data), &cos.ObjectPutOptions{
		ObjectPutHeaderOptions: &cos.ObjectPutHeaderOptions{
			ContentType:   contentType,
			ContentLength: int64(len(data)),
		},
	})
	if err != nil {
		log.Printf("[腾讯云COS] 上传失败: %s, 错误: %v", key, err)
		return fmt.Errorf("上传文件到腾讯云COS失败: %w", err)
	}
	return nil
}

func (p *TencentCOSProvider) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := p.client.Object.Get(ctx, key, nil)
	if err != nil {
		if isCOSNotFound(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("从腾讯云COS获取文件失败: %w", err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (p *TencentCOSProvider) Delete(ctx context.Context, key string) error {
	if _, err := p.client.Object.Delete(ctx, key); err != nil && !isCOSNotFound(err) {
		log.Printf("[腾讯云COS] 删除对象失败: %s, 错误: %v", key, err)
		return fmt.Errorf("删除腾讯云COS对象 %s 失败: %w", key, err)
	}
	return nil
}

func (p *TencentCOSProvider) Exists(ctx context.Context, key string) (bool, error) {
	if _, err := p.client.Object.Head(ctx, key, nil); err != nil {
		if isCOSNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("检查腾讯云COS文件是否存在失败: %w", err)
	}
	return true, nil
}

func isCOSNotFound(err error) bool {
	var cosErr *cos.ErrorResponse
	if errors.As(err, &cosErr) {
		if cosErr.Code == "NoSuchKey" {
			return true
		}
		return cosErr.Response != nil && cosErr.Response.StatusCode == http.StatusNotFound
	}
	return false
}
