/*
 * @Description: 七牛云Kodo存储提供者实现
 * @Author: 安知鱼
 * @Date: 2026-09-05 21:02:50
 * @LastEditTime: 2026-10-07 18:40:16
 * @LastEditors: 安知鱼
 */
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/qiniu/go-sdk/v7/auth"
	"github.com/qiniu/go-sdk/v7/storage"
)

// 七牛云的文件不存在错误码
const qiniuNoSuchEntry = 612

// QiniuKodoProvider 实现了 Provider 接口，用于处理与七牛云Kodo的所有交互。
type QiniuKodoProvider struct {
	mac           *auth.Credentials
	bucket        string
	bucketManager *storage.BucketManager
	uploadConfig  *storage.Config
	// downloadDomain 用于 Get，七牛需要通过绑定域名读取对象
	downloadDomain string
	httpClient     *http.Client
}

// NewQiniuKodoProvider Endpoint 为上传域名（决定区域），Region 可填写绑定的下载域名
func NewQiniuKodoProvider(opts Options) (Provider, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("七牛云配置缺少存储空间名称")
	}
	if opts.AccessKey == "" || opts.SecretKey == "" {
		return nil, fmt.Errorf("七牛云配置缺少AccessKey或SecretKey")
	}

	mac := auth.New(opts.AccessKey, opts.SecretKey)
	cfg := &storage.Config{
		UseHTTPS:      true,
		UseCdnDomains: false,
		Region:        qiniuRegion(opts.Endpoint),
	}

	return &QiniuKodoProvider{
		mac:            mac,
		bucket:         opts.Bucket,
		bucketManager:  storage.NewBucketManager(mac, cfg),
		uploadConfig:   cfg,
		downloadDomain: strings.TrimSuffix(opts.Region, "/"),
		httpClient:     &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// qiniuRegion 从上传域名解析区域
// z0=华东, z1=华北, z2=华南, na0=北美, as0=东南亚
func qiniuRegion(server string) *storage.Region {
	server = strings.ToLower(server)
	switch {
	case strings.Contains(server, "up-z1"):
		return &storage.ZoneHuabei
	case strings.Contains(server, "up-z2"):
		return &storage.ZoneHuanan
	case strings.Contains(server, "up-na0"):
		return &storage.ZoneBeimei
	case strings.Contains(server, "up-as0"):
		return &storage.ZoneXinjiapo
	default:
		// 默认华东区域
		return &storage.ZoneHuadong
	}
}

func (p *QiniuKodoProvider) Name() string { return "qiniu_kodo" }

func (p *QiniuKodoProvider) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = ContentTypeOf(key)
	}
	putPolicy := storage.PutPolicy{
		// 指定 key 的 scope 允许覆盖同名对象
		Scope: fmt.Sprintf("%s:%s", p.bucket, key),
	}
	upToken := putPolicy.UploadToken(p.mac)

	formUploader := storage.NewFormUploader(p.uploadConfig)
	ret := storage.PutRet{}
	putExtra := storage.PutExtra{MimeType: contentType}
	if err := formUploader.Put(ctx, &ret, upToken, key, bytes.NewReader(data), int64(len(data)), &putExtra); err != nil {
		log.Printf("[七牛云] 上传失败: %s, 错误: %v", key, err)
		return fmt.Errorf("上传文件到七牛云失败: %w", err)
	}
	return nil
}

func (p *QiniuKodoProvider) Get(ctx context.Context, key string) ([]byte, error) {
	if p.downloadDomain == "" {
		return nil, fmt.Errorf("七牛云未配置下载域名，无法读取对象")
	}
	deadline := time.Now().Add(time.Hour).Unix()
	privateURL := storage.MakePrivateURL(p.mac, p.downloadDomain, key, deadline)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, privateURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("从七牛云获取文件失败: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return io.ReadAll(resp.Body)
	case http.StatusNotFound:
		return nil, ErrObjectNotFound
	default:
		return nil, fmt.Errorf("从七牛云获取文件失败: HTTP %d", resp.StatusCode)
	}
}

func (p *QiniuKodoProvider) Delete(ctx context.Context, key string) error {
	if err := p.bucketManager.Delete(p.bucket, key); err != nil && !isQiniuNotFound(err) {
		log.Printf("[七牛云] 删除对象失败: %s, 错误: %v", key, err)
		return fmt.Errorf("删除七牛云对象 %s 失败: %w", key, err)
	}
	return nil
}

func (p *QiniuKodoProvider) Exists(ctx context.Context, key string) (bool, error) {
	if _, err := p.bucketManager.Stat(p.bucket, key); err != nil {
		if isQiniuNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func isQiniuNotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "no such file or directory") ||
		strings.Contains(msg, fmt.Sprint(qiniuNoSuchEntry))
}
