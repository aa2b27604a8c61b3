/*
 * @Description: AWS S3存储提供者实现（使用aws-sdk-go-v2），同样适用于 R2、MinIO 等兼容服务
 * @Author: 安知鱼
 * @Date: 2026-09-05 19:00:00
 * @LastEditTime: 2026-10-07 18:30:00
 * @LastEditors: 安知鱼
 */
package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// AWSS3Provider 实现了 Provider 接口，用于处理与AWS S3的所有交互。
type AWSS3Provider struct {
	client *s3.Client
	bucket string
}

// NewAWSS3Provider 创建客户端。Endpoint 为完整 URL 时视为自定义端点并使用 path-style。
func NewAWSS3Provider(ctx context.Context, opts Options) (Provider, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("AWS S3配置缺少存储桶名称")
	}
	if opts.AccessKey == "" || opts.SecretKey == "" {
		return nil, fmt.Errorf("AWS S3配置缺少AccessKey或SecretKey")
	}

	region := opts.Region
	if region == "" {
		region = "us-east-1" // 默认区域
	}
	var customEndpoint string
	if strings.HasPrefix(opts.Endpoint, "http") {
		parsedURL, err := url.Parse(opts.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("解析S3 Endpoint失败: %w", err)
		}
		customEndpoint = opts.Endpoint
		// 尝试从 s3.<region>.amazonaws.com 中提取区域
		if opts.Region == "" && strings.Contains(parsedURL.Host, "amazonaws.com") {
			parts := strings.Split(parsedURL.Host, ".")
			if len(parts) >= 4 && strings.HasPrefix(parts[0], "s3") {
				region = parts[1]
			}
		}
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")),
	)
	if err != nil {
		log.Printf("[AWS S3] 创建配置失败: %v", err)
		return nil, fmt.Errorf("创建AWS S3配置失败: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if customEndpoint != "" {
			o.BaseEndpoint = aws.String(customEndpoint)
			o.UsePathStyle = true // 对于自定义endpoint通常需要path-style
		}
	})

	log.Printf("[AWS S3] 成功创建客户端 - 区域: %s, 存储桶: %s", region, opts.Bucket)
	return &AWSS3Provider{client: client, bucket: opts.Bucket}, nil
}

func (p *AWSS3Provider) Name() string { return "aws_s3" }

// Put 显式设置 ContentLength 和 ChecksumSHA256，避免第三方 S3 服务的 XAmzContentSHA256Mismatch
func (p *AWSS3Provider) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = ContentTypeOf(key)
	}
	hash := sha256.Sum256(data)

	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:         aws.String(p.bucket),
		Key:            aws.String(key),
		Body:           bytes.NewReader(data),
		ContentLength:  aws.Int64(int64(len(data))),
		ContentType:    aws.String(contentType),
		ChecksumSHA256: aws.String(base64.StdEncoding.EncodeToString(hash[:])),
	})
	if err != nil {
		log.Printf("[AWS S3] 上传失败: %s, 错误: %v", key, err)
		return fmt.Errorf("上传文件到AWS S3失败: %w", err)
	}
	return nil
}

func (p *AWSS3Provider) Get(ctx context.Context, key string) ([]byte, error) {
	output, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("从AWS S3获取文件失败: %w", err)
	}
	defer output.Body.Close()
	return io.ReadAll(output.Body)
}

// Delete S3 删除不存在的对象本身就返回成功
func (p *AWSS3Provider) Delete(ctx context.Context, key string) error {
	_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isS3NotFound(err) {
		log.Printf("[AWS S3] 删除对象失败: %s, 错误: %v", key, err)
		return fmt.Errorf("删除AWS S3对象 %s 失败: %w", key, err)
	}
	return nil
}

func (p *AWSS3Provider) Exists(ctx context.Context, key string) (bool, error) {
	_, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("检查AWS S3文件是否存在失败: %w", err)
	}
	return true, nil
}

func isS3NotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}
