/*
 * @Description: 变体转换后端，vips 命令行或远程转换服务
 * @Author: 安知鱼
 * @Date: 2026-09-06 09:51:37
 * @LastEditTime: 2026-10-07 22:13:05
 * @LastEditors: 安知鱼
 */
package compress

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ErrTransformerUnavailable 没有可用的转换后端
var ErrTransformerUnavailable = errors.New("图片转换后端不可用")

// TransformRequest 描述一次转换，Width/Height 为 0 表示保持原尺寸
type TransformRequest struct {
	Format  string
	Quality int
	Width   int
	Height  int
}

// Transformer 把原图字节转换为目标格式
type Transformer interface {
	Name() string
	Transform(ctx context.Context, data []byte, req TransformRequest) ([]byte, error)
}

const (
	BackendVips = "vips"
	BackendHTTP = "http"
	BackendNone = "none"
)

// NewTransformer 按配置选择后端，vips 不可用时返回 noopTransformer
func NewTransformer(backend, vipsPath, endpoint string) Transformer {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case BackendHTTP:
		if endpoint == "" {
			log.Println("[Compress] 警告: 未配置 Compress.Endpoint，压缩功能将被禁用。")
			return noopTransformer{}
		}
		log.Printf("[Compress] 使用远程转换服务 '%s'。", endpoint)
		return NewHTTPTransformer(endpoint, nil)
	case BackendNone:
		return noopTransformer{}
	default:
		t, err := NewVipsTransformer(vipsPath)
		if err != nil {
			log.Printf("[Compress] 警告: %v，压缩功能将被禁用。", err)
			return noopTransformer{}
		}
		return t
	}
}

type noopTransformer struct{}

func (noopTransformer) Name() string { return BackendNone }

func (noopTransformer) Transform(context.Context, []byte, TransformRequest) ([]byte, error) {
	return nil, ErrTransformerUnavailable
}

// VipsTransformer 通过 vips thumbnail_source 从 stdin 读入、stdout 写出
type VipsTransformer struct {
	vipsPath string
}

// NewVipsTransformer 优先使用用户配置的路径，否则在 PATH 中查找 vips
func NewVipsTransformer(userConfiguredPath string) (*VipsTransformer, error) {
	foundPath := ""
	if userConfiguredPath != "" && userConfiguredPath != "vips" {
		if _, err := os.Stat(userConfiguredPath); err == nil {
			foundPath = userConfiguredPath
		} else {
			log.Printf("[VipsTransformer] 警告: 用户配置的 VIPS 路径 '%s' 无效，将尝试自动搜索。", userConfiguredPath)
		}
	}
	if foundPath == "" {
		p, err := exec.LookPath("vips")
		if err != nil {
			return nil, fmt.Errorf("未在系统中找到 'vips' 命令: %w", err)
		}
		foundPath = p
	}
	log.Printf("[VipsTransformer] 成功找到 VIPS 命令位于 '%s'。", foundPath)
	return &VipsTransformer{vipsPath: foundPath}, nil
}

func (t *VipsTransformer) Name() string { return BackendVips }

// vipsArgs 组装命令参数；size 为 down 保证只缩小不放大
func vipsArgs(req TransformRequest) []string {
	outputFormat := fmt.Sprintf(".%s[Q=%d,strip]", req.Format, req.Quality)
	width, height := req.Width, req.Height
	if width <= 0 {
		width = 10000000
	}
	args := []string{"thumbnail_source", "[descriptor=0]", outputFormat, strconv.Itoa(width)}
	if height > 0 {
		args = append(args, "--height", strconv.Itoa(height))
	}
	return append(args, "--size", "down")
}

func (t *VipsTransformer) Transform(ctx context.Context, data []byte, req TransformRequest) ([]byte, error) {
	cmd := exec.CommandContext(ctx, t.vipsPath, vipsArgs(req)...)

	var outBuf, errBuf bytes.Buffer
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("调用 vips 命令失败: %w, 错误输出: %s", err, errBuf.String())
	}
	if outBuf.Len() == 0 {
		return nil, fmt.Errorf("vips 没有输出任何数据, 错误输出: %s", errBuf.String())
	}
	return outBuf.Bytes(), nil
}

// HTTPTransformer 把原图 POST 给远程转换服务，参数放在查询串中
type HTTPTransformer struct {
	endpoint string
	client   *http.Client
}

// NewHTTPTransformer client 为 nil 时使用 60 秒超时的默认客户端
func NewHTTPTransformer(endpoint string, client *http.Client) *HTTPTransformer {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPTransformer{endpoint: endpoint, client: client}
}

func (t *HTTPTransformer) Name() string { return BackendHTTP }

func (t *HTTPTransformer) requestURL(req TransformRequest) (string, error) {
	u, err := url.Parse(t.endpoint)
	if err != nil {
		return "", fmt.Errorf("无效的转换服务地址: %w", err)
	}
	q := u.Query()
	q.Set("format", req.Format)
	q.Set("quality", strconv.Itoa(req.Quality))
	if req.Width > 0 {
		q.Set("width", strconv.Itoa(req.Width))
	}
	if req.Height > 0 {
		q.Set("height", strconv.Itoa(req.Height))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (t *HTTPTransformer) Transform(ctx context.Context, data []byte, req TransformRequest) ([]byte, error) {
	target, err := t.requestURL(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/octet-stream")
	httpReq.Header.Set("Accept", "image/"+req.Format)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, &StatusError{Code: resp.StatusCode, Body: snippet}
	}
	if len(body) == 0 {
		return nil, errors.New("转换服务返回空响应")
	}
	return body, nil
}
