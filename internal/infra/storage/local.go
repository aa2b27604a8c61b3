package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/osirismin/CattoPic/pkg/constant"
)

// LocalProvider 实现了 Provider 接口，用于处理与本机磁盘文件系统的所有交互。
type LocalProvider struct {
	root string
}

// NewLocalProvider root 不存在时自动创建
func NewLocalProvider(root string) (Provider, error) {
	if root == "" {
		root = constant.DefaultLocalStoragePath
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("解析本地存储路径失败: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("创建本地存储目录 '%s' 失败: %w", abs, err)
	}
	return &LocalProvider{root: abs}, nil
}

func (p *LocalProvider) Name() string { return "local" }

// Root 返回本地存储根目录，路由层据此提供静态文件访问
func (p *LocalProvider) Root() string { return p.root }

// physicalPath 把对象键映射到根目录下，拒绝逃逸出根目录的键
func (p *LocalProvider) physicalPath(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash("/" + key))
	full := filepath.Join(p.root, clean)
	if full == p.root || !strings.HasPrefix(full, p.root+string(filepath.Separator)) {
		return "", fmt.Errorf("非法的对象键: %q", key)
	}
	return full, nil
}

// Put 先写临时文件再重命名，读者不会看到写了一半的文件
func (p *LocalProvider) Put(ctx context.Context, key string, data []byte, contentType string) error {
	full, err := p.physicalPath(key)
	if err != nil {
		return err
	}
	tmp, err := createTemp(filepath.Dir(full))
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("写入文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("关闭文件失败: %w", err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("移动文件失败: %w", err)
	}
	return nil
}

// createTempAttempts Delete 会并发清理空目录，目录可能在 MkdirAll 之后消失
const createTempAttempts = 5

// createTemp 在 dir 中创建临时文件，目录被并发删除时重建后重试
func createTemp(dir string) (*os.File, error) {
	var lastErr error
	for attempt := 0; attempt < createTempAttempts; attempt++ {
		if err := os.MkdirAll(dir, 0755); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("创建目录失败: %w", err)
			}
			lastErr = err
			continue
		}
		tmp, err := os.CreateTemp(dir, ".upload-*")
		if err == nil {
			return tmp, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("创建临时文件失败: %w", err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("创建临时文件失败: %w", lastErr)
}

func (p *LocalProvider) Get(ctx context.Context, key string) ([]byte, error) {
	full, err := p.physicalPath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("无法读取物理文件 '%s': %w", full, err)
	}
	return data, nil
}

// Delete 删除文件后尝试清理空的父目录
func (p *LocalProvider) Delete(ctx context.Context, key string) error {
	full, err := p.physicalPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("删除物理文件 '%s' 失败: %w", full, err)
	}

	for dir := filepath.Dir(full); dir != p.root && strings.HasPrefix(dir, p.root); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			// 目录非空或已被其他请求删除
			break
		}
		log.Printf("[LocalProvider] 已清理空目录: %s", dir)
	}
	return nil
}

func (p *LocalProvider) Exists(ctx context.Context, key string) (bool, error) {
	full, err := p.physicalPath(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}
