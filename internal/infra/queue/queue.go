/*
 * @Description: 删除任务队列：至少一次投递，消费者需保证处理幂等
 * @Author: 安知鱼
 * @Date: 2026-09-09 10:02:17
 * @LastEditTime: 2026-10-05 21:40:33
 * @LastEditors: 安知鱼
 */
package queue

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrClosed 队列已关闭后继续发布
var ErrClosed = errors.New("queue closed")

// Handler 处理一条消息，返回错误时消息会被重新投递，直到达到最大尝试次数
type Handler func(ctx context.Context, payload []byte) error

// Queue 是发布端与消费端共用的接口
type Queue interface {
	Publish(ctx context.Context, payload []byte) error
	// Consume 阻塞消费直到 ctx 取消或队列关闭
	Consume(ctx context.Context, handler Handler) error
	Close() error
}

const (
	TypeAuto   = "auto"
	TypeRedis  = "redis"
	TypeMemory = "memory"

	// DefaultMaxAttempts 每条消息最多处理的次数
	DefaultMaxAttempts = 5
	// DefaultRetryDelay 第 n 次失败后等待 n 倍该时长再重试
	DefaultRetryDelay = 2 * time.Second
)

func newLogger(kind string) *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(handler).With("system", "deletion_queue", "backend", kind)
}

// New 根据配置选择队列实现：auto 在 Redis 可用时使用 Redis Streams，否则退回内存队列
func New(queueType string, client *redis.Client) Queue {
	switch strings.ToLower(strings.TrimSpace(queueType)) {
	case TypeMemory:
		log.Println("🔄 删除队列使用内存实现")
		return NewMemoryQueue()
	case TypeRedis:
		if client != nil {
			log.Println("✅ 删除队列使用 Redis Streams")
			return NewRedisStreamQueue(client)
		}
		log.Println("⚠️  配置了 Redis 队列但 Redis 不可用，降级到内存队列")
		return NewMemoryQueue()
	default:
		if client != nil {
			log.Println("✅ 删除队列使用 Redis Streams")
			return NewRedisStreamQueue(client)
		}
		log.Println("🔄 删除队列使用内存实现")
		return NewMemoryQueue()
	}
}

func retryDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base * time.Duration(attempt)
}
