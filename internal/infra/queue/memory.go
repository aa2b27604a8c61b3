package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type memoryMessage struct {
	payload []byte
	attempt int
}

// MemoryQueue 单进程内的队列实现，进程退出时未处理的消息会丢失
type MemoryQueue struct {
	ch          chan memoryMessage
	done        chan struct{}
	closeOnce   sync.Once
	maxAttempts int
	retryBase   time.Duration
	logger      *slog.Logger
}

// MemoryOption 配置内存队列
type MemoryOption func(*MemoryQueue)

// WithMaxAttempts 设置最大尝试次数
func WithMaxAttempts(n int) MemoryOption {
	return func(q *MemoryQueue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

// WithRetryDelay 设置重试基础延迟
func WithRetryDelay(d time.Duration) MemoryOption {
	return func(q *MemoryQueue) { q.retryBase = d }
}

// NewMemoryQueue 创建内存队列
func NewMemoryQueue(opts ...MemoryOption) *MemoryQueue {
	q := &MemoryQueue{
		ch:          make(chan memoryMessage, 1024),
		done:        make(chan struct{}),
		maxAttempts: DefaultMaxAttempts,
		retryBase:   DefaultRetryDelay,
		logger:      newLogger("memory"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *MemoryQueue) Publish(ctx context.Context, payload []byte) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	msg := memoryMessage{payload: append([]byte(nil), payload...), attempt: 1}
	select {
	case q.ch <- msg:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-q.done:
			return nil
		case msg := <-q.ch:
			q.handle(ctx, handler, msg)
		}
	}
}

func (q *MemoryQueue) handle(ctx context.Context, handler Handler, msg memoryMessage) {
	err := handler(ctx, msg.payload)
	if err == nil {
		return
	}
	if msg.attempt >= q.maxAttempts {
		q.logger.Error("message dropped after max attempts",
			slog.Int("attempt", msg.attempt), slog.Any("error", err))
		return
	}

	delay := retryDelay(q.retryBase, msg.attempt)
	q.logger.Warn("message handling failed, will retry",
		slog.Int("attempt", msg.attempt), slog.Duration("delay", delay), slog.Any("error", err))

	next := memoryMessage{payload: msg.payload, attempt: msg.attempt + 1}
	time.AfterFunc(delay, func() {
		select {
		case q.ch <- next:
		case <-q.done:
		}
	})
}

// Close 停止消费，可重复调用
func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}
