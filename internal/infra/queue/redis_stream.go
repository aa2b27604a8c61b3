package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultStream = "cattopic:deletion"
	defaultGroup  = "cattopic-deleters"

	fieldPayload = "payload"
	fieldAttempt = "attempt"
)

// RedisStreamQueue 基于 Redis Streams 的消费组实现。
// 处理成功才 XACK；进程在处理中崩溃时，消息留在 PEL 中，
// 由其他消费者在空闲超过 claimIdle 后通过 XAUTOCLAIM 接管。
type RedisStreamQueue struct {
	client       *redis.Client
	stream       string
	group        string
	consumerName string
	maxAttempts  int
	claimIdle    time.Duration
	block        time.Duration
	closed       atomic.Bool
	logger       *slog.Logger
}

// NewRedisStreamQueue 每个进程使用唯一的消费者名
func NewRedisStreamQueue(client *redis.Client) *RedisStreamQueue {
	name := "deleter_" + uuid.NewString()
	return &RedisStreamQueue{
		client:       client,
		stream:       defaultStream,
		group:        defaultGroup,
		consumerName: name,
		maxAttempts:  DefaultMaxAttempts,
		claimIdle:    time.Minute,
		block:        5 * time.Second,
		logger:       newLogger("redis_stream").With("consumer_name", name),
	}
}

func (q *RedisStreamQueue) Publish(ctx context.Context, payload []byte) error {
	if q.closed.Load() {
		return ErrClosed
	}
	return q.add(ctx, payload, 1)
}

func (q *RedisStreamQueue) add(ctx context.Context, payload []byte, attempt int) error {
	err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]interface{}{
			fieldPayload: string(payload),
			fieldAttempt: attempt,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("写入删除队列失败: %w", err)
	}
	return nil
}

func (q *RedisStreamQueue) ensureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("创建消费组失败: %w", err)
	}
	return nil
}

func (q *RedisStreamQueue) Consume(ctx context.Context, handler Handler) error {
	if err := q.ensureGroup(ctx); err != nil {
		return err
	}
	q.logger.Info("starting deletion consumer", "stream", q.stream, "consumer_group", q.group)

	lastClaim := time.Time{}
	for {
		if ctx.Err() != nil || q.closed.Load() {
			q.logger.Info("deletion consumer stopping")
			return nil
		}

		if time.Since(lastClaim) >= q.claimIdle {
			lastClaim = time.Now()
			if err := q.claimStale(ctx, handler); err != nil && ctx.Err() == nil {
				q.logger.Error("failed to claim pending messages", "error", err)
			}
		}

		if err := q.readNew(ctx, handler); err != nil {
			if ctx.Err() != nil {
				continue
			}
			q.logger.Error("failed to read messages", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

func (q *RedisStreamQueue) readNew(ctx context.Context, handler Handler) error {
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumerName,
		Streams:  []string{q.stream, ">"},
		Count:    10,
		Block:    q.block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("XREADGROUP error: %w", err)
	}

	for _, stream := range streams {
		for _, message := range stream.Messages {
			q.handle(ctx, handler, message)
		}
	}
	return nil
}

// claimStale 接管其他消费者崩溃后遗留的消息
func (q *RedisStreamQueue) claimStale(ctx context.Context, handler Handler) error {
	start := "0-0"
	for {
		messages, next, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   q.stream,
			Group:    q.group,
			Consumer: q.consumerName,
			MinIdle:  q.claimIdle,
			Start:    start,
			Count:    10,
		}).Result()
		if err != nil {
			return fmt.Errorf("XAUTOCLAIM error: %w", err)
		}
		for _, message := range messages {
			q.logger.Warn("claimed stale message", "message_id", message.ID)
			q.handle(ctx, handler, message)
		}
		if next == "0-0" || len(messages) == 0 {
			return nil
		}
		start = next
	}
}

// handle 成功则确认；失败时以 attempt+1 重新入队再确认原消息，超过上限则丢弃
func (q *RedisStreamQueue) handle(ctx context.Context, handler Handler, message redis.XMessage) {
	payload, _ := message.Values[fieldPayload].(string)
	attempt := 1
	if raw, ok := message.Values[fieldAttempt].(string); ok {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			attempt = n
		}
	}

	if err := handler(ctx, []byte(payload)); err != nil {
		if ctx.Err() != nil {
			// 关闭过程中不确认，留给下次启动时接管
			return
		}
		if attempt >= q.maxAttempts {
			q.logger.Error("message dropped after max attempts",
				"message_id", message.ID, "attempt", attempt, "error", err)
		} else {
			q.logger.Warn("message handling failed, requeued",
				"message_id", message.ID, "attempt", attempt, "error", err)
			if addErr := q.add(ctx, []byte(payload), attempt+1); addErr != nil {
				q.logger.Error("failed to requeue message", "message_id", message.ID, "error", addErr)
				return
			}
		}
	}

	if err := q.client.XAck(ctx, q.stream, q.group, message.ID).Err(); err != nil {
		q.logger.Error("failed to ACK message", "message_id", message.ID, "error", err)
		return
	}
	q.client.XDel(ctx, q.stream, message.ID)
}

// Close 只停止本地消费，客户端生命周期由调用方管理
func (q *RedisStreamQueue) Close() error {
	q.closed.Store(true)
	return nil
}
