/*
 * @Description: 后台任务协调者：周期清理过期图片，并消费对象删除队列
 * @Author: 安知鱼
 * @Date: 2025-06-29 22:36:09
 * @LastEditTime: 2026-10-12 11:20:46
 * @LastEditors: 安知鱼
 */
// internal/app/task/broker.go
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/osirismin/CattoPic/internal/infra/queue"
	"github.com/osirismin/CattoPic/pkg/service/lifecycle"

	"github.com/robfig/cron/v3"
)

// DefaultPurgeTimeout 单次过期清理的最长执行时间
const DefaultPurgeTimeout = 2 * time.Minute

// Purger 删除已过期的图片
type Purger interface {
	PurgeExpired(ctx context.Context) (*lifecycle.DeletionReport, error)
}

// Broker 是整个后台任务模块的核心协调者。
type Broker struct {
	cron     *cron.Cron
	logger   *slog.Logger
	jobQueue chan Job
	workers  sync.WaitGroup

	purger  Purger
	queue   queue.Queue
	handler queue.Handler

	cancel   context.CancelFunc
	consumer sync.WaitGroup
	stopOnce sync.Once
}

// NewBroker 是 Broker 的构造函数。q 或 handler 为 nil 时不启动删除队列的消费者。
func NewBroker(purger Purger, q queue.Queue, handler queue.Handler) *Broker {
	slogHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(slogHandler).With("system", "task_broker")

	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(
			cron.DelayIfStillRunning(cron.DefaultLogger),
			NewPanicRecoveryWrapper(logger),
			NewLoggingWrapper(logger),
		),
	)

	broker := &Broker{
		cron:     c,
		logger:   logger,
		jobQueue: make(chan Job, 1000),
		purger:   purger,
		queue:    q,
		handler:  handler,
	}

	broker.startWorkerPool()

	return broker
}

// startWorkerPool 启动固定数量的 worker goroutine 来处理任务。
func (b *Broker) startWorkerPool() {
	workerCount := runtime.NumCPU()
	if workerCount <= 0 {
		workerCount = 4
	}
	b.logger.Info("Starting task worker pool", "concurrency", workerCount)

	for i := 0; i < workerCount; i++ {
		workerID := i + 1
		b.workers.Add(1)
		go func() {
			defer b.workers.Done()
			for job := range b.jobQueue {
				jobWithWrappers := cron.NewChain(
					NewPanicRecoveryWrapper(b.logger),
					NewLoggingWrapper(b.logger),
				).Then(job)

				b.logger.Debug("Worker picked up a job", "worker_id", workerID, "job_name", job.Name())
				jobWithWrappers.Run()
			}
		}()
	}
}

// RegisterCronJobs 注册所有周期性任务，schedule 为空时不注册过期清理。
func (b *Broker) RegisterCronJobs(purgeSchedule string) error {
	b.logger.Info("Registering all periodic jobs...")

	if purgeSchedule == "" || b.purger == nil {
		b.logger.Info("-> Skipped 'PurgeExpiredJob'", "reason", "no schedule")
		return nil
	}

	job := Adapt(NewPurgeExpiredJob(b.purger, b.logger), DefaultPurgeTimeout)
	if _, err := b.cron.AddJob(purgeSchedule, job); err != nil {
		b.logger.Error("Failed to add 'PurgeExpiredJob'", slog.Any("error", err))
		return fmt.Errorf("注册过期清理任务失败: %w", err)
	}
	b.logger.Info("-> Successfully registered 'PurgeExpiredJob'", "schedule", purgeSchedule)

	b.logger.Info("All periodic jobs registered.")
	return nil
}

// Dispatch 将任务发送到队列中。
func (b *Broker) Dispatch(job Job) {
	b.jobQueue <- job
}

// DispatchPurgeExpired 立即在后台执行一次过期清理。
func (b *Broker) DispatchPurgeExpired() {
	if b.purger == nil {
		return
	}
	b.Dispatch(Adapt(NewPurgeExpiredJob(b.purger, b.logger), DefaultPurgeTimeout))
	b.logger.Info("Successfully queued purge expired job")
}

// Start 启动 cron 调度器和删除队列的消费者。
func (b *Broker) Start() {
	b.logger.Info("Task broker started.")
	b.cron.Start()

	if b.queue == nil || b.handler == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.consumer.Add(1)
	go func() {
		defer b.consumer.Done()
		b.logger.Info("Deletion consumer started")
		err := b.queue.Consume(ctx, b.handler)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, queue.ErrClosed) {
			b.logger.Error("Deletion consumer stopped unexpectedly", slog.Any("error", err))
			return
		}
		b.logger.Info("Deletion consumer stopped")
	}()
}

// Stop 优雅地停止 cron 调度器、删除队列消费者和所有 worker。
func (b *Broker) Stop() {
	b.stopOnce.Do(func() {
		b.logger.Info("Stopping task broker...")
		ctx := b.cron.Stop()
		<-ctx.Done()

		if b.cancel != nil {
			b.cancel()
		}
		b.consumer.Wait()

		close(b.jobQueue)
		b.workers.Wait()
		b.logger.Info("Task broker gracefully stopped.")
	})
}
