/*
 * @Description:
 * @Author: 安知鱼
 * @Date: 2025-07-12 16:09:46
 * @LastEditTime: 2026-10-03 15:41:26
 * @LastEditors: 安知鱼
 */
// internal/app/task/jobs.go
package task

import (
	"context"
	"sync"
	"time"
)

// 它与 cron.Job 接口兼容。
type Job interface {
	Run()
	Name() string
}

// ContextJob 是需要上下文并返回错误的任务，通过 Adapt 转换成 Job
type ContextJob interface {
	Name() string
	Execute(ctx context.Context) error
}

// adaptedJob 为每次执行创建带超时的上下文，并记录最近一次的错误供日志装饰器读取
type adaptedJob struct {
	job     ContextJob
	timeout time.Duration

	mu      sync.Mutex
	lastErr error
}

// Adapt 把 ContextJob 包装为 Job，timeout <= 0 时不设超时
func Adapt(job ContextJob, timeout time.Duration) Job {
	return &adaptedJob{job: job, timeout: timeout}
}

func (a *adaptedJob) Name() string { return a.job.Name() }

func (a *adaptedJob) Run() {
	ctx := context.Background()
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	err := a.job.Execute(ctx)

	a.mu.Lock()
	a.lastErr = err
	a.mu.Unlock()
}

// LastError 返回最近一次执行的错误
func (a *adaptedJob) LastError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}
