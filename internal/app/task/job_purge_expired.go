// internal/app/task/job_purge_expired.go
package task

import (
	"context"
	"log/slog"
)

// PurgeExpiredJob 删除所有已过期的图片，对象删除交给删除队列
type PurgeExpiredJob struct {
	purger Purger
	logger *slog.Logger
}

func NewPurgeExpiredJob(purger Purger, logger *slog.Logger) *PurgeExpiredJob {
	return &PurgeExpiredJob{purger: purger, logger: logger}
}

func (j *PurgeExpiredJob) Name() string { return "PurgeExpiredJob" }

func (j *PurgeExpiredJob) Execute(ctx context.Context) error {
	report, err := j.purger.PurgeExpired(ctx)
	if err != nil {
		return err
	}
	if report.DeletedImages > 0 {
		j.logger.Info("Purged expired images",
			slog.Int64("deleted_images", report.DeletedImages),
			slog.Int("queued_jobs", report.QueuedJobs),
			slog.Int("failed_jobs", report.FailedJobs),
			slog.String("stage", string(report.Stage)),
		)
	}
	return nil
}
