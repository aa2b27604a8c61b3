package lifecycle

import (
	"context"
	"log/slog"
	"os"

	"github.com/osirismin/CattoPic/internal/infra/storage"
)

// Worker 消费删除任务，对象不存在视为成功，因此重复投递是安全的
type Worker struct {
	provider storage.Provider
	logger   *slog.Logger
}

func NewWorker(provider storage.Provider) *Worker {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	return &Worker{
		provider: provider,
		logger:   slog.New(handler).With("system", "deletion_worker"),
	}
}

// Handle 实现 queue.Handler。无法解析的消息直接丢弃，返回错误会触发重投。
func (w *Worker) Handle(ctx context.Context, payload []byte) error {
	job, err := ParseJob(payload)
	if err != nil {
		w.logger.Error("discarding malformed deletion job", "error", err)
		return nil
	}

	keys := job.Keys()
	if err := storage.DeleteAll(ctx, w.provider, keys); err != nil {
		w.logger.Warn("deletion job incomplete", "type", job.Type, "tag", job.TagName,
			"keys", len(keys), "error", err)
		return err
	}

	w.logger.Info("deletion job done", "type", job.Type, "tag", job.TagName,
		"images", len(job.ImagePaths), "keys", len(keys), "stage", StageObjectsDeleted)
	return nil
}
