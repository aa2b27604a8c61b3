/*
 * @Description: 删除流水线：元数据 -> 缓存 -> 异步对象删除
 * @Author: 安知鱼
 * @Date: 2026-09-09 09:12:40
 * @LastEditTime: 2026-10-09 23:05:18
 * @LastEditors: 安知鱼
 */
package lifecycle

import (
	"context"
	"log"
	"time"

	"github.com/osirismin/CattoPic/internal/infra/queue"
	"github.com/osirismin/CattoPic/pkg/constant"
	"github.com/osirismin/CattoPic/pkg/domain/model"
	"github.com/osirismin/CattoPic/pkg/domain/repository"
	"github.com/osirismin/CattoPic/pkg/service/imagecache"
)

// DeletionReport 描述一次删除请求同步部分的结果
type DeletionReport struct {
	Stage         Stage  `json:"stage"`
	DeletedImages int64  `json:"deletedImages"`
	QueuedJobs    int    `json:"queuedJobs"`
	FailedJobs    int    `json:"failedJobs"`
	TagName       string `json:"tagName,omitempty"`
}

type Pipeline struct {
	tm    repository.TransactionManager
	cache *imagecache.Cache
	queue queue.Queue
	now   func() time.Time
}

func NewPipeline(tm repository.TransactionManager, cache *imagecache.Cache, q queue.Queue) *Pipeline {
	return &Pipeline{tm: tm, cache: cache, queue: q, now: time.Now}
}

// DeleteTagWithImages 删除标签以及所有带该标签的图片。这不是解除关联，图片本身会被删除。
func (p *Pipeline) DeleteTagWithImages(ctx context.Context, name string) (*DeletionReport, error) {
	name = model.SanitizeTagName(name)
	if name == "" {
		return nil, constant.ErrEmptyTagName
	}
	report := &DeletionReport{Stage: StageRequested, TagName: name}

	var doomed []*model.Image
	err := p.tm.Do(ctx, func(repos repository.Repositories) error {
		images, err := repos.Image.FindByTag(ctx, name)
		if err != nil {
			return err
		}
		deleted, err := repos.Tag.DeleteWithImages(ctx, name)
		if err != nil {
			return err
		}
		doomed = images
		report.DeletedImages = deleted
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.finish(ctx, report, JobDeleteTagImages, name, doomed)
	log.Printf("[Lifecycle] 已删除标签 %q 及 %d 张图片，提交 %d 个对象删除任务", name, report.DeletedImages, report.QueuedJobs)
	return report, nil
}

// DeleteImage 删除单张图片
func (p *Pipeline) DeleteImage(ctx context.Context, id string) (*DeletionReport, error) {
	report := &DeletionReport{Stage: StageRequested}

	var img *model.Image
	err := p.tm.Do(ctx, func(repos repository.Repositories) error {
		found, err := repos.Image.FindByID(ctx, id)
		if err != nil {
			return err
		}
		existed, err := repos.Image.Delete(ctx, id)
		if err != nil {
			return err
		}
		if !existed {
			return constant.ErrNotFound
		}
		img = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	report.DeletedImages = 1
	p.finish(ctx, report, JobDeleteImage, "", []*model.Image{img})
	return report, nil
}

// PurgeExpired 清理所有已过期的图片，由定时任务调用
func (p *Pipeline) PurgeExpired(ctx context.Context) (*DeletionReport, error) {
	report := &DeletionReport{Stage: StageRequested}

	var expired []*model.Image
	err := p.tm.Do(ctx, func(repos repository.Repositories) error {
		images, err := repos.Image.FindExpired(ctx, p.now())
		if err != nil {
			return err
		}
		if len(images) == 0 {
			return nil
		}
		ids := make([]string, 0, len(images))
		for _, img := range images {
			ids = append(ids, img.ID)
		}
		deleted, err := repos.Image.DeleteByIDs(ctx, ids)
		if err != nil {
			return err
		}
		expired = images
		report.DeletedImages = deleted
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(expired) == 0 {
		report.Stage = StageObjectsQueued
		return report, nil
	}

	p.finish(ctx, report, JobPurgeExpired, "", expired)
	log.Printf("[Lifecycle] 清理了 %d 张过期图片，提交 %d 个对象删除任务", report.DeletedImages, report.QueuedJobs)
	return report, nil
}

// finish 执行元数据提交之后的步骤：同步失效缓存，然后把对象删除分批入队。
// 入队失败只记录日志，对应对象成为孤儿，由外部巡检回收。
func (p *Pipeline) finish(ctx context.Context, report *DeletionReport, jobType JobType, tagName string, images []*model.Image) {
	report.Stage = StageMetadataDeleted

	if err := p.cache.InvalidateAfterTagChange(ctx); err != nil {
		log.Printf("[Lifecycle] ⚠️ 缓存失效失败: %v", err)
	}
	report.Stage = StageCacheInvalidated

	jobs := BuildJobs(jobType, tagName, images, MaxKeysPerJob)
	for i := range jobs {
		if err := p.publish(ctx, &jobs[i]); err != nil {
			report.FailedJobs++
			log.Printf("[Lifecycle] ⚠️ 提交删除任务失败，%d 个对象将成为孤儿: %v", len(jobs[i].Keys()), err)
			continue
		}
		report.QueuedJobs++
	}
	if report.FailedJobs == 0 {
		report.Stage = StageObjectsQueued
	}
}

func (p *Pipeline) publish(ctx context.Context, job *DeletionJob) error {
	if p.queue == nil {
		return queue.ErrClosed
	}
	payload, err := job.Marshal()
	if err != nil {
		return err
	}
	return p.queue.Publish(ctx, payload)
}
