package lifecycle

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/osirismin/CattoPic/pkg/domain/model"
)

// Stage 是一次删除请求所处的阶段，前三步同步完成后才向调用方返回成功
type Stage string

const (
	StageRequested        Stage = "REQUESTED"
	StageMetadataDeleted  Stage = "METADATA_DELETED"
	StageCacheInvalidated Stage = "CACHE_INVALIDATED"
	StageObjectsQueued    Stage = "OBJECTS_QUEUED"
	StageObjectsDeleted   Stage = "OBJECTS_DELETED"
)

// JobType 删除任务来源
type JobType string

const (
	JobDeleteTagImages JobType = "delete_tag_images"
	JobDeleteImage     JobType = "delete_image"
	JobPurgeExpired    JobType = "purge_expired"
)

// MaxKeysPerJob 单个任务最多包含的对象键数量
const MaxKeysPerJob = 50

// ObjectPaths 一张图片在对象存储中的键，变体与原图相同时省略
type ObjectPaths struct {
	Original string `json:"original"`
	WebP     string `json:"webp,omitempty"`
	AVIF     string `json:"avif,omitempty"`
}

// ImageObjects 一张图片需要删除的对象
type ImageObjects struct {
	ID    string      `json:"id"`
	Paths ObjectPaths `json:"paths"`
}

func objectsOf(img *model.Image) ImageObjects {
	paths := ObjectPaths{Original: img.Paths.Original}
	if img.Paths.WebP != img.Paths.Original {
		paths.WebP = img.Paths.WebP
	}
	if img.Paths.AVIF != img.Paths.Original {
		paths.AVIF = img.Paths.AVIF
	}
	return ImageObjects{ID: img.ID, Paths: paths}
}

// Keys 返回去重后的非空键，原图在前
func (o ImageObjects) Keys() []string {
	keys := make([]string, 0, 3)
	for _, k := range []string{o.Paths.Original, o.Paths.WebP, o.Paths.AVIF} {
		if k == "" || slices.Contains(keys, k) {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

// DeletionJob 队列中的一条消息，重复投递时重复删除也不会出错
type DeletionJob struct {
	Type       JobType        `json:"type"`
	TagName    string         `json:"tagName,omitempty"`
	ImagePaths []ImageObjects `json:"imagePaths"`
}

// Keys 返回任务中全部对象键
func (j *DeletionJob) Keys() []string {
	var keys []string
	for _, img := range j.ImagePaths {
		keys = append(keys, img.Keys()...)
	}
	return keys
}

func (j *DeletionJob) Marshal() ([]byte, error) {
	return json.Marshal(j)
}

// ParseJob 解析队列消息
func ParseJob(payload []byte) (*DeletionJob, error) {
	var job DeletionJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, fmt.Errorf("解析删除任务失败: %w", err)
	}
	switch job.Type {
	case JobDeleteTagImages, JobDeleteImage, JobPurgeExpired:
	default:
		return nil, fmt.Errorf("未知的删除任务类型 %q", job.Type)
	}
	return &job, nil
}

// BuildJobs 把图片的对象键切分成多个任务，每个任务不超过 maxKeys 个键。
// 同一张图片的键不会被拆到两个任务里。
func BuildJobs(jobType JobType, tagName string, images []*model.Image, maxKeys int) []DeletionJob {
	if maxKeys <= 0 {
		maxKeys = MaxKeysPerJob
	}

	var jobs []DeletionJob
	current := DeletionJob{Type: jobType, TagName: tagName}
	count := 0
	for _, img := range images {
		objs := objectsOf(img)
		keys := objs.Keys()
		if len(keys) == 0 {
			continue
		}
		if count > 0 && count+len(keys) > maxKeys {
			jobs = append(jobs, current)
			current = DeletionJob{Type: jobType, TagName: tagName}
			count = 0
		}
		current.ImagePaths = append(current.ImagePaths, objs)
		count += len(keys)
	}
	if count > 0 {
		jobs = append(jobs, current)
	}
	return jobs
}
