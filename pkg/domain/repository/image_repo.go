package repository

import (
	"context"
	"time"

	"github.com/osirismin/CattoPic/pkg/domain/model"
)

// ImageRepository 负责图片元数据及其标签关联的持久化。
// 所有写操作本身都是原子的；在 TransactionManager.Do 中获得的实例共享同一个事务。
type ImageRepository interface {
	// Save 写入图片行，并确保每个标签存在且建立关联，整体一次提交
	Save(ctx context.Context, img *model.Image) error
	// Update 按差异替换标签集合和/或修改过期时间，返回修改后的完整记录
	Update(ctx context.Context, id string, params *model.UpdateImageParams) (*model.Image, error)
	// Delete 删除图片行，关联由外键级联删除；返回该行是否存在
	Delete(ctx context.Context, id string) (bool, error)
	FindByID(ctx context.Context, id string) (*model.Image, error)
	// List 按上传时间倒序分页，不包含已过期图片
	List(ctx context.Context, q *model.ImageQuery) (*model.ImagePage, error)
	// FindRandom 在所有匹配条件的图片中均匀随机取一张，没有匹配时返回 constant.ErrNotFound
	FindRandom(ctx context.Context, q *model.RandomQuery) (*model.Image, error)
	// FindExpired 返回过期时间已设置且不晚于 now 的图片
	FindExpired(ctx context.Context, now time.Time) ([]*model.Image, error)
	// FindByTag 返回带有该标签的全部图片（包含已过期的）
	FindByTag(ctx context.Context, tagName string) ([]*model.Image, error)
	// DeleteByIDs 批量删除，返回实际删除的行数
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}
