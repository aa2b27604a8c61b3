package repository

import (
	"context"

	"github.com/osirismin/CattoPic/pkg/domain/model"
)

// TagRepository 负责标签的读写。标签名区分大小写，传入前应已清洗。
type TagRepository interface {
	// List 按名称字母序返回标签及实时关联数量，最多 limit 条
	List(ctx context.Context, limit int) ([]*model.Tag, error)
	// Create 显式创建标签，已存在时返回 constant.ErrTagExists
	Create(ctx context.Context, name string) (*model.Tag, error)
	// Rename 原地改名并保留全部关联，返回受影响的图片数量
	Rename(ctx context.Context, oldName, newName string) (int64, error)
	// DeleteWithImages 删除标签以及所有带有该标签的图片（不是单纯解除关联），返回删除的图片数量
	DeleteWithImages(ctx context.Context, name string) (int64, error)
	// BatchUpdate 对一批图片批量添加和移除标签
	BatchUpdate(ctx context.Context, imageIDs, addTags, removeTags []string) error
}
