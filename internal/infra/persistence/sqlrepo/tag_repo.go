package sqlrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/osirismin/CattoPic/pkg/constant"
	"github.com/osirismin/CattoPic/pkg/domain/model"
	"github.com/osirismin/CattoPic/pkg/domain/repository"
)

// DefaultTagListLimit getAllTags 的默认上限，防止结果集无界增长
const DefaultTagListLimit = 1000

type tagRepo struct {
	store
}

// NewTagRepository 创建标签仓储，db 可以是 *sql.DB 或 *sql.Tx
func NewTagRepository(db dbtx, dialect Dialect) repository.TagRepository {
	return &tagRepo{store: store{db: db, dialect: dialect}}
}

func (r *tagRepo) List(ctx context.Context, limit int) ([]*model.Tag, error) {
	if limit <= 0 || limit > DefaultTagListLimit {
		limit = DefaultTagListLimit
	}
	rows, err := r.query(ctx, r.db,
		"SELECT t.name, COUNT(DISTINCT it.image_id) FROM tags t LEFT JOIN image_tags it ON it.tag_id = t.id"+
			" GROUP BY t.id, t.name ORDER BY t.name LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("查询标签列表失败: %w", err)
	}
	defer rows.Close()

	tags := []*model.Tag{}
	for rows.Next() {
		var tag model.Tag
		if err := rows.Scan(&tag.Name, &tag.Count); err != nil {
			return nil, err
		}
		tags = append(tags, &tag)
	}
	return tags, rows.Err()
}

func (r *tagRepo) Create(ctx context.Context, name string) (*model.Tag, error) {
	name = model.SanitizeTagName(name)
	if name == "" {
		return nil, constant.ErrEmptyTagName
	}
	res, err := r.exec(ctx, r.db, r.dialect.InsertIgnore("tags (name) VALUES (?)"), name)
	if err != nil {
		return nil, fmt.Errorf("创建标签失败: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, constant.ErrTagExists
	}
	return &model.Tag{Name: name, Count: 0}, nil
}

// tagID 返回标签主键，不存在时返回 ErrNotFound
func (r *tagRepo) tagID(ctx context.Context, q dbtx, name string) (int64, error) {
	var id int64
	err := r.queryRow(ctx, q, "SELECT id FROM tags WHERE name = ?", name).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("标签 %q: %w", name, constant.ErrNotFound)
		}
		return 0, fmt.Errorf("查询标签 %q 失败: %w", name, err)
	}
	return id, nil
}

func (r *tagRepo) Rename(ctx context.Context, oldName, newName string) (int64, error) {
	oldName = model.SanitizeTagName(oldName)
	newName = model.SanitizeTagName(newName)
	if oldName == "" || newName == "" {
		return 0, constant.ErrEmptyTagName
	}

	var affected int64
	err := r.withTx(ctx, func(q dbtx) error {
		id, err := r.tagID(ctx, q, oldName)
		if err != nil {
			return err
		}
		if err := r.queryRow(ctx, q, "SELECT COUNT(*) FROM image_tags WHERE tag_id = ?", id).Scan(&affected); err != nil {
			return fmt.Errorf("统计标签关联失败: %w", err)
		}
		if oldName == newName {
			return nil
		}

		if _, err := r.tagID(ctx, q, newName); err == nil {
			return constant.ErrTagExists
		} else if !errors.Is(err, constant.ErrNotFound) {
			return err
		}

		if _, err := r.exec(ctx, q, "UPDATE tags SET name = ? WHERE id = ?", newName, id); err != nil {
			return fmt.Errorf("重命名标签失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// DeleteWithImages 是破坏性的级联删除：带有该标签的图片会被一并删除。
// 使用子查询而不是 IN 列表，图片再多也不会超出绑定参数上限。
func (r *tagRepo) DeleteWithImages(ctx context.Context, name string) (int64, error) {
	name = model.SanitizeTagName(name)
	if name == "" {
		return 0, constant.ErrEmptyTagName
	}

	var deleted int64
	err := r.withTx(ctx, func(q dbtx) error {
		id, err := r.tagID(ctx, q, name)
		if err != nil {
			return err
		}
		res, err := r.exec(ctx, q,
			"DELETE FROM images WHERE id IN (SELECT doomed.image_id FROM (SELECT image_id FROM image_tags WHERE tag_id = ?) AS doomed)", id)
		if err != nil {
			return fmt.Errorf("删除标签 %q 下的图片失败: %w", name, err)
		}
		if deleted, err = res.RowsAffected(); err != nil {
			return err
		}
		if _, err := r.exec(ctx, q, "DELETE FROM tags WHERE id = ?", id); err != nil {
			return fmt.Errorf("删除标签 %q 失败: %w", name, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// BatchUpdate 先统一确保新增标签存在，再对每批图片执行一次批量删除和每个新增标签一次批量插入
func (r *tagRepo) BatchUpdate(ctx context.Context, imageIDs, addTags, removeTags []string) error {
	ids := dedupe(imageIDs)
	add := model.NormalizeTagNames(addTags)
	remove := model.NormalizeTagNames(removeTags)
	if len(ids) == 0 || (len(add) == 0 && len(remove) == 0) {
		return nil
	}

	return r.withTx(ctx, func(q dbtx) error {
		if len(add) > 0 {
			if err := r.ensureTags(ctx, q, add); err != nil {
				return err
			}
		}
		if err := r.unlinkTags(ctx, q, ids, remove); err != nil {
			return err
		}
		for _, tag := range add {
			if err := r.linkTag(ctx, q, tag, ids); err != nil {
				return err
			}
		}
		return nil
	})
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it == "" {
			continue
		}
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}
