/*
 * @Description: 基于 database/sql 的图片元数据仓储
 * @Author: 安知鱼
 * @Date: 2026-09-04 15:31:07
 * @LastEditTime: 2026-10-12 22:16:48
 * @LastEditors: 安知鱼
 */
package sqlrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/osirismin/CattoPic/pkg/constant"
	"github.com/osirismin/CattoPic/pkg/domain/model"
	"github.com/osirismin/CattoPic/pkg/domain/repository"
)

const imageColumns = "i.id, i.filename, i.upload_time, i.expiry_time, i.orientation, i.format, i.width, i.height," +
	" i.path_original, i.path_webp, i.path_avif, i.size_original, i.size_webp, i.size_avif, i.primary_color"

type imageRepo struct {
	store
	// randomOffsetThreshold 大于 0 时，候选数超过该值改用 COUNT + 随机 OFFSET
	randomOffsetThreshold int64
}

// ImageRepoOption 配置图片仓储的可选行为
type ImageRepoOption func(*imageRepo)

// WithRandomOffsetThreshold 设置随机取图切换策略的阈值，0 表示始终使用 ORDER BY RANDOM()
func WithRandomOffsetThreshold(n int64) ImageRepoOption {
	return func(r *imageRepo) { r.randomOffsetThreshold = n }
}

// NewImageRepository 创建图片仓储，db 可以是 *sql.DB 或 *sql.Tx
func NewImageRepository(db dbtx, dialect Dialect, opts ...ImageRepoOption) repository.ImageRepository {
	r := &imageRepo{store: store{db: db, dialect: dialect}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanImage 把一行结果转换为强类型记录
func scanImage(row rowScanner) (*model.Image, error) {
	var (
		img         model.Image
		uploadMs    int64
		expiryMs    sql.NullInt64
		orientation string
	)
	err := row.Scan(
		&img.ID, &img.Filename, &uploadMs, &expiryMs, &orientation, &img.Format, &img.Width, &img.Height,
		&img.Paths.Original, &img.Paths.WebP, &img.Paths.AVIF,
		&img.Sizes.Original, &img.Sizes.WebP, &img.Sizes.AVIF, &img.PrimaryColor,
	)
	if err != nil {
		return nil, err
	}
	img.UploadTime = fromMillis(uploadMs)
	if expiryMs.Valid {
		t := fromMillis(expiryMs.Int64)
		img.ExpiryTime = &t
	}
	img.Orientation = model.Orientation(orientation)
	img.Tags = []string{}
	return &img, nil
}

func expiryArg(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return toMillis(*t)
}

func (r *imageRepo) Save(ctx context.Context, img *model.Image) error {
	if img == nil || img.ID == "" {
		return fmt.Errorf("%w: 图片 ID 不能为空", constant.ErrBadRequest)
	}
	tags := model.NormalizeTagNames(img.Tags)

	err := r.withTx(ctx, func(q dbtx) error {
		_, err := r.exec(ctx, q,
			`INSERT INTO images (id, filename, upload_time, expiry_time, orientation, format, width, height,
				path_original, path_webp, path_avif, size_original, size_webp, size_avif, primary_color)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			img.ID, img.Filename, toMillis(img.UploadTime), expiryArg(img.ExpiryTime), string(img.Orientation),
			img.Format, img.Width, img.Height, img.Paths.Original, img.Paths.WebP, img.Paths.AVIF,
			img.Sizes.Original, img.Sizes.WebP, img.Sizes.AVIF, img.PrimaryColor,
		)
		if err != nil {
			return fmt.Errorf("写入图片 %s 失败: %w", img.ID, err)
		}
		if len(tags) == 0 {
			return nil
		}
		if err := r.ensureTags(ctx, q, tags); err != nil {
			return err
		}
		return r.linkTagsToImage(ctx, q, img.ID, tags)
	})
	if err != nil {
		return err
	}
	img.Tags = tags
	return nil
}

func (r *imageRepo) Update(ctx context.Context, id string, params *model.UpdateImageParams) (*model.Image, error) {
	if params == nil {
		params = &model.UpdateImageParams{}
	}

	var updated *model.Image
	err := r.withTx(ctx, func(q dbtx) error {
		current, err := r.findByID(ctx, q, id)
		if err != nil {
			return err
		}

		if params.Tags != nil {
			desired := model.NormalizeTagNames(*params.Tags)
			added, removed := diffTags(current.Tags, desired)
			if err := r.unlinkTags(ctx, q, []string{id}, removed); err != nil {
				return err
			}
			if len(added) > 0 {
				if err := r.ensureTags(ctx, q, added); err != nil {
					return err
				}
				if err := r.linkTagsToImage(ctx, q, id, added); err != nil {
					return err
				}
			}
			current.Tags = desired
		}

		switch {
		case params.ClearExpiry:
			if _, err := r.exec(ctx, q, "UPDATE images SET expiry_time = NULL WHERE id = ?", id); err != nil {
				return fmt.Errorf("清除过期时间失败: %w", err)
			}
			current.ExpiryTime = nil
		case params.ExpiryTime != nil:
			if _, err := r.exec(ctx, q, "UPDATE images SET expiry_time = ? WHERE id = ?", toMillis(*params.ExpiryTime), id); err != nil {
				return fmt.Errorf("更新过期时间失败: %w", err)
			}
			t := fromMillis(toMillis(*params.ExpiryTime))
			current.ExpiryTime = &t
		}

		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// diffTags 计算需要新增与移除的标签
func diffTags(current, desired []string) (added, removed []string) {
	cur := make(map[string]struct{}, len(current))
	for _, t := range current {
		cur[t] = struct{}{}
	}
	want := make(map[string]struct{}, len(desired))
	for _, t := range desired {
		want[t] = struct{}{}
		if _, ok := cur[t]; !ok {
			added = append(added, t)
		}
	}
	for _, t := range current {
		if _, ok := want[t]; !ok {
			removed = append(removed, t)
		}
	}
	return added, removed
}

func (r *imageRepo) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.exec(ctx, r.db, "DELETE FROM images WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("删除图片 %s 失败: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *imageRepo) FindByID(ctx context.Context, id string) (*model.Image, error) {
	return r.findByID(ctx, r.db, id)
}

func (r *imageRepo) findByID(ctx context.Context, q dbtx, id string) (*model.Image, error) {
	img, err := scanImage(r.queryRow(ctx, q, "SELECT "+imageColumns+" FROM images i WHERE i.id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("图片 %s: %w", id, constant.ErrNotFound)
		}
		return nil, fmt.Errorf("查询图片 %s 失败: %w", id, err)
	}
	if err := r.attachTags(ctx, q, []*model.Image{img}); err != nil {
		return nil, err
	}
	return img, nil
}

// attachTags 批量加载标签，避免逐行查询
func (r *imageRepo) attachTags(ctx context.Context, q dbtx, images []*model.Image) error {
	if len(images) == 0 {
		return nil
	}
	byID := make(map[string]*model.Image, len(images))
	ids := make([]string, 0, len(images))
	for _, img := range images {
		byID[img.ID] = img
		ids = append(ids, img.ID)
	}

	for _, chunk := range chunkStrings(ids, maxBindParams) {
		rows, err := r.query(ctx, q,
			"SELECT it.image_id, t.name FROM image_tags it JOIN tags t ON t.id = it.tag_id"+
				" WHERE it.image_id IN ("+placeholders(len(chunk))+") ORDER BY t.name", toArgs(chunk)...)
		if err != nil {
			return fmt.Errorf("加载图片标签失败: %w", err)
		}
		for rows.Next() {
			var imageID, name string
			if err := rows.Scan(&imageID, &name); err != nil {
				rows.Close()
				return err
			}
			if img, ok := byID[imageID]; ok {
				img.Tags = append(img.Tags, name)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
	}
	return nil
}

func (r *imageRepo) scanImages(rows *sql.Rows) ([]*model.Image, error) {
	defer rows.Close()
	var images []*model.Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// filter 累积 WHERE 条件和参数
type filter struct {
	clauses []string
	args    []interface{}
}

func (f *filter) add(clause string, args ...interface{}) {
	f.clauses = append(f.clauses, clause)
	f.args = append(f.args, args...)
}

func (f *filter) where() string {
	if len(f.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.clauses, " AND ")
}

func notExpired(f *filter, now time.Time) {
	f.add("(i.expiry_time IS NULL OR i.expiry_time > ?)", toMillis(now))
}

func (r *imageRepo) List(ctx context.Context, q *model.ImageQuery) (*model.ImagePage, error) {
	query := *q
	query.Normalize()

	f := &filter{}
	notExpired(f, time.Now())
	if query.Tag != "" {
		f.add("i.id IN (SELECT it.image_id FROM image_tags it JOIN tags t ON t.id = it.tag_id WHERE t.name = ?)", query.Tag)
	}
	if query.Orientation != "" {
		f.add("i.orientation = ?", string(query.Orientation))
	}

	var total int64
	if err := r.queryRow(ctx, r.db, "SELECT COUNT(*) FROM images i"+f.where(), f.args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("统计图片数量失败: %w", err)
	}

	page := &model.ImagePage{Images: []*model.Image{}, Total: total, Page: query.Page, Limit: query.Limit}
	if total == 0 {
		return page, nil
	}

	args := append(append([]interface{}{}, f.args...), query.Limit, query.Offset())
	rows, err := r.query(ctx, r.db,
		"SELECT "+imageColumns+" FROM images i"+f.where()+" ORDER BY i.upload_time DESC, i.id DESC LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, fmt.Errorf("查询图片列表失败: %w", err)
	}
	images, err := r.scanImages(rows)
	if err != nil {
		return nil, err
	}
	if err := r.attachTags(ctx, r.db, images); err != nil {
		return nil, err
	}
	if images != nil {
		page.Images = images
	}
	return page, nil
}

// randomFilter 构造随机取图的过滤条件：
// 必须命中全部 tags（命中数等于请求数），且不能命中任意 exclude。
func randomFilter(q *model.RandomQuery, now time.Time) *filter {
	f := &filter{}
	notExpired(f, now)
	if q.Orientation != "" {
		f.add("i.orientation = ?", string(q.Orientation))
	}

	tags := model.NormalizeTagNames(q.Tags)
	if len(tags) > 0 {
		args := append(toArgs(tags), len(tags))
		f.add("i.id IN (SELECT it.image_id FROM image_tags it JOIN tags t ON t.id = it.tag_id"+
			" WHERE t.name IN ("+placeholders(len(tags))+") GROUP BY it.image_id HAVING COUNT(DISTINCT t.id) = ?)", args...)
	}

	exclude := model.NormalizeTagNames(q.Exclude)
	if len(exclude) > 0 {
		f.add("i.id NOT IN (SELECT it.image_id FROM image_tags it JOIN tags t ON t.id = it.tag_id"+
			" WHERE t.name IN ("+placeholders(len(exclude))+"))", toArgs(exclude)...)
	}
	return f
}

func (r *imageRepo) FindRandom(ctx context.Context, q *model.RandomQuery) (*model.Image, error) {
	if q == nil {
		q = &model.RandomQuery{}
	}
	f := randomFilter(q, time.Now())

	if r.randomOffsetThreshold > 0 {
		img, err := r.findRandomByOffset(ctx, f)
		if err == nil || !errors.Is(err, errOffsetNotApplicable) {
			return img, err
		}
	}

	img, err := scanImage(r.queryRow(ctx, r.db,
		"SELECT "+imageColumns+" FROM images i"+f.where()+" ORDER BY "+r.dialect.RandomFunc()+" LIMIT 1", f.args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("没有符合条件的图片: %w", constant.ErrNotFound)
		}
		return nil, fmt.Errorf("随机查询图片失败: %w", err)
	}
	if err := r.attachTags(ctx, r.db, []*model.Image{img}); err != nil {
		return nil, err
	}
	return img, nil
}

var errOffsetNotApplicable = errors.New("offset strategy not applicable")

// findRandomByOffset 候选集较大时先 COUNT 再取随机 OFFSET，候选数不超过阈值或行被并发删除时回退
func (r *imageRepo) findRandomByOffset(ctx context.Context, f *filter) (*model.Image, error) {
	var total int64
	if err := r.queryRow(ctx, r.db, "SELECT COUNT(*) FROM images i"+f.where(), f.args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("统计随机候选数量失败: %w", err)
	}
	if total == 0 {
		return nil, fmt.Errorf("没有符合条件的图片: %w", constant.ErrNotFound)
	}
	if total <= r.randomOffsetThreshold {
		return nil, errOffsetNotApplicable
	}

	offset := rand.Int64N(total)
	args := append(append([]interface{}{}, f.args...), offset)
	img, err := scanImage(r.queryRow(ctx, r.db,
		"SELECT "+imageColumns+" FROM images i"+f.where()+" ORDER BY i.id LIMIT 1 OFFSET ?", args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errOffsetNotApplicable
		}
		return nil, fmt.Errorf("随机查询图片失败: %w", err)
	}
	if err := r.attachTags(ctx, r.db, []*model.Image{img}); err != nil {
		return nil, err
	}
	return img, nil
}

func (r *imageRepo) FindExpired(ctx context.Context, now time.Time) ([]*model.Image, error) {
	rows, err := r.query(ctx, r.db,
		"SELECT "+imageColumns+" FROM images i WHERE i.expiry_time IS NOT NULL AND i.expiry_time <= ? ORDER BY i.expiry_time",
		toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("查询过期图片失败: %w", err)
	}
	return r.scanImages(rows)
}

func (r *imageRepo) FindByTag(ctx context.Context, tagName string) ([]*model.Image, error) {
	rows, err := r.query(ctx, r.db,
		"SELECT "+imageColumns+" FROM images i JOIN image_tags it ON it.image_id = i.id JOIN tags t ON t.id = it.tag_id"+
			" WHERE t.name = ? ORDER BY i.upload_time DESC", tagName)
	if err != nil {
		return nil, fmt.Errorf("查询标签 %q 下的图片失败: %w", tagName, err)
	}
	return r.scanImages(rows)
}

func (r *imageRepo) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var deleted int64
	err := r.withTx(ctx, func(q dbtx) error {
		for _, chunk := range chunkStrings(ids, maxBindParams) {
			res, err := r.exec(ctx, q, "DELETE FROM images WHERE id IN ("+placeholders(len(chunk))+")", toArgs(chunk)...)
			if err != nil {
				return fmt.Errorf("批量删除图片失败: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			deleted += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
