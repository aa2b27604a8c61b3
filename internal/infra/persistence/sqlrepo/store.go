package sqlrepo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// dbtx 是 *sql.DB 与 *sql.Tx 的公共子集，仓储在两者之上都能工作
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// store 持有连接与方言，所有语句都以 ? 书写并在这里统一 Rebind
type store struct {
	db      dbtx
	dialect Dialect
}

func (s *store) exec(ctx context.Context, q dbtx, query string, args ...interface{}) (sql.Result, error) {
	return q.ExecContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *store) query(ctx context.Context, q dbtx, query string, args ...interface{}) (*sql.Rows, error) {
	return q.QueryContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *store) queryRow(ctx context.Context, q dbtx, query string, args ...interface{}) *sql.Row {
	return q.QueryRowContext(ctx, s.dialect.Rebind(query), args...)
}

// withTx 保证 fn 中的多条语句原子执行：
// 已处于事务中时直接复用，否则开启一个新事务。
func (s *store) withTx(ctx context.Context, fn func(q dbtx) error) (err error) {
	db, ok := s.db.(*sql.DB)
	if !ok {
		return fn(s.db)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer func() {
		if v := recover(); v != nil {
			tx.Rollback()
			panic(v)
		}
	}()

	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return fmt.Errorf("事务执行失败: %w, 回滚事务也失败: %v", err, rerr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

// ensureTags 幂等地确保标签存在
func (s *store) ensureTags(ctx context.Context, q dbtx, names []string) error {
	for _, chunk := range chunkStrings(names, maxBindParams) {
		values := make([]string, len(chunk))
		for i := range chunk {
			values[i] = "(?)"
		}
		stmt := s.dialect.InsertIgnore("tags (name) VALUES " + strings.Join(values, ","))
		if _, err := s.exec(ctx, q, stmt, toArgs(chunk)...); err != nil {
			return fmt.Errorf("创建标签失败: %w", err)
		}
	}
	return nil
}

// linkTag 为一批图片关联一个标签（按名称），不存在的图片会被忽略
func (s *store) linkTag(ctx context.Context, q dbtx, tagName string, imageIDs []string) error {
	for _, chunk := range chunkStrings(imageIDs, maxBindParams-1) {
		stmt := s.dialect.InsertIgnore(
			"image_tags (image_id, tag_id) SELECT i.id, t.id FROM images i CROSS JOIN tags t" +
				" WHERE t.name = ? AND i.id IN (" + placeholders(len(chunk)) + ")")
		args := append([]interface{}{tagName}, toArgs(chunk)...)
		if _, err := s.exec(ctx, q, stmt, args...); err != nil {
			return fmt.Errorf("关联标签 %q 失败: %w", tagName, err)
		}
	}
	return nil
}

// linkTagsToImage 为单张图片关联多个标签，一条语句完成
func (s *store) linkTagsToImage(ctx context.Context, q dbtx, imageID string, tagNames []string) error {
	for _, chunk := range chunkStrings(tagNames, maxBindParams-1) {
		stmt := s.dialect.InsertIgnore(
			"image_tags (image_id, tag_id) SELECT i.id, t.id FROM images i CROSS JOIN tags t" +
				" WHERE i.id = ? AND t.name IN (" + placeholders(len(chunk)) + ")")
		args := append([]interface{}{imageID}, toArgs(chunk)...)
		if _, err := s.exec(ctx, q, stmt, args...); err != nil {
			return fmt.Errorf("关联图片标签失败: %w", err)
		}
	}
	return nil
}

// unlinkTags 移除一批图片上的若干标签，标签名和图片 ID 各占一半参数
func (s *store) unlinkTags(ctx context.Context, q dbtx, imageIDs, tagNames []string) error {
	if len(tagNames) == 0 {
		return nil
	}
	half := maxBindParams / 2
	for _, tags := range chunkStrings(tagNames, half) {
		for _, ids := range chunkStrings(imageIDs, maxBindParams-len(tags)) {
			stmt := "DELETE FROM image_tags WHERE tag_id IN (SELECT id FROM tags WHERE name IN (" +
				placeholders(len(tags)) + ")) AND image_id IN (" + placeholders(len(ids)) + ")"
			args := append(toArgs(tags), toArgs(ids)...)
			if _, err := s.exec(ctx, q, stmt, args...); err != nil {
				return fmt.Errorf("移除图片标签失败: %w", err)
			}
		}
	}
	return nil
}
