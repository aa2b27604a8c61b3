/*
 * @Description:
 * @Author: 安知鱼
 * @Date: 2026-09-05 09:13:40
 * @LastEditTime: 2026-09-28 18:33:59
 * @LastEditors: 安知鱼
 */
package sqlrepo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/osirismin/CattoPic/pkg/domain/repository"
)

// sqlTransactionManager 基于 database/sql 的事务管理器实现。
type sqlTransactionManager struct {
	db        *sql.DB
	dialect   Dialect
	imageOpts []ImageRepoOption
}

// NewTransactionManager 是 sqlTransactionManager 的构造函数。
func NewTransactionManager(db *sql.DB, dialect Dialect, imageOpts ...ImageRepoOption) repository.TransactionManager {
	return &sqlTransactionManager{
		db:        db,
		dialect:   dialect,
		imageOpts: imageOpts,
	}
}

// Do 实现了 TransactionManager 接口。
// 它会开启一个事务，并将 Repositories 结构体中定义的所有仓库包裹在这个事务中。
func (tm *sqlTransactionManager) Do(ctx context.Context, fn func(repos repository.Repositories) error) error {
	tx, err := tm.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}

	defer func() {
		if v := recover(); v != nil {
			tx.Rollback()
			panic(v)
		}
	}()

	repos := repository.Repositories{
		Image: NewImageRepository(tx, tm.dialect, tm.imageOpts...),
		Tag:   NewTagRepository(tx, tm.dialect),
	}

	if err := fn(repos); err != nil {
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
