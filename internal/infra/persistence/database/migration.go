/*
 * @Description: 数据库迁移服务（基于 goose 的版本化 SQL 迁移）
 * @Author: 安知鱼
 * @Date: 2026-09-04 10:18:33
 * @LastEditTime: 2026-10-02 17:45:10
 * @LastEditors: 安知鱼
 */
package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log"
	"path"

	"github.com/pressly/goose/v3"
)

//go:embed migrations
var migrationsFS embed.FS

// MigrationService 数据库迁移服务
type MigrationService struct {
	db     *sql.DB
	dbType string
}

// NewMigrationService 创建迁移服务，dbType 需为 NormalizeType 之后的值
func NewMigrationService(db *sql.DB, dbType string) *MigrationService {
	return &MigrationService{
		db:     db,
		dbType: dbType,
	}
}

// gooseDialect 返回 goose 使用的方言名称
func gooseDialect(dbType string) (string, error) {
	switch dbType {
	case TypeSQLite:
		return "sqlite3", nil
	case TypePostgres:
		return "postgres", nil
	case TypeMySQL:
		return "mysql", nil
	default:
		return "", fmt.Errorf("迁移不支持的数据库类型: %s", dbType)
	}
}

// RunMigrations 执行所有尚未应用的迁移
func (m *MigrationService) RunMigrations(ctx context.Context) error {
	dialect, err := gooseDialect(m.dbType)
	if err != nil {
		return err
	}

	log.Println("📋 开始执行数据库迁移...")
	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("设置迁移方言失败: %w", err)
	}
	if err := goose.UpContext(ctx, m.db, path.Join("migrations", m.dbType)); err != nil {
		return fmt.Errorf("执行数据库迁移失败: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, m.db)
	if err != nil {
		log.Printf("⚠️ 读取迁移版本失败: %v", err)
	} else {
		log.Printf("✅ 数据库迁移完成，当前版本: %d", version)
	}
	return nil
}
