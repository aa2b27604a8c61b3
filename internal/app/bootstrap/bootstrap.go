// internal/app/bootstrap/bootstrap.go
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/osirismin/CattoPic/internal/infra/persistence/database"
	"github.com/osirismin/CattoPic/internal/infra/persistence/sqlrepo"
	"github.com/osirismin/CattoPic/pkg/idgen"
)

// KeyIDSeed 保存在 settings 表中的图片ID种子
const KeyIDSeed = "id_seed"

type Bootstrapper struct {
	db      *sql.DB
	dbType  string
	dialect sqlrepo.Dialect
}

func NewBootstrapper(db *sql.DB, dbType string) *Bootstrapper {
	return &Bootstrapper{
		db:      db,
		dbType:  dbType,
		dialect: sqlrepo.ParseDialect(dbType),
	}
}

// InitializeDatabase 执行迁移，并用持久化的种子初始化图片ID编码器
func (b *Bootstrapper) InitializeDatabase(ctx context.Context) error {
	log.Println("--- 开始执行数据库初始化引导程序 ---")

	if err := database.NewMigrationService(b.db, b.dbType).RunMigrations(ctx); err != nil {
		return err
	}

	seed, err := b.getOrCreateIDSeed(ctx)
	if err != nil {
		return err
	}
	if err := idgen.InitSqidsEncoderWithSeed(seed); err != nil {
		return err
	}

	log.Println("--- 数据库初始化引导程序执行完成 ---")
	return nil
}

// getOrCreateIDSeed 从数据库获取或创建 IDSeed。
// 种子写入数据库而不是配置文件，防止被外部修改后已有ID的字母表发生变化。
func (b *Bootstrapper) getOrCreateIDSeed(ctx context.Context) (string, error) {
	seed, err := b.loadSetting(ctx, KeyIDSeed)
	if err == nil {
		log.Println("📦 已从数据库加载 IDSeed")
		return seed, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("读取 IDSeed 失败: %w", err)
	}

	newSeed, err := idgen.GenerateRandomSeed()
	if err != nil {
		return "", fmt.Errorf("生成随机 IDSeed 失败: %w", err)
	}
	query := b.dialect.Rebind(b.dialect.InsertIgnore("settings (config_key, value, comment) VALUES (?, ?, ?)"))
	if _, err := b.db.ExecContext(ctx, query, KeyIDSeed, newSeed, "系统自动生成的ID种子，请勿修改"); err != nil {
		return "", fmt.Errorf("保存 IDSeed 到数据库失败: %w", err)
	}

	// 多个实例同时启动时以先写入的为准
	seed, err = b.loadSetting(ctx, KeyIDSeed)
	if err != nil {
		return "", fmt.Errorf("读取 IDSeed 失败: %w", err)
	}
	log.Println("✅ 全新安装，已生成随机 IDSeed")
	return seed, nil
}

func (b *Bootstrapper) loadSetting(ctx context.Context, key string) (string, error) {
	var value string
	query := b.dialect.Rebind("SELECT value FROM settings WHERE config_key = ?")
	err := b.db.QueryRowContext(ctx, query, key).Scan(&value)
	return value, err
}
