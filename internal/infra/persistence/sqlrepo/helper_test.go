package sqlrepo

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/osirismin/CattoPic/internal/infra/persistence/database"
	"github.com/osirismin/CattoPic/pkg/domain/model"
)

// newTestDB 在临时目录创建一个已迁移的 SQLite 数据库
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", database.SQLiteDSN(filepath.Join(t.TempDir(), "test.db")))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.NewMigrationService(db, database.TypeSQLite).RunMigrations(context.Background()))
	return db
}

var imageSeq int

// newImage 构造一条测试用图片记录，上传时间递增以保证排序稳定
func newImage(orientation model.Orientation, tags ...string) *model.Image {
	imageSeq++
	id := fmt.Sprintf("img%04d", imageSeq)
	return &model.Image{
		ID:          id,
		Filename:    id + ".jpg",
		UploadTime:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(imageSeq) * time.Second),
		Orientation: orientation,
		Format:      "jpeg",
		Width:       2000,
		Height:      3000,
		Paths: model.ImagePaths{
			Original: "images/" + string(orientation) + "/original/" + id + ".jpeg",
			WebP:     "images/" + string(orientation) + "/webp/" + id + ".webp",
			AVIF:     "images/" + string(orientation) + "/avif/" + id + ".avif",
		},
		Sizes: model.ImageSizes{Original: 1000, WebP: 500, AVIF: 300},
		Tags:  tags,
	}
}

func tagCounts(t *testing.T, repo interface {
	List(ctx context.Context, limit int) ([]*model.Tag, error)
}) map[string]int64 {
	t.Helper()
	tags, err := repo.List(context.Background(), 0)
	require.NoError(t, err)
	counts := make(map[string]int64, len(tags))
	for _, tag := range tags {
		counts[tag.Name] = tag.Count
	}
	return counts
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}
