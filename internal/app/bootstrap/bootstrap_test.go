package bootstrap

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/osirismin/CattoPic/internal/infra/persistence/database"
	"github.com/osirismin/CattoPic/pkg/idgen"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeDatabase_PersistsSeed(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite3", database.SQLiteDSN(filepath.Join(t.TempDir(), "boot.db")))
	require.NoError(t, err)
	defer db.Close()

	b := NewBootstrapper(db, database.TypeSQLite)
	require.NoError(t, b.InitializeDatabase(ctx))
	first, err := b.loadSetting(ctx, KeyIDSeed)
	require.NoError(t, err)
	assert.Len(t, first, 32)

	// 再次启动沿用同一个种子
	require.NoError(t, b.InitializeDatabase(ctx))
	second, err := b.loadSetting(ctx, KeyIDSeed)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	id, err := idgen.NewImageID()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(id), 10)
}
