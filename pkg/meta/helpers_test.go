package meta

import (
	"context"
	"fmt"
	"testing"

	"revvault/pkg/types"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB 构建隔离的内存 SQLite，每个测试一个库
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	metaDB := NewWithConn(conn)
	require.NoError(t, metaDB.AutoMigrate(Models()...))
	t.Cleanup(func() { _ = metaDB.Close() })

	return metaDB
}

func mustAddPath(t *testing.T, f *Filler, path, ref, project string, revision types.Revision) int64 {
	t.Helper()
	id, err := f.AddPath(context.Background(), path, ref, project, revision)
	require.NoError(t, err)
	return id
}

func mustFindPath(t *testing.T, f *Filler, hash types.Hash) PathRecord {
	t.Helper()
	rec, found, err := f.FindPath(context.Background(), hash)
	require.NoError(t, err)
	require.True(t, found, "path %s should exist", hash)
	return rec
}

func countRows(t *testing.T, db *DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.GetConn().Model(model).Count(&n).Error)
	return n
}

func rev(r types.Revision) *types.Revision { return &r }
