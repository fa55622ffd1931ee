package revlog

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"revvault/pkg/meta"
	"revvault/pkg/refs"
	"revvault/pkg/types"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB 构建隔离的内存 SQLite
func setupTestDB(t *testing.T) *meta.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	db := meta.NewWithConn(conn)
	require.NoError(t, db.AutoMigrate(meta.Models()...))
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// newPathsPlugin 构建一个已就绪的 paths 插件
func newPathsPlugin(t *testing.T, db *meta.DB) *PathsPlugin {
	t.Helper()
	p := NewPathsPlugin(db, refsResolver{}, NewCollisionDetector())
	require.NoError(t, p.WhenDatabaseReady(context.Background()))
	return p
}

type refsResolver struct{}

func (refsResolver) RefByPath(path string) (string, string, bool) { return refs.RefByPath(path) }

func added(kind types.PathKind, path string) ChangedPath {
	return ChangedPath{Path: strings.TrimSuffix(path, "/"), Kind: kind, Action: types.ActionAdd}
}

func changed(action types.Action, kind types.PathKind, path string) ChangedPath {
	return ChangedPath{Path: strings.TrimSuffix(path, "/"), Kind: kind, Action: action}
}

func copied(kind types.PathKind, path, from string, fromRevision types.Revision) ChangedPath {
	c := added(kind, path)
	c.CopyFromPath = strings.TrimSuffix(from, "/")
	c.CopyFromRevision = fromRevision
	return c
}

func logEntry(revision types.Revision, paths ...ChangedPath) LogEntry {
	return LogEntry{Revision: revision, Author: "alex", Message: fmt.Sprintf("r%d", revision), Paths: paths}
}

func mustParse(t *testing.T, p Plugin, entries ...LogEntry) {
	t.Helper()
	for _, e := range entries {
		require.NoError(t, p.Parse(context.Background(), e), "revision %d", e.Revision)
	}
}

func mustFind(t *testing.T, p Plugin, project string, criteria ...string) []types.Revision {
	t.Helper()
	got, err := p.Find(context.Background(), criteria, project)
	require.NoError(t, err)
	return got
}

func countRows(t *testing.T, db *meta.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.GetConn().Model(model).Count(&n).Error)
	return n
}

func findPathRow(t *testing.T, db *meta.DB, path string) meta.Path {
	t.Helper()
	var row meta.Path
	require.NoError(t, db.GetConn().Where("path = ?", path).Take(&row).Error)
	return row
}

// nonZero 去掉为 0 的统计项，便于断言
func nonZero(stats Statistics) Statistics {
	out := Statistics{}
	for k, v := range stats {
		if v != 0 {
			out[k] = v
		}
	}
	return out
}

// tableCounts 所有表的行数快照
func tableCounts(t *testing.T, db *meta.DB) map[string]int64 {
	t.Helper()
	counts := make(map[string]int64)
	for _, m := range meta.Models() {
		name := m.(interface{ TableName() string }).TableName()
		counts[name] = countRows(t, db, m)
	}
	return counts
}

func revs(rs ...types.Revision) []types.Revision {
	if rs == nil {
		return []types.Revision{}
	}
	return rs
}

// -----------------------------------------------------------------------------
// fakeSource
// -----------------------------------------------------------------------------

// fakeSource 按版本号保存 <logentry> 片段，模拟 svn log --xml
type fakeSource struct {
	head    types.Revision
	entries map[types.Revision]string
	headErr error

	logCalls [][2]types.Revision
	flags    [][]string
}

func newFakeSource() *fakeSource {
	return &fakeSource{entries: make(map[types.Revision]string)}
}

// add 追加一个版本: paths 形如 "A dir /proj/trunk"、"M file /proj/trunk/a.txt"
func (f *fakeSource) add(revision types.Revision, message string, paths ...string) {
	var b strings.Builder
	fmt.Fprintf(&b, `<logentry revision="%d"><author>alex</author><date>2024-01-0%dT10:00:00.000000Z</date>`, revision, revision%9+1)
	if len(paths) > 0 {
		b.WriteString("<paths>")
		for _, p := range paths {
			parts := strings.SplitN(p, " ", 3)
			fmt.Fprintf(&b, `<path action="%s" kind="%s">%s</path>`, parts[0], parts[1], parts[2])
		}
		b.WriteString("</paths>")
	}
	fmt.Fprintf(&b, "<msg>%s</msg></logentry>", message)

	f.entries[revision] = b.String()
	f.head = max(f.head, revision)
}

func (f *fakeSource) HeadRevision(ctx context.Context, repositoryURL string) (types.Revision, error) {
	return f.head, f.headErr
}

func (f *fakeSource) Log(ctx context.Context, repositoryURL string, from, to types.Revision, flags []string) ([]byte, error) {
	f.logCalls = append(f.logCalls, [2]types.Revision{from, to})
	f.flags = append(f.flags, flags)

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><log>`)
	for r := from; r <= to; r++ {
		b.WriteString(f.entries[r])
	}
	b.WriteString("</log>")
	return []byte(b.String()), nil
}
