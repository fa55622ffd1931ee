package app

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"revvault/pkg/config"
	"revvault/pkg/logging"
	"revvault/pkg/meta"
	"revvault/pkg/types"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testRootURL = "svn://example.com/repo"

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

// staticSource 一次性返回整段日志
type staticSource struct {
	head types.Revision
	xml  string
}

func (s *staticSource) HeadRevision(ctx context.Context, repositoryURL string) (types.Revision, error) {
	return s.head, nil
}

func (s *staticSource) Log(ctx context.Context, repositoryURL string, from, to types.Revision, flags []string) ([]byte, error) {
	return []byte(s.xml), nil
}

// historyXML 的内容:
//
//	r1 建立 /proj/trunk
//	r2 trunk 上修复 #12
//	r3 从 trunk@2 复制出 branches/x
//	r4 branches/x 上修复 JRA-7
//	r5 trunk 上新增文件
//	r6 把 r4 合并回 trunk
const historyXML = `<?xml version="1.0" encoding="UTF-8"?>
<log>
<logentry revision="1"><author>alice</author><date>2024-01-01T10:00:00.000000Z</date>
<paths>
<path action="A" kind="dir">/proj</path>
<path action="A" kind="dir">/proj/trunk</path>
<path action="A" kind="file">/proj/trunk/a.txt</path>
</paths><msg>Initial import</msg></logentry>
<logentry revision="2"><author>bob</author><date>2024-01-02T10:00:00.000000Z</date>
<paths><path action="M" kind="file">/proj/trunk/a.txt</path></paths><msg>Fixes #12</msg></logentry>
<logentry revision="3"><author>alice</author><date>2024-01-03T10:00:00.000000Z</date>
<paths><path action="A" kind="dir" copyfrom-path="/proj/trunk" copyfrom-rev="2">/proj/branches/x</path></paths><msg>Branch x</msg></logentry>
<logentry revision="4"><author>bob</author><date>2024-01-04T10:00:00.000000Z</date>
<paths><path action="M" kind="file">/proj/branches/x/a.txt</path></paths><msg>JRA-7 on branch</msg></logentry>
<logentry revision="5"><author>alice</author><date>2024-01-05T10:00:00.000000Z</date>
<paths><path action="A" kind="file">/proj/trunk/b.txt</path></paths><msg>refs #12</msg></logentry>
<logentry revision="6"><author>alice</author><date>2024-01-06T10:00:00.000000Z</date>
<paths><path action="M" kind="dir">/proj/trunk</path></paths><msg>Merging r4</msg>
<logentry revision="4"><author>bob</author><date>2024-01-04T10:00:00.000000Z</date><msg>JRA-7 on branch</msg></logentry>
</logentry>
</log>`

// newIndexedRepository 构建已经索引完 historyXML 的版本库，并定位到 target
func newIndexedRepository(t *testing.T, target string) *Repository {
	t.Helper()

	source := &staticSource{head: 6, xml: historyXML}
	repo, err := newRepository(testRootURL, source, setupTestDB(t), logging.Discard(), config.DefaultBugRegexps)
	require.NoError(t, err)

	n, err := repo.Log.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, 6, n)

	require.NoError(t, repo.locate(testRootURL+target))
	return repo
}

func revs(rs ...types.Revision) []types.Revision {
	return rs
}
