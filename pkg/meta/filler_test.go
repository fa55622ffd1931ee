package meta

import (
	"context"
	"encoding/json"
	"testing"

	"revvault/pkg/core"
	"revvault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// 1. 路径
// -----------------------------------------------------------------------------

func TestFiller_AddPath_Idempotency(t *testing.T) {
	db := setupTestDB(t)
	f := NewFiller(db.GetConn())

	first := mustAddPath(t, f, "/proj/trunk/", "trunk", "/proj/", 5)
	second := mustAddPath(t, f, "/proj/trunk/", "trunk", "/proj/", 9)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), countRows(t, db, &Path{}))

	rec := mustFindPath(t, f, core.PathChecksum("/proj/trunk/"))
	assert.Equal(t, "/proj/", rec.ProjectPath)
	assert.Equal(t, "trunk", rec.RefName)
	assert.Equal(t, types.Revision(5), rec.RevisionAdded)
	assert.Equal(t, types.Revision(5), rec.RevisionLastSeen)
	assert.Nil(t, rec.RevisionDeleted)
}

func TestFiller_AddPath_NestingLevel(t *testing.T) {
	db := setupTestDB(t)
	f := NewFiller(db.GetConn())

	mustAddPath(t, f, "/a/b/c.txt", "", "", 1)

	var row Path
	require.NoError(t, db.GetConn().Where("path = ?", "/a/b/c.txt").Take(&row).Error)
	assert.Equal(t, 2, row.PathNestingLevel)
}

func TestFiller_FindPath_Missing(t *testing.T) {
	f := NewFiller(setupTestDB(t).GetConn())

	_, found, err := f.FindPath(context.Background(), core.PathChecksum("/nope"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTouchFields(t *testing.T) {
	tests := []struct {
		name   string
		action types.Action
		rev    types.Revision
		rec    PathRecord
		want   PathFields
	}{
		{
			name:   "Delete Only Sets Deleted",
			action: types.ActionDelete,
			rev:    10,
			rec:    PathRecord{RevisionAdded: 1, RevisionLastSeen: 5},
			want:   PathFields{ColRevisionDeleted: types.Revision(10)},
		},
		{
			name:   "Modify Raises Last Seen",
			action: types.ActionModify,
			rev:    10,
			rec:    PathRecord{RevisionAdded: 1, RevisionLastSeen: 5},
			want:   PathFields{ColRevisionLastSeen: types.Revision(10)},
		},
		{
			name:   "Re-Add Clears Deleted",
			action: types.ActionAdd,
			rev:    10,
			rec:    PathRecord{RevisionAdded: 1, RevisionLastSeen: 5, RevisionDeleted: rev(7)},
			want:   PathFields{ColRevisionDeleted: nil, ColRevisionLastSeen: types.Revision(10)},
		},
		{
			name:   "Add Lowers Added",
			action: types.ActionAdd,
			rev:    3,
			rec:    PathRecord{RevisionAdded: 5, RevisionLastSeen: 5},
			want:   PathFields{ColRevisionAdded: types.Revision(3)},
		},
		{
			name:   "Nothing To Do",
			action: types.ActionModify,
			rev:    5,
			rec:    PathRecord{RevisionAdded: 1, RevisionLastSeen: 5},
			want:   PathFields{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TouchFields(tt.action, tt.rev, tt.rec))
		})
	}
}

func TestPathRecord_Apply(t *testing.T) {
	rec := PathRecord{RevisionAdded: 5, RevisionLastSeen: 5, RevisionDeleted: rev(6)}

	rec.Apply(PathFields{ColRevisionDeleted: nil, ColRevisionLastSeen: types.Revision(9), ColRevisionAdded: types.Revision(2)})
	assert.Nil(t, rec.RevisionDeleted)
	assert.Equal(t, types.Revision(9), rec.RevisionLastSeen)
	assert.Equal(t, types.Revision(2), rec.RevisionAdded)

	rec.Apply(PathFields{ColRevisionDeleted: types.Revision(12)})
	require.NotNil(t, rec.RevisionDeleted)
	assert.Equal(t, types.Revision(12), *rec.RevisionDeleted)
}

func TestParentPath(t *testing.T) {
	assert.Equal(t, "/a/b/", ParentPath("/a/b/c"))
	assert.Equal(t, "/a/", ParentPath("/a/b/"))
	assert.Equal(t, "", ParentPath("/a/"))
	assert.Equal(t, "", ParentPath("/"))
}

func TestFiller_TouchPath_PropagatesToAncestors(t *testing.T) {
	db := setupTestDB(t)
	f := NewFiller(db.GetConn())
	ctx := context.Background()

	mustAddPath(t, f, "/a/", "", "", 1)
	mustAddPath(t, f, "/a/b/", "", "", 3)
	mustAddPath(t, f, "/a/b/c.txt", "", "", 3)

	fields := PathFields{ColRevisionLastSeen: types.Revision(8)}
	touched, err := f.TouchPath(ctx, "/a/b/c.txt", 8, fields)
	require.NoError(t, err)

	// 自身 + 两级祖先
	assert.Len(t, touched, 3)
	for _, p := range []string{"/a/", "/a/b/", "/a/b/c.txt"} {
		rec := mustFindPath(t, f, core.PathChecksum(p))
		assert.Equal(t, types.Revision(8), rec.RevisionLastSeen, p)
	}
}

func TestFiller_TouchPath_StopsAtFreshAncestor(t *testing.T) {
	db := setupTestDB(t)
	f := NewFiller(db.GetConn())
	ctx := context.Background()

	mustAddPath(t, f, "/a/", "", "", 1)
	mustAddPath(t, f, "/a/b/", "", "", 9) // 已经比 8 新
	mustAddPath(t, f, "/a/b/c.txt", "", "", 3)

	touched, err := f.TouchPath(ctx, "/a/b/c.txt", 8, PathFields{ColRevisionLastSeen: types.Revision(8)})
	require.NoError(t, err)

	assert.Len(t, touched, 1)
	assert.Equal(t, types.Revision(1), mustFindPath(t, f, core.PathChecksum("/a/")).RevisionLastSeen)
}

func TestFiller_TouchPath_Delete(t *testing.T) {
	db := setupTestDB(t)
	f := NewFiller(db.GetConn())
	ctx := context.Background()

	mustAddPath(t, f, "/a.txt", "", "", 1)

	_, err := f.TouchPath(ctx, "/a.txt", 4, PathFields{ColRevisionDeleted: types.Revision(4)})
	require.NoError(t, err)
	rec := mustFindPath(t, f, core.PathChecksum("/a.txt"))
	require.NotNil(t, rec.RevisionDeleted)
	assert.Equal(t, types.Revision(4), *rec.RevisionDeleted)

	// 重新添加: 置空删除标记
	_, err = f.TouchPath(ctx, "/a.txt", 6, PathFields{ColRevisionDeleted: nil, ColRevisionLastSeen: types.Revision(6)})
	require.NoError(t, err)
	rec = mustFindPath(t, f, core.PathChecksum("/a.txt"))
	assert.Nil(t, rec.RevisionDeleted)
	assert.Equal(t, types.Revision(6), rec.RevisionLastSeen)
}

func TestFiller_MovePathsIntoProject(t *testing.T) {
	db := setupTestDB(t)
	f := NewFiller(db.GetConn())
	ctx := context.Background()

	a := mustAddPath(t, f, "/proj/a.txt", "", "", 1)
	mustAddPath(t, f, "/proj_other/b.txt", "", "", 1)      // 前缀相似但不在根下
	mustAddPath(t, f, "/proj/trunk/", "trunk", "/proj/", 2) // 已有归属
	mustAddPath(t, f, "/other/proj/c.txt", "", "", 1)      // 不是前缀

	require.NoError(t, f.AddPathToCommit(ctx, CommitPath{Revision: 1, PathID: a, Action: types.ActionAdd, Kind: types.KindFile}))
	require.NoError(t, f.AddPathToCommit(ctx, CommitPath{Revision: 4, PathID: a, Action: types.ActionModify, Kind: types.KindFile}))

	ids, err := f.MovePathsIntoProject(ctx, "/proj/")
	require.NoError(t, err)
	assert.Equal(t, []int64{a}, ids)
	assert.Equal(t, "/proj/", mustFindPath(t, f, core.PathChecksum("/proj/a.txt")).ProjectPath)
	assert.Equal(t, "", mustFindPath(t, f, core.PathChecksum("/proj_other/b.txt")).ProjectPath)

	revisions, err := f.RevisionsTouchingPaths(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, []types.Revision{1, 4}, revisions)
}

// -----------------------------------------------------------------------------
// 2. 项目与引用
// -----------------------------------------------------------------------------

func TestFiller_ProjectsAndRefs(t *testing.T) {
	db := setupTestDB(t)
	f := NewFiller(db.GetConn())
	ctx := context.Background()

	// 1. 项目幂等
	p1, err := f.AddProject(ctx, "/proj/")
	require.NoError(t, err)
	p2, err := f.AddProject(ctx, "/proj/")
	require.NoError(t, err)
	assert.Equal(t, p1, p2)

	found, ok, err := f.FindProject(ctx, "/proj/")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, p1, found)

	paths, err := f.ProjectPaths(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/proj/"}, paths)

	// 2. 引用幂等
	r1, err := f.AddRefToProject(ctx, p1, "trunk")
	require.NoError(t, err)
	r2, err := f.AddRefToProject(ctx, p1, "trunk")
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
	assert.Equal(t, int64(1), countRows(t, db, &ProjectRef{}))

	// 3. 关联幂等
	require.NoError(t, f.AddCommitToProject(ctx, 3, p1))
	require.NoError(t, f.AddCommitToProject(ctx, 3, p1))
	require.NoError(t, f.AddCommitToRef(ctx, 3, r1))
	require.NoError(t, f.AddCommitToRef(ctx, 3, r1))
	assert.Equal(t, int64(1), countRows(t, db, &CommitProject{}))
	assert.Equal(t, int64(1), countRows(t, db, &CommitRef{}))

	_, ok, err = f.FindProject(ctx, "/missing/")
	require.NoError(t, err)
	assert.False(t, ok)
}

// -----------------------------------------------------------------------------
// 3. 插件状态
// -----------------------------------------------------------------------------

func TestFiller_PluginWatermark(t *testing.T) {
	db := setupTestDB(t)
	f := NewFiller(db.GetConn())
	ctx := context.Background()

	last, err := f.LastRevision(ctx, "paths")
	require.NoError(t, err)
	assert.Equal(t, types.Revision(0), last)

	require.NoError(t, f.SetLastRevision(ctx, "paths", 10))
	require.NoError(t, f.SetStatistics(ctx, "paths", map[string]int{"path_added": 3}))
	require.NoError(t, f.SetLastRevision(ctx, "paths", 12))

	last, err = f.LastRevision(ctx, "paths")
	require.NoError(t, err)
	assert.Equal(t, types.Revision(12), last)

	// 统计与水位线互不覆盖
	states, err := f.PluginStates(ctx)
	require.NoError(t, err)
	require.Len(t, states, 1)

	var stats map[string]int
	require.NoError(t, json.Unmarshal(states[0].Statistics, &stats))
	assert.Equal(t, 3, stats["path_added"])
	assert.Equal(t, types.Revision(12), states[0].LastRevision)
}

func TestFiller_CommitsBugsMerges(t *testing.T) {
	db := setupTestDB(t)
	f := NewFiller(db.GetConn())
	ctx := context.Background()

	require.NoError(t, f.AddCommit(ctx, Commit{Revision: 7, Author: "alex", Message: "Fixes #12"}))
	require.NoError(t, f.AddCommit(ctx, Commit{Revision: 7, Author: "alex", Message: "Fixes #12"}))
	require.NoError(t, f.AddBugsToCommit(ctx, 7, []string{"12", "JRA-1"}))
	require.NoError(t, f.AddBugsToCommit(ctx, 7, []string{"12"}))
	require.NoError(t, f.AddMergeCommit(ctx, 7, []types.Revision{3, 4}))
	require.NoError(t, f.AddBugsToCommit(ctx, 8, nil))

	assert.Equal(t, int64(1), countRows(t, db, &Commit{}))
	assert.Equal(t, int64(2), countRows(t, db, &CommitBug{}))
	assert.Equal(t, int64(2), countRows(t, db, &Merge{}))
}
