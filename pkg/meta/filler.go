package meta

import (
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"revvault/pkg/core"
	"revvault/pkg/types"

	"github.com/jmgilman/go/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 可被 "touch" 更新的 Path 列
const (
	ColRevisionAdded    = "revision_added"
	ColRevisionDeleted  = "revision_deleted"
	ColRevisionLastSeen = "revision_last_seen"
)

// inChunkSize 限制 IN (...) 的参数个数，SQLite 对绑定参数数量有上限
const inChunkSize = 500

// PathFields 是一次 touch 需要写回的列，值为 types.Revision 或 nil (置空)
type PathFields map[string]any

// PathRecord 是 Path 行在行缓存中的投影
type PathRecord struct {
	ID               int64
	ProjectPath      string
	RefName          string
	RevisionAdded    types.Revision
	RevisionDeleted  *types.Revision
	RevisionLastSeen types.Revision
}

// Apply 把 touch 结果同步到缓存中的行
func (r *PathRecord) Apply(fields PathFields) {
	for col, v := range fields {
		switch col {
		case ColRevisionAdded:
			r.RevisionAdded = v.(types.Revision)
		case ColRevisionLastSeen:
			r.RevisionLastSeen = v.(types.Revision)
		case ColRevisionDeleted:
			if v == nil {
				r.RevisionDeleted = nil
			} else {
				rev := v.(types.Revision)
				r.RevisionDeleted = &rev
			}
		}
	}
}

// TouchFields 计算路径在 revision 中以 action 出现时需要更新的列
// 删除只记录删除版本；其他动作清除删除标记、前移添加版本、后移最后可见版本
func TouchFields(action types.Action, revision types.Revision, rec PathRecord) PathFields {
	fields := PathFields{}

	if action == types.ActionDelete {
		fields[ColRevisionDeleted] = revision
		return fields
	}

	if rec.RevisionDeleted != nil {
		fields[ColRevisionDeleted] = nil
	}
	if action == types.ActionAdd && rec.RevisionAdded > revision {
		fields[ColRevisionAdded] = revision
	}
	if rec.RevisionLastSeen < revision {
		fields[ColRevisionLastSeen] = revision
	}

	return fields
}

// Filler 是关系模型的写入端
// 一个 Filler 绑定一个 gorm 连接或事务，插件在每个版本的事务里创建它
type Filler struct {
	conn *gorm.DB
}

func NewFiller(conn *gorm.DB) *Filler {
	return &Filler{conn: conn}
}

func dbError(err error, message string) error {
	return errors.Wrap(err, errors.CodeDatabase, message)
}

// -----------------------------------------------------------------------------
// 1. 路径 (Paths)
// -----------------------------------------------------------------------------

// FindPath 按身份 Hash 查找路径
func (f *Filler) FindPath(ctx context.Context, hash types.Hash) (PathRecord, bool, error) {
	var rec PathRecord
	err := f.conn.WithContext(ctx).Model(&Path{}).
		Select("id", "project_path", "ref_name", "revision_added", "revision_deleted", "revision_last_seen").
		Where("path_hash = ?", hash).
		Take(&rec).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return PathRecord{}, false, nil
	}
	if err != nil {
		return PathRecord{}, false, dbError(err, "failed to find path")
	}
	return rec, true, nil
}

// AddPath 幂等插入路径，返回行 ID
func (f *Filler) AddPath(ctx context.Context, path, refName, projectPath string, revision types.Revision) (int64, error) {
	row := Path{
		Path:             path,
		PathNestingLevel: strings.Count(strings.Trim(path, "/"), "/"),
		PathHash:         core.PathChecksum(path),
		ProjectPath:      projectPath,
		RefName:          refName,
		RevisionAdded:    revision,
		RevisionLastSeen: revision,
	}

	res := f.conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "path_hash"}},
			DoNothing: true,
		}).
		Create(&row)
	if res.Error != nil {
		return 0, dbError(res.Error, "failed to add path")
	}

	// 已存在: 冲突时不会回填 ID，再查一次
	if res.RowsAffected == 0 {
		rec, found, err := f.FindPath(ctx, row.PathHash)
		if err != nil {
			return 0, err
		}
		if !found {
			return 0, errors.Newf(errors.CodeDatabase, "path %q vanished after insert", path)
		}
		return rec.ID, nil
	}

	return row.ID, nil
}

// TouchPath 写回 fields，并把 revision_last_seen 向上传播给落后的祖先目录
// 返回所有被修改的行 (按 Hash)，调用方据此刷新行缓存
func (f *Filler) TouchPath(ctx context.Context, path string, revision types.Revision, fields PathFields) (map[types.Hash]PathFields, error) {
	touched, err := f.propagateRevisionLastSeen(ctx, path, revision)
	if err != nil {
		return nil, err
	}
	touched[core.PathChecksum(path)] = fields

	for hash, cols := range touched {
		if len(cols) == 0 {
			continue
		}
		err := f.conn.WithContext(ctx).Model(&Path{}).
			Where("path_hash = ?", hash).
			Updates(map[string]any(cols)).Error
		if err != nil {
			return nil, dbError(err, "failed to touch path")
		}
	}

	return touched, nil
}

// propagateRevisionLastSeen 从直接父目录开始向上，遇到不存在或已经足够新的祖先即停止
func (f *Filler) propagateRevisionLastSeen(ctx context.Context, path string, revision types.Revision) (map[types.Hash]PathFields, error) {
	touched := make(map[types.Hash]PathFields)

	for parent := ParentPath(path); parent != ""; parent = ParentPath(parent) {
		hash := core.PathChecksum(parent)

		var lastSeen []types.Revision
		err := f.conn.WithContext(ctx).Model(&Path{}).
			Where("path_hash = ?", hash).
			Limit(1).
			Pluck("revision_last_seen", &lastSeen).Error
		if err != nil {
			return nil, dbError(err, "failed to read parent path")
		}

		if len(lastSeen) == 0 || lastSeen[0] >= revision {
			break
		}
		touched[hash] = PathFields{ColRevisionLastSeen: revision}
	}

	return touched, nil
}

// ParentPath "/a/b/c" -> "/a/b/" -> "/a/" -> ""
// 根目录 "/" 不参与传播
func ParentPath(path string) string {
	trimmed := strings.TrimSuffix(path, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx <= 0 {
		return ""
	}
	return trimmed[:idx+1]
}

// AddPathToCommit 记录一个版本对一个路径的改动
func (f *Filler) AddPathToCommit(ctx context.Context, row CommitPath) error {
	err := f.conn.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return dbError(err, "failed to add path to commit")
	}
	return nil
}

// MovePathsIntoProject 把根路径之下还没有项目归属的路径划入项目
// 返回被移动的路径 ID
func (f *Filler) MovePathsIntoProject(ctx context.Context, projectPath string) ([]int64, error) {
	var ids []int64
	err := f.conn.WithContext(ctx).Model(&Path{}).
		Where("project_path = ?", "").
		Where("SUBSTR(path, 1, ?) = ?", utf8.RuneCountInString(projectPath), projectPath).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, dbError(err, "failed to find project paths")
	}

	for start := 0; start < len(ids); start += inChunkSize {
		chunk := ids[start:min(start+inChunkSize, len(ids))]
		err := f.conn.WithContext(ctx).Model(&Path{}).
			Where("id IN ?", chunk).
			Update("project_path", projectPath).Error
		if err != nil {
			return nil, dbError(err, "failed to move paths into project")
		}
	}

	return ids, nil
}

// RevisionsTouchingPaths 返回改动过这些路径的版本 (去重升序)
func (f *Filler) RevisionsTouchingPaths(ctx context.Context, pathIDs []int64) ([]types.Revision, error) {
	seen := make(map[types.Revision]struct{})

	for start := 0; start < len(pathIDs); start += inChunkSize {
		chunk := pathIDs[start:min(start+inChunkSize, len(pathIDs))]

		var revisions []types.Revision
		err := f.conn.WithContext(ctx).Model(&CommitPath{}).
			Where("path_id IN ?", chunk).
			Distinct().
			Pluck("revision", &revisions).Error
		if err != nil {
			return nil, dbError(err, "failed to collect revisions")
		}
		for _, r := range revisions {
			seen[r] = struct{}{}
		}
	}

	return SortedRevisions(seen), nil
}

// -----------------------------------------------------------------------------
// 2. 项目与引用 (Projects / Refs)
// -----------------------------------------------------------------------------

func (f *Filler) FindProject(ctx context.Context, path string) (int64, bool, error) {
	var ids []int64
	err := f.conn.WithContext(ctx).Model(&Project{}).
		Where("path = ?", path).
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, false, dbError(err, "failed to find project")
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	return ids[0], true, nil
}

// AddProject 幂等插入项目
func (f *Filler) AddProject(ctx context.Context, path string) (int64, error) {
	row := Project{Path: path}
	res := f.conn.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "path"}}, DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return 0, dbError(res.Error, "failed to add project")
	}
	if res.RowsAffected == 0 {
		id, _, err := f.FindProject(ctx, path)
		return id, err
	}
	return row.ID, nil
}

// ProjectPaths 返回所有已知项目根路径
func (f *Filler) ProjectPaths(ctx context.Context) ([]string, error) {
	var paths []string
	if err := f.conn.WithContext(ctx).Model(&Project{}).Pluck("path", &paths).Error; err != nil {
		return nil, dbError(err, "failed to list projects")
	}
	return paths, nil
}

func (f *Filler) FindRef(ctx context.Context, projectID int64, name string) (int64, bool, error) {
	var ids []int64
	err := f.conn.WithContext(ctx).Model(&ProjectRef{}).
		Where("project_id = ? AND name = ?", projectID, name).
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, false, dbError(err, "failed to find ref")
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	return ids[0], true, nil
}

// AddRefToProject 幂等插入引用
func (f *Filler) AddRefToProject(ctx context.Context, projectID int64, name string) (int64, error) {
	row := ProjectRef{ProjectID: projectID, Name: name}
	res := f.conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "project_id"}, {Name: "name"}},
			DoNothing: true,
		}).
		Create(&row)
	if res.Error != nil {
		return 0, dbError(res.Error, "failed to add ref")
	}
	if res.RowsAffected == 0 {
		id, _, err := f.FindRef(ctx, projectID, name)
		return id, err
	}
	return row.ID, nil
}

func (f *Filler) AddCommitToProject(ctx context.Context, revision types.Revision, projectID int64) error {
	err := f.conn.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&CommitProject{Revision: revision, ProjectID: projectID}).Error
	if err != nil {
		return dbError(err, "failed to add commit to project")
	}
	return nil
}

func (f *Filler) AddCommitToRef(ctx context.Context, revision types.Revision, refID int64) error {
	err := f.conn.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&CommitRef{Revision: revision, RefID: refID}).Error
	if err != nil {
		return dbError(err, "failed to add commit to ref")
	}
	return nil
}

// -----------------------------------------------------------------------------
// 3. 提交元数据 (Commits / Bugs / Merges)
// -----------------------------------------------------------------------------

func (f *Filler) AddCommit(ctx context.Context, row Commit) error {
	err := f.conn.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return dbError(err, "failed to add commit")
	}
	return nil
}

func (f *Filler) AddBugsToCommit(ctx context.Context, revision types.Revision, bugs []string) error {
	if len(bugs) == 0 {
		return nil
	}

	rows := make([]CommitBug, 0, len(bugs))
	for _, bug := range bugs {
		rows = append(rows, CommitBug{Revision: revision, Bug: bug})
	}

	err := f.conn.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
	if err != nil {
		return dbError(err, "failed to add bugs to commit")
	}
	return nil
}

func (f *Filler) AddMergeCommit(ctx context.Context, revision types.Revision, merged []types.Revision) error {
	if len(merged) == 0 {
		return nil
	}

	rows := make([]Merge, 0, len(merged))
	for _, m := range merged {
		rows = append(rows, Merge{MergeRevision: revision, MergedRevision: m})
	}

	err := f.conn.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
	if err != nil {
		return dbError(err, "failed to add merge commit")
	}
	return nil
}

// -----------------------------------------------------------------------------
// 4. 插件状态 (PluginData)
// -----------------------------------------------------------------------------

// LastRevision 读取插件水位线，从未运行过时为 0
func (f *Filler) LastRevision(ctx context.Context, plugin string) (types.Revision, error) {
	var revisions []types.Revision
	err := f.conn.WithContext(ctx).Model(&PluginData{}).
		Where("name = ?", plugin).
		Limit(1).
		Pluck("last_revision", &revisions).Error
	if err != nil {
		return 0, dbError(err, "failed to read plugin watermark")
	}
	if len(revisions) == 0 {
		return 0, nil
	}
	return revisions[0], nil
}

// SetLastRevision 写入插件水位线 (Upsert)
func (f *Filler) SetLastRevision(ctx context.Context, plugin string, revision types.Revision) error {
	err := f.conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_revision"}),
		}).
		Create(&PluginData{Name: plugin, LastRevision: revision}).Error
	if err != nil {
		return dbError(err, "failed to set plugin watermark")
	}
	return nil
}

// SetStatistics 保存插件最近一次运行的统计，不影响水位线
func (f *Filler) SetStatistics(ctx context.Context, plugin string, stats map[string]int) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}

	err = f.conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"statistics"}),
		}).
		Create(&PluginData{Name: plugin, Statistics: datatypes.JSON(data)}).Error
	if err != nil {
		return dbError(err, "failed to save plugin statistics")
	}
	return nil
}

// PluginStates 返回全部插件行，按名称排序
func (f *Filler) PluginStates(ctx context.Context) ([]PluginData, error) {
	var rows []PluginData
	if err := f.conn.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, dbError(err, "failed to list plugin data")
	}
	return rows, nil
}
