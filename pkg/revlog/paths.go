package revlog

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"revvault/pkg/core"
	"revvault/pkg/lookup"
	"revvault/pkg/meta"
	"revvault/pkg/types"

	"github.com/jmgilman/go/errors"
	"gorm.io/gorm"
)

const PathsPluginName = "paths"

// paths 插件的统计项
const (
	StatPathAdded             = "path_added"
	StatPathFound             = "path_found"
	StatProjectAdded          = "project_added"
	StatProjectFound          = "project_found"
	StatProjectCollisionFound = "project_collision_found"
	StatRefAdded              = "ref_added"
	StatRefFound              = "ref_found"
	StatCommitAddedToProject  = "commit_added_to_project"
	StatCommitAddedToRef      = "commit_added_to_ref"
	StatEmptyCommit           = "empty_commit"
)

const (
	revisionsDataChunkSize = 500
	commitPathsRevision    = "cpa.revision"
)

// RefResolver 从路径识别引用 (例如 trunk、branches/x) 及其所在的项目根
type RefResolver interface {
	RefByPath(path string) (ref, root string, ok bool)
}

// PathsPlugin 把每个版本改动的路径归入 路径/项目/引用 模型
type PathsPlugin struct {
	pluginBase

	resolver RefResolver
	detector *CollisionDetector

	// 一次运行内的行缓存
	paths    *lookup.Table[meta.PathRecord] // key: path hash
	projects *lookup.Table[int64]           // key: project path
	refs     *lookup.Table[int64]           // key: "<project id>:<ref name>"
}

// revisionScope 单个版本处理过程中的临时状态
type revisionScope struct {
	filler   *meta.Filler
	revision types.Revision

	newProjects      map[int64]string
	existingProjects map[int64]string
	usedRefs         map[int64]struct{}
}

func newRevisionScope(f *meta.Filler, revision types.Revision) *revisionScope {
	return &revisionScope{
		filler:           f,
		revision:         revision,
		newProjects:      make(map[int64]string),
		existingProjects: make(map[int64]string),
		usedRefs:         make(map[int64]struct{}),
	}
}

func NewPathsPlugin(db *meta.DB, resolver RefResolver, detector *CollisionDetector) *PathsPlugin {
	return &PathsPlugin{
		pluginBase: newPluginBase(PathsPluginName, db,
			StatPathAdded,
			StatPathFound,
			StatProjectAdded,
			StatProjectFound,
			StatProjectCollisionFound,
			StatRefAdded,
			StatRefFound,
			StatCommitAddedToProject,
			StatCommitAddedToRef,
			StatEmptyCommit,
		),
		resolver: resolver,
		detector: detector,
		paths:    lookup.NewTable[meta.PathRecord]("paths"),
		projects: lookup.NewTable[int64]("projects"),
		refs:     lookup.NewTable[int64]("project_refs"),
	}
}

func (p *PathsPlugin) RevisionQueryFlags() []string { return []string{FlagVerbose} }

// WhenDatabaseReady 用已知项目根重建冲突检测器
func (p *PathsPlugin) WhenDatabaseReady(ctx context.Context) error {
	roots, err := meta.NewFiller(p.db.GetConn()).ProjectPaths(ctx)
	if err != nil {
		return err
	}

	p.detector.Reset()
	p.detector.AddPaths(roots...)
	return nil
}

// ClearCache 释放行缓存
func (p *PathsPlugin) ClearCache() {
	p.paths.Clear()
	p.projects.Clear()
	p.refs.Clear()
}

// Parse 处理单个版本
func (p *PathsPlugin) Parse(ctx context.Context, entry LogEntry) error {
	err := p.parse(ctx, entry.Revision, func(f *meta.Filler) error {
		return p.parseEntry(ctx, newRevisionScope(f, entry.Revision), entry)
	})
	if err != nil {
		// 回滚后缓存与检测器里可能残留未提交的行
		p.ClearCache()
		p.detector.Reset()
		return err
	}
	return nil
}

func (p *PathsPlugin) parseEntry(ctx context.Context, s *revisionScope, entry LogEntry) error {
	// 1. 空提交
	if len(entry.Paths) == 0 {
		p.recordStatistic(StatEmptyCommit)
		return nil
	}

	// 2. 父目录排在子路径之前
	for _, changed := range sortPaths(entry.Paths) {
		row := meta.CommitPath{
			Revision: entry.Revision,
			Action:   changed.Action,
			Kind:     changed.Kind,
		}

		// 3. 复制来源只需要存在，不算作本次提交对项目的使用
		if changed.HasCopySource() {
			copyPath := core.NormalizePath(changed.CopyFromPath, changed.Kind)
			copyID, err := p.processPath(ctx, s, copyPath, changed.CopyFromRevision, "", false)
			if err != nil {
				return err
			}
			copyRevision := changed.CopyFromRevision
			row.CopyRevision = &copyRevision
			row.CopyPathID = &copyID
		}

		path := core.NormalizePath(changed.Path, changed.Kind)
		id, err := p.processPath(ctx, s, path, entry.Revision, changed.Action, true)
		if err != nil {
			return err
		}
		row.PathID = id

		if err := s.filler.AddPathToCommit(ctx, row); err != nil {
			return err
		}
	}

	// 4. 关联版本与项目/引用
	return p.associate(ctx, s)
}

// sortPaths 按字节序排序，前缀总是排在前面
func sortPaths(paths []ChangedPath) []ChangedPath {
	sorted := slices.Clone(paths)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
	return sorted
}

// processPath 解析 (必要时创建) 路径，返回行 ID
// action 为空表示只查找，不更新生命周期字段
func (p *PathsPlugin) processPath(ctx context.Context, s *revisionScope, path string, revision types.Revision, action types.Action, isUsage bool) (int64, error) {
	hash := core.PathChecksum(path)

	rec, found, err := p.paths.Get(hash.String(), func() (meta.PathRecord, bool, error) {
		return s.filler.FindPath(ctx, hash)
	})
	if err != nil {
		return 0, err
	}

	if found {
		if action != "" {
			if err := p.touchPath(ctx, s, path, revision, action, rec); err != nil {
				return 0, err
			}
		}

		if rec.ProjectPath != "" && rec.RefName != "" {
			if err := p.processProjectAndRef(ctx, s, rec.ProjectPath, rec.RefName, isUsage); err != nil {
				return 0, err
			}
		}

		p.recordStatistic(StatPathFound)
		return rec.ID, nil
	}

	// 新路径: 判断引用与项目归属
	ref, projectPath, ok := p.resolver.RefByPath(path)
	if !ok {
		ref, projectPath = "", ""
	} else if p.detector.IsCollision(projectPath) {
		ref, projectPath = "", ""
		p.recordStatistic(StatProjectCollisionFound)
	}

	id, err := s.filler.AddPath(ctx, path, ref, projectPath, revision)
	if err != nil {
		return 0, err
	}
	p.paths.Set(hash.String(), meta.PathRecord{
		ID:               id,
		ProjectPath:      projectPath,
		RefName:          ref,
		RevisionAdded:    revision,
		RevisionLastSeen: revision,
	})

	if projectPath != "" && ref != "" {
		if err := p.processProjectAndRef(ctx, s, projectPath, ref, isUsage); err != nil {
			return 0, err
		}
	}

	p.recordStatistic(StatPathAdded)
	return id, nil
}

// touchPath 写回生命周期字段，并同步已缓存的行
func (p *PathsPlugin) touchPath(ctx context.Context, s *revisionScope, path string, revision types.Revision, action types.Action, rec meta.PathRecord) error {
	fields := meta.TouchFields(action, revision, rec)
	if len(fields) == 0 {
		return nil
	}

	touched, err := s.filler.TouchPath(ctx, path, revision, fields)
	if err != nil {
		return err
	}

	// 只更新已在缓存中的行，未缓存的下次回源即可
	for hash, cols := range touched {
		p.paths.Update(hash.String(), func(r *meta.PathRecord) { r.Apply(cols) })
	}
	return nil
}

func (p *PathsPlugin) processProjectAndRef(ctx context.Context, s *revisionScope, projectPath, ref string, isUsage bool) error {
	projectID, err := p.processProject(ctx, s, projectPath, isUsage)
	if err != nil {
		return err
	}
	_, err = p.processRef(ctx, s, projectID, ref, isUsage)
	return err
}

func (p *PathsPlugin) processProject(ctx context.Context, s *revisionScope, projectPath string, isUsage bool) (int64, error) {
	id, found, err := p.projects.Get(projectPath, func() (int64, bool, error) {
		return s.filler.FindProject(ctx, projectPath)
	})
	if err != nil {
		return 0, err
	}

	if found {
		// 同一版本里新建的项目不再算作 "已存在"
		if _, isNew := s.newProjects[id]; isUsage && !isNew {
			s.existingProjects[id] = projectPath
			p.recordStatistic(StatProjectFound)
		}
		return id, nil
	}

	id, err = s.filler.AddProject(ctx, projectPath)
	if err != nil {
		return 0, err
	}
	p.projects.Set(projectPath, id)
	p.detector.AddPaths(projectPath)

	if isUsage {
		s.newProjects[id] = projectPath
		p.recordStatistic(StatProjectAdded)
	}
	return id, nil
}

func (p *PathsPlugin) processRef(ctx context.Context, s *revisionScope, projectID int64, ref string, isUsage bool) (int64, error) {
	key := fmt.Sprintf("%d:%s", projectID, ref)

	id, found, err := p.refs.Get(key, func() (int64, bool, error) {
		return s.filler.FindRef(ctx, projectID, ref)
	})
	if err != nil {
		return 0, err
	}

	if !found {
		id, err = s.filler.AddRefToProject(ctx, projectID, ref)
		if err != nil {
			return 0, err
		}
		p.refs.Set(key, id)
		p.recordStatistic(StatRefAdded)
	} else {
		p.recordStatistic(StatRefFound)
	}

	if isUsage {
		s.usedRefs[id] = struct{}{}
	}
	return id, nil
}

// associate 版本内所有路径处理完后，写入 版本-项目 / 版本-引用 关联
func (p *PathsPlugin) associate(ctx context.Context, s *revisionScope) error {
	// 1. 已有项目
	for _, projectID := range sortedKeys(s.existingProjects) {
		if err := p.addCommitToProject(ctx, s, s.revision, projectID); err != nil {
			return err
		}
	}

	// 2. 新项目: 回填此前没有归属的路径及其历史版本
	for _, projectID := range sortedKeys(s.newProjects) {
		backfilled, err := p.addMissingCommitsToProject(ctx, s, projectID, s.newProjects[projectID])
		if err != nil {
			return err
		}
		if !slices.Contains(backfilled, s.revision) {
			if err := p.addCommitToProject(ctx, s, s.revision, projectID); err != nil {
				return err
			}
		}
	}

	// 3. 引用
	for _, refID := range sortedKeys(s.usedRefs) {
		if err := s.filler.AddCommitToRef(ctx, s.revision, refID); err != nil {
			return err
		}
		p.recordStatistic(StatCommitAddedToRef)
	}

	return nil
}

// addMissingCommitsToProject 把根路径下无归属的路径划入新项目，并关联触及它们的所有版本
func (p *PathsPlugin) addMissingCommitsToProject(ctx context.Context, s *revisionScope, projectID int64, projectPath string) ([]types.Revision, error) {
	pathIDs, err := s.filler.MovePathsIntoProject(ctx, projectPath)
	if err != nil {
		return nil, err
	}
	if len(pathIDs) == 0 {
		return nil, nil
	}

	revisions, err := s.filler.RevisionsTouchingPaths(ctx, pathIDs)
	if err != nil {
		return nil, err
	}
	for _, r := range revisions {
		if err := p.addCommitToProject(ctx, s, r, projectID); err != nil {
			return nil, err
		}
	}
	return revisions, nil
}

func (p *PathsPlugin) addCommitToProject(ctx context.Context, s *revisionScope, revision types.Revision, projectID int64) error {
	if err := s.filler.AddCommitToProject(ctx, revision, projectID); err != nil {
		return err
	}
	p.recordStatistic(StatCommitAddedToProject)
	return nil
}

// -----------------------------------------------------------------------------
// 查询
// -----------------------------------------------------------------------------

// Find 支持的条件:
//   - ""              项目下的全部版本 (仅作为第一个条件)
//   - "action:<模式>" / "kind:<模式>"  SQL LIKE
//   - "/dir/"         子树
//   - "/dir/file"     精确路径
func (p *PathsPlugin) Find(ctx context.Context, criteria []string, projectPath string) ([]types.Revision, error) {
	if len(criteria) == 0 {
		return []types.Revision{}, nil
	}

	projectID, err := p.projectID(ctx, projectPath)
	if err != nil {
		return nil, err
	}

	base := func() *gorm.DB {
		return projectScoped(p.db.GetConn().WithContext(ctx), "commit_paths AS cpa", commitPathsRevision, projectID)
	}

	found := make(map[types.Revision]struct{})

	if criteria[0] == "" {
		if err := pluck(base(), commitPathsRevision, found); err != nil {
			return nil, err
		}
		return meta.SortedRevisions(found), nil
	}

	for _, criterion := range criteria {
		query, err := p.criterionQuery(base(), criterion)
		if err != nil {
			return nil, err
		}
		if err := pluck(query, commitPathsRevision, found); err != nil {
			return nil, err
		}
	}

	return meta.SortedRevisions(found), nil
}

func (p *PathsPlugin) criterionQuery(query *gorm.DB, criterion string) (*gorm.DB, error) {
	if field, value, ok := strings.Cut(criterion, ":"); ok {
		switch field {
		case "action":
			return query.Where("cpa.action LIKE ?", value), nil
		case "kind":
			return query.Where("cpa.kind LIKE ?", value), nil
		}
		return nil, p.unsupportedField(field)
	}

	query = query.Joins("JOIN paths p ON p.id = cpa.path_id")

	// 目录: 连同子路径
	if strings.HasSuffix(criterion, "/") {
		return query.Where("SUBSTR(p.path, 1, ?) = ?", utf8.RuneCountInString(criterion), criterion), nil
	}
	return query.Where("p.path_hash = ?", core.PathChecksum(criterion)), nil
}

// RevisionsData 返回每个版本改动的路径
func (p *PathsPlugin) RevisionsData(ctx context.Context, revisions []types.Revision) (map[types.Revision][]ChangedPath, error) {
	type row struct {
		Revision     types.Revision
		Path         string
		Kind         types.PathKind
		Action       types.Action
		CopyPath     *string
		CopyRevision *types.Revision
	}

	results := make(map[types.Revision][]ChangedPath, len(revisions))

	for _, chunk := range chunkRevisions(revisions, revisionsDataChunkSize) {
		var rows []row
		err := p.db.GetConn().WithContext(ctx).
			Table("commit_paths AS cp").
			Select("cp.revision, p1.path, cp.kind, cp.action, p2.path AS copy_path, cp.copy_revision").
			Joins("JOIN paths p1 ON p1.id = cp.path_id").
			Joins("LEFT JOIN paths p2 ON p2.id = cp.copy_path_id").
			Where("cp.revision IN ?", chunk).
			Order("cp.revision, p1.path").
			Scan(&rows).Error
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeDatabase, "failed to load revision paths")
		}

		for _, r := range rows {
			changed := ChangedPath{Path: r.Path, Kind: r.Kind, Action: r.Action}
			if r.CopyPath != nil {
				changed.CopyFromPath = *r.CopyPath
			}
			if r.CopyRevision != nil {
				changed.CopyFromRevision = *r.CopyRevision
			}
			results[r.Revision] = append(results[r.Revision], changed)
		}
	}

	err := p.assertNoMissingRevisions(revisions, func(r types.Revision) bool {
		_, ok := results[r]
		return ok
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
