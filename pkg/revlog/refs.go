package revlog

import (
	"context"

	"revvault/pkg/meta"
	"revvault/pkg/types"

	"github.com/jmgilman/go/errors"
)

const RefsPluginName = "refs"

// RefsPlugin 只负责查询，数据由 paths 插件写入
type RefsPlugin struct {
	pluginBase
	paths *PathsPlugin
}

func NewRefsPlugin(db *meta.DB, paths *PathsPlugin) *RefsPlugin {
	return &RefsPlugin{pluginBase: newPluginBase(RefsPluginName, db), paths: paths}
}

// Parse 无事可做
func (p *RefsPlugin) Parse(ctx context.Context, entry LogEntry) error { return nil }

// LastRevision 与 paths 插件一致
func (p *RefsPlugin) LastRevision(ctx context.Context) (types.Revision, error) {
	return p.paths.LastRevision(ctx)
}

// Find 条件即引用名，例如 "trunk"、"branches/x"
func (p *RefsPlugin) Find(ctx context.Context, criteria []string, projectPath string) ([]types.Revision, error) {
	if len(criteria) == 0 {
		return []types.Revision{}, nil
	}

	projectID, err := p.projectID(ctx, projectPath)
	if err != nil {
		return nil, err
	}

	found := make(map[types.Revision]struct{})
	query := p.db.GetConn().WithContext(ctx).
		Table("commit_refs AS cr").
		Joins("JOIN project_refs pr ON pr.id = cr.ref_id").
		Where("pr.project_id = ? AND pr.name IN ?", projectID, criteria)
	if err := pluck(query, "cr.revision", found); err != nil {
		return nil, err
	}

	return meta.SortedRevisions(found), nil
}

// AllRefs 项目下全部引用名，按名称排序
func (p *RefsPlugin) AllRefs(ctx context.Context, projectPath string) ([]string, error) {
	projectID, err := p.projectID(ctx, projectPath)
	if err != nil {
		return nil, err
	}

	var names []string
	err = p.db.GetConn().WithContext(ctx).Model(&meta.ProjectRef{}).
		Where("project_id = ?", projectID).
		Order("name").
		Pluck("name", &names).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabase, "failed to list refs")
	}
	return names, nil
}

// RevisionsData 返回每个版本涉及的引用名，没有引用的版本为空列表
func (p *RefsPlugin) RevisionsData(ctx context.Context, revisions []types.Revision) (map[types.Revision][]string, error) {
	results := make(map[types.Revision][]string, len(revisions))
	for _, r := range revisions {
		results[r] = []string{}
	}

	type row struct {
		Revision types.Revision
		Name     string
	}

	for _, chunk := range chunkRevisions(revisions, revisionsDataChunkSize) {
		var rows []row
		err := p.db.GetConn().WithContext(ctx).
			Table("commit_refs AS cr").
			Select("cr.revision AS revision, pr.name AS name").
			Joins("JOIN project_refs pr ON pr.id = cr.ref_id").
			Where("cr.revision IN ?", chunk).
			Order("cr.revision, pr.name").
			Scan(&rows).Error
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeDatabase, "failed to load refs")
		}
		for _, r := range rows {
			results[r.Revision] = append(results[r.Revision], r.Name)
		}
	}

	return results, nil
}
