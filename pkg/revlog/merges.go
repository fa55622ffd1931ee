package revlog

import (
	"context"
	"strconv"

	"revvault/pkg/meta"
	"revvault/pkg/types"

	"github.com/jmgilman/go/errors"
)

const MergesPluginName = "merges"

const (
	StatMergeCommit  = "merge_commit"
	StatMergedCommit = "merged_commit"
)

// merges 插件的特殊条件
const (
	CriterionAllMerges = "all_merges"
	CriterionAllMerged = "all_merged"
)

// MergesPlugin 记录合并提交带进来的版本 (需要 --use-merge-history)
type MergesPlugin struct {
	pluginBase
}

func NewMergesPlugin(db *meta.DB) *MergesPlugin {
	return &MergesPlugin{pluginBase: newPluginBase(MergesPluginName, db, StatMergeCommit, StatMergedCommit)}
}

func (p *MergesPlugin) RevisionQueryFlags() []string { return []string{FlagMergeHistory} }

func (p *MergesPlugin) Parse(ctx context.Context, entry LogEntry) error {
	return p.parse(ctx, entry.Revision, func(f *meta.Filler) error {
		if len(entry.Merged) == 0 {
			return nil
		}

		merged := make([]types.Revision, 0, len(entry.Merged))
		for _, m := range entry.Merged {
			merged = append(merged, m.Revision)
		}

		if err := f.AddMergeCommit(ctx, entry.Revision, merged); err != nil {
			return err
		}
		p.recordStatistic(StatMergeCommit)
		for range merged {
			p.recordStatistic(StatMergedCommit)
		}
		return nil
	})
}

// Find 条件:
//   - "all_merges"  项目内全部合并提交
//   - "all_merged"  项目内被合并过的版本
//   - "<版本号>"    该合并提交带进来的版本
func (p *MergesPlugin) Find(ctx context.Context, criteria []string, projectPath string) ([]types.Revision, error) {
	if len(criteria) == 0 {
		return []types.Revision{}, nil
	}

	projectID, err := p.projectID(ctx, projectPath)
	if err != nil {
		return nil, err
	}

	found := make(map[types.Revision]struct{})
	var mergeRevisions []types.Revision

	for _, criterion := range criteria {
		switch criterion {
		case CriterionAllMerges, CriterionAllMerged:
			column := "m.merge_revision"
			if criterion == CriterionAllMerged {
				column = "m.merged_revision"
			}
			query := projectScoped(p.db.GetConn().WithContext(ctx), "merges AS m", "m.merge_revision", projectID)
			if err := pluck(query, column, found); err != nil {
				return nil, err
			}

		default:
			n, err := strconv.ParseInt(criterion, 10, 64)
			if err != nil || n < 0 {
				return nil, errors.Newf(errors.CodeInvalidInput, "The %q is not a revision number.", criterion)
			}
			mergeRevisions = append(mergeRevisions, types.Revision(n))
		}
	}

	if len(mergeRevisions) > 0 {
		query := projectScoped(p.db.GetConn().WithContext(ctx), "merges AS m", "m.merge_revision", projectID).
			Where("m.merge_revision IN ?", mergeRevisions)
		if err := pluck(query, "m.merged_revision", found); err != nil {
			return nil, err
		}
	}

	return meta.SortedRevisions(found), nil
}

// RevisionsData 返回每个版本被哪些合并提交带入 (merged-by)
func (p *MergesPlugin) RevisionsData(ctx context.Context, revisions []types.Revision) (map[types.Revision][]types.Revision, error) {
	results := make(map[types.Revision][]types.Revision, len(revisions))
	for _, r := range revisions {
		results[r] = []types.Revision{}
	}

	for _, chunk := range chunkRevisions(revisions, revisionsDataChunkSize) {
		var rows []meta.Merge
		err := p.db.GetConn().WithContext(ctx).
			Where("merged_revision IN ?", chunk).
			Order("merged_revision, merge_revision").
			Find(&rows).Error
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeDatabase, "failed to load merges")
		}
		for _, r := range rows {
			results[r.MergedRevision] = append(results[r.MergedRevision], r.MergeRevision)
		}
	}

	return results, nil
}
