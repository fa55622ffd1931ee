package revlog

import (
	"context"
	"strings"

	"revvault/pkg/meta"
	"revvault/pkg/types"

	"github.com/jmgilman/go/errors"
)

const SummaryPluginName = "summary"

const StatCommitAdded = "commit_added"

// SummaryPlugin 保存提交的作者、时间与说明
type SummaryPlugin struct {
	pluginBase
}

func NewSummaryPlugin(db *meta.DB) *SummaryPlugin {
	return &SummaryPlugin{pluginBase: newPluginBase(SummaryPluginName, db, StatCommitAdded)}
}

func (p *SummaryPlugin) Parse(ctx context.Context, entry LogEntry) error {
	return p.parse(ctx, entry.Revision, func(f *meta.Filler) error {
		err := f.AddCommit(ctx, meta.Commit{
			Revision: entry.Revision,
			Author:   entry.Author,
			Date:     entry.Date.UTC(),
			Message:  entry.Message,
		})
		if err != nil {
			return err
		}
		p.recordStatistic(StatCommitAdded)
		return nil
	})
}

// Find 支持 "author:<作者>" (精确) 与 "message:<片段>" (包含)
func (p *SummaryPlugin) Find(ctx context.Context, criteria []string, projectPath string) ([]types.Revision, error) {
	if len(criteria) == 0 {
		return []types.Revision{}, nil
	}

	projectID, err := p.projectID(ctx, projectPath)
	if err != nil {
		return nil, err
	}

	found := make(map[types.Revision]struct{})
	for _, criterion := range criteria {
		field, value, ok := strings.Cut(criterion, ":")
		if !ok {
			return nil, errors.Newf(errors.CodeInvalidInput, "Each criterion of %q plugin must be in \"field:value\" format.", p.name)
		}

		query := projectScoped(p.db.GetConn().WithContext(ctx), "commits AS c", "c.revision", projectID)

		switch field {
		case "author":
			query = query.Where("c.author = ?", value)
		case "message":
			query = query.Where("c.message LIKE ?", "%"+value+"%")
		default:
			return nil, p.unsupportedField(field)
		}

		if err := pluck(query, "c.revision", found); err != nil {
			return nil, err
		}
	}

	return meta.SortedRevisions(found), nil
}

// RevisionsData 返回每个版本的提交信息
func (p *SummaryPlugin) RevisionsData(ctx context.Context, revisions []types.Revision) (map[types.Revision]meta.Commit, error) {
	results := make(map[types.Revision]meta.Commit, len(revisions))

	for _, chunk := range chunkRevisions(revisions, revisionsDataChunkSize) {
		var rows []meta.Commit
		if err := p.db.GetConn().WithContext(ctx).Where("revision IN ?", chunk).Find(&rows).Error; err != nil {
			return nil, errors.Wrap(err, errors.CodeDatabase, "failed to load commits")
		}
		for _, r := range rows {
			results[r.Revision] = r
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
