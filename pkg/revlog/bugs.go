package revlog

import (
	"context"
	"regexp"
	"slices"

	"revvault/pkg/meta"
	"revvault/pkg/types"

	"github.com/jmgilman/go/errors"
)

const BugsPluginName = "bugs"

const (
	StatBugAdded          = "bug_added"
	StatCommitWithoutBugs = "commit_without_bugs"
)

// BugsPlugin 从提交说明中提取 Bug 号
type BugsPlugin struct {
	pluginBase
	patterns []*regexp.Regexp
}

// NewBugsPlugin patterns 中第 1 个捕获组即 Bug ID，没有捕获组时取整个匹配
func NewBugsPlugin(db *meta.DB, patterns []string) (*BugsPlugin, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, expr := range patterns {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, errors.Wrapf(err, errors.CodeInvalidConfig, "invalid bug regexp %q", expr)
		}
		compiled = append(compiled, re)
	}

	return &BugsPlugin{
		pluginBase: newPluginBase(BugsPluginName, db, StatBugAdded, StatCommitWithoutBugs),
		patterns:   compiled,
	}, nil
}

// ExtractBugs 去重并排序
func (p *BugsPlugin) ExtractBugs(message string) []string {
	seen := make(map[string]struct{})
	for _, re := range p.patterns {
		for _, m := range re.FindAllStringSubmatch(message, -1) {
			bug := m[0]
			if len(m) > 1 {
				bug = m[1]
			}
			if bug != "" {
				seen[bug] = struct{}{}
			}
		}
	}

	bugs := make([]string, 0, len(seen))
	for bug := range seen {
		bugs = append(bugs, bug)
	}
	slices.Sort(bugs)
	return bugs
}

func (p *BugsPlugin) Parse(ctx context.Context, entry LogEntry) error {
	return p.parse(ctx, entry.Revision, func(f *meta.Filler) error {
		bugs := p.ExtractBugs(entry.Message)
		if len(bugs) == 0 {
			p.recordStatistic(StatCommitWithoutBugs)
			return nil
		}

		if err := f.AddBugsToCommit(ctx, entry.Revision, bugs); err != nil {
			return err
		}
		for range bugs {
			p.recordStatistic(StatBugAdded)
		}
		return nil
	})
}

// Find 条件即 Bug ID 列表
func (p *BugsPlugin) Find(ctx context.Context, criteria []string, projectPath string) ([]types.Revision, error) {
	if len(criteria) == 0 {
		return []types.Revision{}, nil
	}

	projectID, err := p.projectID(ctx, projectPath)
	if err != nil {
		return nil, err
	}

	found := make(map[types.Revision]struct{})
	query := projectScoped(p.db.GetConn().WithContext(ctx), "commit_bugs AS cb", "cb.revision", projectID).
		Where("cb.bug IN ?", criteria)
	if err := pluck(query, "cb.revision", found); err != nil {
		return nil, err
	}

	return meta.SortedRevisions(found), nil
}

// RevisionsData 返回每个版本关联的 Bug，没有 Bug 的版本为空列表
func (p *BugsPlugin) RevisionsData(ctx context.Context, revisions []types.Revision) (map[types.Revision][]string, error) {
	results := make(map[types.Revision][]string, len(revisions))
	for _, r := range revisions {
		results[r] = []string{}
	}

	for _, chunk := range chunkRevisions(revisions, revisionsDataChunkSize) {
		var rows []meta.CommitBug
		err := p.db.GetConn().WithContext(ctx).
			Where("revision IN ?", chunk).
			Order("revision, bug").
			Find(&rows).Error
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeDatabase, "failed to load bugs")
		}
		for _, r := range rows {
			results[r.Revision] = append(results[r.Revision], r.Bug)
		}
	}

	return results, nil
}
