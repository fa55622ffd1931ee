package app

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"revvault/pkg/printer"
	"revvault/pkg/revlog"
	"revvault/pkg/types"

	"github.com/jmgilman/go/errors"
)

// LogQuery 是 log 命令的筛选条件
type LogQuery struct {
	Revisions []string // 版本或版本范围，例如 "5", "10-12"
	Bugs      []string
	Refs      []string
	MergedBy  []string // 合并提交的版本或版本范围

	Merges    bool // 只要合并提交
	NoMerges  bool // 排除合并提交
	Merged    bool // 只要被合并过的版本
	NotMerged bool // 排除被合并过的版本

	// MaxCount 只在没有显式指定 Revisions/Bugs 时生效，0 表示不限
	MaxCount int
}

// Selection 是筛选结果，Revisions 降序且已按 MaxCount 截断
type Selection struct {
	Revisions []types.Revision
	Total     int
}

// SelectRevisions 按 log 命令的规则筛选版本:
// 1. 目标路径 (或 --refs) 决定候选集
// 2. --revisions / --bugs 与候选集求交
// 3. --merged-by 直接替换候选集
// 4. 合并相关的开关依次求交或求差
func (r *Repository) SelectRevisions(ctx context.Context, q LogQuery) (*Selection, error) {
	bugs := SplitList(q.Bugs)
	revisionItems := SplitList(q.Revisions)
	if len(bugs) > 0 && len(revisionItems) > 0 {
		return nil, errors.New(errors.CodeInvalidInput, `The "--bugs" and "--revisions" options are mutually exclusive.`)
	}

	candidates, err := r.revisionsByPath(ctx, SplitList(q.Refs))
	if err != nil {
		return nil, err
	}

	var missing []types.Revision
	switch {
	case len(revisionItems) > 0:
		requested, err := types.ExpandRevisionRanges(revisionItems)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidInput, "invalid --revisions")
		}
		candidates = intersect(candidates, requested)
		missing = subtract(requested, candidates)

	case len(bugs) > 0:
		fromBugs, err := r.Bugs.Find(ctx, bugs, r.ProjectPath)
		if err != nil {
			return nil, err
		}
		candidates = intersect(candidates, fromBugs)
	}

	if mergedBy := SplitList(q.MergedBy); len(mergedBy) > 0 {
		mergeRevisions, err := types.ExpandRevisionRanges(mergedBy)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidInput, "invalid --merged-by")
		}
		candidates, err = r.Merges.Find(ctx, revisionStrings(mergeRevisions), r.ProjectPath)
		if err != nil {
			return nil, err
		}
	}

	if candidates, err = r.applyMergeFilter(ctx, candidates, revlog.CriterionAllMerges, q.Merges, q.NoMerges); err != nil {
		return nil, err
	}
	if candidates, err = r.applyMergeFilter(ctx, candidates, revlog.CriterionAllMerged, q.Merged, q.NotMerged); err != nil {
		return nil, err
	}

	if len(missing) > 0 {
		return nil, r.missingRevisionsError(missing, SplitList(q.Refs))
	}
	if len(candidates) == 0 {
		return nil, errors.New(errors.CodeNotFound, "No matching revisions found.")
	}

	slices.Sort(candidates)
	slices.Reverse(candidates)

	selection := &Selection{Revisions: candidates, Total: len(candidates)}
	if len(bugs) == 0 && len(revisionItems) == 0 && q.MaxCount > 0 && len(candidates) > q.MaxCount {
		selection.Revisions = candidates[:q.MaxCount]
	}
	return selection, nil
}

// revisionsByPath 目标正好是引用根目录时按引用查，否则按路径子树查
func (r *Repository) revisionsByPath(ctx context.Context, refNames []string) ([]types.Revision, error) {
	if len(refNames) == 0 {
		if r.IsRefRoot() {
			return r.Refs.Find(ctx, []string{r.RefName}, r.ProjectPath)
		}
		return r.Paths.Find(ctx, []string{r.RelativePath + "/"}, r.ProjectPath)
	}

	known, err := r.Refs.AllRefs(ctx, r.ProjectPath)
	if err != nil {
		return nil, err
	}

	var unknown []string
	for _, name := range refNames {
		if !slices.Contains(known, name) {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return nil, errors.Newf(errors.CodeInvalidInput, `The following refs are unknown: "%s".`, strings.Join(unknown, `", "`))
	}

	return r.Refs.Find(ctx, refNames, r.ProjectPath)
}

// applyMergeFilter only 求交，exclude 求差，两者都没打开时原样返回
func (r *Repository) applyMergeFilter(ctx context.Context, candidates []types.Revision, criterion string, only, exclude bool) ([]types.Revision, error) {
	if !only && !exclude {
		return candidates, nil
	}

	found, err := r.Merges.Find(ctx, []string{criterion}, r.ProjectPath)
	if err != nil {
		return nil, err
	}
	if only {
		return intersect(candidates, found), nil
	}
	return subtract(candidates, found), nil
}

func (r *Repository) missingRevisionsError(missing []types.Revision, refNames []string) error {
	source := fmt.Sprintf("at %q url", r.URL)
	if len(refNames) > 0 {
		source = fmt.Sprintf("in %q ref(-s)", strings.Join(refNames, ", "))
	}
	return errors.Newf(errors.CodeNotFound, "The %s revision(-s) not found %s.", strings.Join(revisionStrings(missing), ", "), source)
}

// Rows 为输出加载每个版本的数据，顺序与 revisions 一致
func (r *Repository) Rows(ctx context.Context, revisions []types.Revision, opts printer.Options) ([]printer.Row, error) {
	commits, err := r.Summary.RevisionsData(ctx, revisions)
	if err != nil {
		return nil, err
	}
	bugs, err := r.Bugs.RevisionsData(ctx, revisions)
	if err != nil {
		return nil, err
	}

	var (
		paths    map[types.Revision][]revlog.ChangedPath
		refNames map[types.Revision][]string
		mergedBy map[types.Revision][]types.Revision
	)
	if opts.WithDetails || opts.WithSummary {
		if paths, err = r.Paths.RevisionsData(ctx, revisions); err != nil {
			return nil, err
		}
	}
	if opts.WithRefs {
		if refNames, err = r.Refs.RevisionsData(ctx, revisions); err != nil {
			return nil, err
		}
	}
	if opts.WithMergeStatus {
		if mergedBy, err = r.Merges.RevisionsData(ctx, revisions); err != nil {
			return nil, err
		}
	}

	rows := make([]printer.Row, 0, len(revisions))
	for _, revision := range revisions {
		c := commits[revision]
		rows = append(rows, printer.Row{
			Revision: revision,
			Author:   c.Author,
			Date:     c.Date,
			Message:  c.Message,
			Bugs:     bugs[revision],
			Refs:     refNames[revision],
			MergedBy: mergedBy[revision],
			Paths:    paths[revision],
		})
	}
	return rows, nil
}

// SplitList 把 "a, b" 形式的多个参数拆成列表，去掉空项
func SplitList(values []string) []string {
	var result []string
	for _, value := range values {
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				result = append(result, item)
			}
		}
	}
	return result
}

func intersect(a, b []types.Revision) []types.Revision {
	result := []types.Revision{}
	for _, r := range a {
		if slices.Contains(b, r) {
			result = append(result, r)
		}
	}
	return result
}

func subtract(a, b []types.Revision) []types.Revision {
	result := []types.Revision{}
	for _, r := range a {
		if !slices.Contains(b, r) {
			result = append(result, r)
		}
	}
	return result
}

func revisionStrings(revisions []types.Revision) []string {
	result := make([]string, len(revisions))
	for i, r := range revisions {
		result[i] = r.String()
	}
	return result
}
