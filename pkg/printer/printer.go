package printer

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"revvault/pkg/revlog"
	"revvault/pkg/types"
)

// DateLayout 表格中日期的展示格式
const DateLayout = "2006-01-02 15:04:05"

// Row 是日志表格中一个版本的全部展示数据
// 可选列的数据只有在对应 Options 打开时才会被读取
type Row struct {
	Revision types.Revision
	Author   string
	Date     time.Time
	Message  string
	Bugs     []string
	Refs     []string
	MergedBy []types.Revision
	Paths    []revlog.ChangedPath
}

// Options 控制可选列与消息截断
type Options struct {
	MessageLimit    int // 0 表示不截断
	WithDetails     bool
	WithSummary     bool
	WithRefs        bool
	WithMergeStatus bool
}

// PrintRevisions 以对齐的表格输出版本列表，顺序与 rows 一致
func PrintRevisions(w io.Writer, rows []Row, opts Options) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)

	// 1. 表头
	header := []string{"REVISION", "AUTHOR", "DATE", "BUG-ID", "MESSAGE"}
	if opts.WithSummary {
		header = append(header, "SUMMARY")
	}
	if opts.WithRefs {
		header = append(header, "REFS")
	}
	if opts.WithMergeStatus {
		header = append(header, "MERGED VIA")
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	// 2. 每个版本一行，明细行复用 MESSAGE 列保持对齐
	for _, row := range rows {
		cells := []string{
			row.Revision.String(),
			row.Author,
			formatDate(row.Date),
			strings.Join(row.Bugs, ", "),
			Truncate(row.Message, opts.MessageLimit),
		}
		if opts.WithSummary {
			cells = append(cells, Summary(row.Paths))
		}
		if opts.WithRefs {
			cells = append(cells, strings.Join(row.Refs, ", "))
		}
		if opts.WithMergeStatus {
			cells = append(cells, joinRevisions(row.MergedBy))
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))

		if opts.WithDetails {
			for _, p := range row.Paths {
				fmt.Fprintf(tw, "\t\t\t\t  %s\n", formatPath(p))
			}
		}
	}

	return tw.Flush()
}

// PrintStatistics 按插件名与统计项排序输出
func PrintStatistics(w io.Writer, stats map[string]revlog.Statistics) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "PLUGIN\tSTATISTIC\tVALUE")

	plugins := make([]string, 0, len(stats))
	for name := range stats {
		plugins = append(plugins, name)
	}
	slices.Sort(plugins)

	for _, plugin := range plugins {
		names := make([]string, 0, len(stats[plugin]))
		for name := range stats[plugin] {
			names = append(names, name)
		}
		slices.Sort(names)

		for _, name := range names {
			fmt.Fprintf(tw, "%s\t%s\t%d\n", plugin, name, stats[plugin][name])
		}
	}

	return tw.Flush()
}

// Truncate 把多行消息压成一行，超过 limit 个字符时以 "..." 结尾
func Truncate(message string, limit int) string {
	message = strings.Join(strings.Fields(message), " ")
	if limit <= 0 || utf8.RuneCountInString(message) <= limit {
		return message
	}

	const ellipsis = "..."
	if limit <= len(ellipsis) {
		return string([]rune(message)[:limit])
	}
	return string([]rune(message)[:limit-len(ellipsis)]) + ellipsis
}

// Summary 统计每种操作的路径数，例如 "A:2 M:1"，没有路径时为空串
func Summary(paths []revlog.ChangedPath) string {
	counts := make(map[types.Action]int)
	for _, p := range paths {
		counts[p.Action]++
	}

	var parts []string
	for _, action := range []types.Action{types.ActionAdd, types.ActionModify, types.ActionReplace, types.ActionDelete} {
		if n := counts[action]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s:%d", action, n))
		}
	}
	return strings.Join(parts, " ")
}

func formatPath(p revlog.ChangedPath) string {
	line := string(p.Action) + " " + p.Path
	if p.HasCopySource() {
		line += fmt.Sprintf(" (from %s:%d)", p.CopyFromPath, p.CopyFromRevision)
	}
	return line
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(DateLayout)
}

func joinRevisions(revisions []types.Revision) string {
	parts := make([]string, len(revisions))
	for i, r := range revisions {
		parts[i] = r.String()
	}
	return strings.Join(parts, ", ")
}
