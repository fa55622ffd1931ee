package commands

import (
	"fmt"
	"os"

	"revvault/pkg/app"
	"revvault/pkg/printer"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	logQuery   app.LogQuery
	logOptions printer.Options
)

var logCmd = &cobra.Command{
	Use:   "log [path-or-url]",
	Short: "Show revisions of a working copy or URL",
	Long: `Display indexed revisions affecting the given working copy (or URL).
The revision log is refreshed before querying.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// 1. 未显式指定时使用配置里的默认值
		query := logQuery
		if !cmd.Flags().Changed("max-count") {
			query.MaxCount = viper.GetInt("log.limit")
		}
		opts := logOptions
		opts.MessageLimit = viper.GetInt("log.message-limit")

		repo, err := openRepository(ctx, args)
		if err != nil {
			return err
		}
		defer repo.Close()

		// 2. 筛选
		selection, err := repo.SelectRevisions(ctx, query)
		if err != nil {
			return err
		}

		// 3. 输出
		if len(selection.Revisions) == selection.Total {
			fmt.Printf(" * Showing %d revision(-s) in %s:\n", selection.Total, repo.Identifier())
		} else {
			fmt.Printf(" * Showing %d of %d revision(-s) in %s:\n", len(selection.Revisions), selection.Total, repo.Identifier())
		}

		rows, err := repo.Rows(ctx, selection.Revisions, opts)
		if err != nil {
			return err
		}
		return printer.PrintRevisions(os.Stdout, rows, opts)
	},
}

func init() {
	f := logCmd.Flags()

	f.StringSliceVarP(&logQuery.Revisions, "revisions", "r", nil, "List of revision(-s) and/or revision range(-s), e.g. 53324, 1224-4433")
	f.StringSliceVarP(&logQuery.Bugs, "bugs", "b", nil, "List of bug(-s), e.g. JRA-1234, 43644")
	f.StringSliceVar(&logQuery.Refs, "refs", nil, "List of refs, e.g. trunk, branches/branch-name, tags/tag-name")
	f.BoolVar(&logQuery.Merges, "merges", false, "Show merge revisions only")
	f.BoolVar(&logQuery.NoMerges, "no-merges", false, "Hide merge revisions")
	f.BoolVar(&logQuery.Merged, "merged", false, "Show only revisions that were merged at least once")
	f.BoolVar(&logQuery.NotMerged, "not-merged", false, "Show only revisions that were not merged")
	f.StringSliceVar(&logQuery.MergedBy, "merged-by", nil, "Show revisions merged by list of revision(-s) and/or revision range(-s)")
	f.IntVar(&logQuery.MaxCount, "max-count", 0, "Limit the number of revisions to output (default log.limit)")

	f.BoolVarP(&logOptions.WithDetails, "with-details", "d", false, "Show paths affected by each revision")
	f.BoolVarP(&logOptions.WithSummary, "with-summary", "s", false, "Show number of added/changed/removed paths")
	f.BoolVar(&logOptions.WithRefs, "with-refs", false, "Show revision refs")
	f.BoolVar(&logOptions.WithMergeStatus, "with-merge-status", false, "Show merge revisions affecting each revision")

	logCmd.MarkFlagsMutuallyExclusive("merges", "no-merges")
	logCmd.MarkFlagsMutuallyExclusive("merged", "not-merged")

	rootCmd.AddCommand(logCmd)
}
