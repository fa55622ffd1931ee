package commands

import (
	"fmt"
	"os"

	"revvault/pkg/printer"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats [path-or-url]",
	Short: "Show statistics of the last index refresh",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		repo, err := openRepository(ctx, args)
		if err != nil {
			return err
		}
		defer repo.Close()

		last, err := repo.Log.LastRevision(ctx)
		if err != nil {
			return err
		}
		stats, err := repo.Log.StoredStatistics(ctx)
		if err != nil {
			return err
		}

		fmt.Printf(" * %s indexed up to r%d\n", repo.RootURL, last)
		for _, p := range repo.Log.Plugins() {
			pluginLast, err := p.LastRevision(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("   - %s: r%d\n", p.Name(), pluginLast)
		}
		fmt.Println()

		return printer.PrintStatistics(os.Stdout, stats)
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
