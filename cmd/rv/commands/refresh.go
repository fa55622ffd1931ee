package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh [path-or-url]",
	Short: "Index new revisions of the repository",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if RV == nil {
			return fmt.Errorf("app not initialized")
		}

		repo, err := RV.OpenRepository(ctx, targetArg(args))
		if err != nil {
			return err
		}
		defer repo.Close()

		fmt.Printf("🔄 Refreshing %s ...\n", repo.RootURL)
		n, err := repo.Log.Refresh(ctx)
		if err != nil {
			return err
		}

		last, err := repo.Log.LastRevision(ctx)
		if err != nil {
			return err
		}

		if n == 0 {
			fmt.Printf("✅ Already up to date at r%d\n", last)
			return nil
		}
		fmt.Printf("✅ Indexed %d revision(s), now at r%d\n", n, last)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
