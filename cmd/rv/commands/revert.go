package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var revertCmd = &cobra.Command{
	Use:   "revert [path]",
	Short: "Revert all local changes of the working copy",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if RV == nil {
			return fmt.Errorf("app not initialized")
		}

		wcPath := targetArg(args)
		fmt.Printf("↩️  Reverting %s ...\n", wcPath)
		if err := RV.Connector.Revert(cmd.Context(), wcPath, os.Stdout); err != nil {
			return err
		}

		fmt.Println("✅ Done")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(revertCmd)
}
