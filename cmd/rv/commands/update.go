package commands

import (
	"fmt"
	"os"

	"revvault/pkg/types"

	"github.com/spf13/cobra"
)

var (
	updateRevision        int64
	updateIgnoreExternals bool
)

var updateCmd = &cobra.Command{
	Use:   "update [path]",
	Short: "Update the working copy",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if RV == nil {
			return fmt.Errorf("app not initialized")
		}
		if updateRevision < 0 {
			return fmt.Errorf("invalid revision %d", updateRevision)
		}

		wcPath := targetArg(args)
		fmt.Printf("⬇️  Updating %s ...\n", wcPath)
		if err := RV.Connector.Update(cmd.Context(), wcPath, types.Revision(updateRevision), updateIgnoreExternals, os.Stdout); err != nil {
			return err
		}

		fmt.Println("✅ Done")
		return nil
	},
}

func init() {
	updateCmd.Flags().Int64VarP(&updateRevision, "revision", "r", 0, "Update to this revision (default HEAD)")
	updateCmd.Flags().BoolVar(&updateIgnoreExternals, "ignore-externals", false, "Skip externals definitions")
	rootCmd.AddCommand(updateCmd)
}
