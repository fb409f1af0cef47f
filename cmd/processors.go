package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/timvw/pane-driver/internal/processor"
)

var processorsCmd = &cobra.Command{
	Use:   "processors",
	Short: "List available processors",
	Long: `List the processor names accepted by --processor and the config file.

Each line is a name that can be passed as --processor name[:key=value,...].`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range processor.NewRegistry().Names() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(processorsCmd)
}
