package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is injected at build time with -ldflags "-X github.com/timvw/pane-driver/cmd.Version=...".
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the pane-driver version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
