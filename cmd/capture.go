package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var flagCaptureLines int

var captureCmd = &cobra.Command{
	Use:   "capture <session>",
	Short: "Print the recent content of a session's pane",
	Long: `Capture the last --lines lines of a session's active pane (scrollback
included) and print them to stdout.

This is pure transport: the content is not interpreted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session := args[0]

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		m, err := getMultiplexer(cfg.Mux, cfg.Socket)
		if err != nil {
			return err
		}

		lines := cfg.CaptureLines
		if cmd.Flags().Changed("lines") {
			lines = flagCaptureLines
		}
		content, err := m.CapturePane(cmd.Context(), session, lines)
		if err != nil {
			return fmt.Errorf("failed to capture session %q: %w", session, err)
		}

		fmt.Fprint(os.Stdout, content)
		return nil
	},
}

func init() {
	captureCmd.Flags().IntVar(&flagCaptureLines, "lines", 100, "how many lines back to capture")
	rootCmd.AddCommand(captureCmd)
}
