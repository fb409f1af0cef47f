package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var flagSendTask bool

var sendCmd = &cobra.Command{
	Use:   "send <session> <keys...>",
	Short: "Send keys to a session",
	Long: `Send raw keys to a session, passed to tmux send-keys as is, so control
tokens such as C-c, Escape or Enter work.

With --task the arguments are joined into one command and followed by Enter.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, keys := args[0], args[1:]

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		m, err := getMultiplexer(cfg.Mux, cfg.Socket)
		if err != nil {
			return err
		}

		if flagSendTask {
			err = m.SendTask(cmd.Context(), session, strings.Join(keys, " "))
		} else {
			err = m.SendKeys(cmd.Context(), session, keys...)
		}
		if err != nil {
			return fmt.Errorf("failed to send to session %q: %w", session, err)
		}
		return nil
	},
}

func init() {
	sendCmd.Flags().BoolVar(&flagSendTask, "task", false, "send the arguments as one command followed by Enter")
	rootCmd.AddCommand(sendCmd)
}

