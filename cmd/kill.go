package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/timvw/pane-driver/internal/mux"
)

var flagKillInterrupt bool

var killCmd = &cobra.Command{
	Use:   "kill <session>",
	Short: "Terminate a session",
	Long: `Kill a session. With --interrupt, C-c is sent first.

Killing a session that does not exist is reported but is not an error.`,
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

		if flagKillInterrupt {
			if err := m.SendInterrupt(cmd.Context(), session); err != nil && !errors.Is(err, mux.ErrSessionNotFound) {
				fmt.Fprintf(os.Stderr, "warning: interrupt %s: %v\n", session, err)
			}
		}
		err = m.KillSession(cmd.Context(), session)
		switch {
		case errors.Is(err, mux.ErrSessionNotFound):
			fmt.Fprintf(os.Stderr, "session %s not found\n", session)
			return nil
		case err != nil:
			return fmt.Errorf("failed to kill session %q: %w", session, err)
		}
		return nil
	},
}

func init() {
	killCmd.Flags().BoolVar(&flagKillInterrupt, "interrupt", false, "send C-c before killing")
	rootCmd.AddCommand(killCmd)
}
