package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/timvw/pane-driver/internal/config"
	"github.com/timvw/pane-driver/internal/mux"
)

var (
	// Global flags.
	flagMux    string
	flagSocket string
	flagConfig string
)

var rootCmd = &cobra.Command{
	Use:   "pane-driver",
	Short: "Drive a command inside a tmux session and feed it queued tasks",
	Long: `pane-driver starts (or reuses) a detached tmux session, polls its pane
and hands the last non-blank line to a chain of processors. Processors
decide when to type the next queued task into the session and when the
run is finished.

When the run ends, for whatever reason, the final pane content is printed
to stdout exactly once and the session is interrupted and killed.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagMux, "mux", envOrDefault("PANE_DRIVER_MUX", ""), "terminal multiplexer: tmux (default: auto-detect)")
	rootCmd.PersistentFlags().StringVar(&flagSocket, "socket", envOrDefault("PANE_DRIVER_SOCKET", ""), "tmux socket name (-L), for an isolated server")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", envOrDefault("PANE_DRIVER_CONFIG", ""), "config file (default: .pane-driver.yaml or ~/.config/pane-driver/config.yaml)")
}

// loadConfig loads configuration and applies the global flags on top of it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.ConfigFile != "" {
		fmt.Fprintf(os.Stderr, "config: loaded %s\n", cfg.ConfigFile)
	}
	if cmd.Flags().Changed("mux") || flagMux != "" {
		cfg.Mux = flagMux
	}
	if cmd.Flags().Changed("socket") || flagSocket != "" {
		cfg.Socket = flagSocket
	}
	return cfg, nil
}

// getMultiplexer returns the configured or auto-detected multiplexer.
func getMultiplexer(name, socket string) (mux.Multiplexer, error) {
	if name != "" {
		return mux.FromName(name, socket)
	}
	return mux.Detect(socket)
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
