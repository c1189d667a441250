// Command irctunnel is a terminal IRC client that talks to an IRC gateway
// over a websocket tunnel. It also exposes the line decoder and the slash
// command synthesizer as standalone subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	debug      bool
	configPath string

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "irctunnel",
	Short: "IRC over a websocket gateway",
	Long: `irctunnel connects to an IRC network through a websocket gateway.

The gateway relays raw IRC lines plus a small control vocabulary
(HEARTBEAT, LAG=...) used to detect a dead tunnel. irctunnel reconnects
automatically with an escalating hold between attempts.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if debug {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "~/.irctunnel/config.toml", "Config file (.toml, .yaml or .yml)")

	rootCmd.AddCommand(connectCmd, parseCmd, sendCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
