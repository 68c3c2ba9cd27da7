// Package main implements the annopipe CLI, the composition root that wires
// config, the component registries, and the orchestrator into a runnable
// program.
//
// # File Index
//
//   - main.go       - entry point, rootCmd, global flags, init()
//   - run.go        - runCmd: one-shot text annotation over stdin/a file
//   - serve.go      - serveCmd: long-running HTTP annotation endpoint
//   - components.go - componentsCmd: list/recommend subcommands over the hot-swap manager and optimizer
//   - wiring.go      - buildApp(): registry construction shared by run/serve
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"annopipe/internal/logging"
)

var (
	verbose    bool
	configPath string
	workspace  string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "annopipe",
	Short: "annopipe - domain-adaptive text annotation pipeline",
	Long: `annopipe composes an NER ensemble, knowledge-base enrichment, and a
structured pattern matcher into a single bounded-deadline annotation pass
over text, with hot-swappable components and a trust-gated registration
path for each.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		}
		if err := logging.Initialize(ws); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "annopipe.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default: current)")

	rootCmd.AddCommand(runCmd, serveCmd, componentsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
