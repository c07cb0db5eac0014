package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/base/validation-tool/internal/config"
	"github.com/base/validation-tool/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds what every subcommand shares. It is filled in before a
// subcommand runs.
type app struct {
	configFile string
	logLevel   string

	cfg  *config.Config
	lggr logger.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "validation-tool",
		Short: "Validate upgrade transactions against their expected state changes before signing",
		Long: `Runs an upgrade's task script, simulates the resulting transaction and compares
the storage it writes and the EIP-712 data it asks to sign with the validation
file committed for each signer role.`,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.lggr != nil {
				_ = a.lggr.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "Runtime config file (yaml, toml or json)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level, overrides LOG_LEVEL")

	root.AddCommand(
		newValidateCmd(a),
		newCompareCmd(),
		newCheckConfigCmd(),
		newConfigsCmd(a),
		newExtractCmd(),
		newLedgerCmd(a),
		newSimulateCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	level := cfg.LogLevel
	if a.logLevel != "" {
		level = a.logLevel
	}
	lggr, err := logger.New(level)
	if err != nil {
		return err
	}
	a.cfg, a.lggr = cfg, lggr
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}
