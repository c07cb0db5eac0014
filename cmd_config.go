package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/base/validation-tool/internal/diff"
	"github.com/base/validation-tool/internal/extract"
	"github.com/base/validation-tool/internal/task"
)

var errValidationFailed = errors.New("validation failed")

func newCompareCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "compare <expected.json> <actual.json>",
		Short: "Compare one expected state override or state change with an actual one",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result diff.ComparisonResult
			switch diff.Kind(kind) {
			case diff.KindOverride:
				var expected, actual task.StateOverride
				if err := readPair(args, &expected, &actual); err != nil {
					return err
				}
				result = diff.CompareStateOverride(expected, actual)
			case diff.KindChange:
				var expected, actual task.StateChange
				if err := readPair(args, &expected, &actual); err != nil {
					return err
				}
				result = diff.CompareStateChange(expected, actual)
			default:
				return fmt.Errorf("unknown comparison kind %q, want %q or %q", kind, diff.KindOverride, diff.KindChange)
			}

			if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if result.Status != diff.StatusMatch {
				return fmt.Errorf("%w: %s", errValidationFailed, result.Summary)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(diff.KindOverride), "Record kind: override or change")
	return cmd
}

func readPair(paths []string, expected, actual any) error {
	if err := readJSONFile(paths[0], expected); err != nil {
		return err
	}
	return readJSONFile(paths[1], actual)
}

func newCheckConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config <validation.json>",
		Short: "Check a validation file against the schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := task.LoadFile(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, task.ValidationSummary(parsed.Result))
			if !parsed.Result.Success {
				return errValidationFailed
			}
			for _, issue := range task.Completeness(parsed.Config) {
				fmt.Fprintf(out, "warning: %s\n", issue)
			}
			return nil
		},
	}
}

func newConfigsCmd(a *app) *cobra.Command {
	var network, upgrade string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "configs",
		Short: "List the signer roles that have a validation file for an upgrade",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir := filepath.Join(a.cfg.UpgradeDir(network, upgrade), "validations")
			options, err := task.ListOptions(dir)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), options)
			}
			if len(options) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no validation files in %s\n", dir)
				return nil
			}
			for _, o := range options {
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %-24s ledger-id %d\n", o.DisplayName, o.FileName, o.LedgerID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&network, "network", "", "Network directory, e.g. mainnet")
	cmd.Flags().StringVar(&upgrade, "upgrade", "", "Upgrade directory")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	_ = cmd.MarkFlagRequired("network")
	_ = cmd.MarkFlagRequired("upgrade")
	return cmd
}

func newExtractCmd() *cobra.Command {
	var summary bool
	cmd := &cobra.Command{
		Use:   "extract <script-output.txt>",
		Short: "Extract simulation link, hashes and signing data from saved script output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			data := extract.Extract(string(output))
			if summary {
				_, err := fmt.Fprint(cmd.OutOrStdout(), data.Summary())
				return err
			}
			return writeJSON(cmd.OutOrStdout(), data)
		},
	}
	cmd.Flags().BoolVar(&summary, "summary", false, "Print a short human readable summary instead of JSON")
	return cmd
}
