package main

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/base/validation-tool/internal/diff"
	"github.com/base/validation-tool/internal/script"
	"github.com/base/validation-tool/internal/signer"
	"github.com/base/validation-tool/internal/simulate"
	"github.com/base/validation-tool/internal/task"
	"github.com/base/validation-tool/internal/validation"
)

type validateFlags struct {
	req        validation.Request
	asJSON     bool
	sign       bool
	account    int
	keepOutput bool
	signer     signerFlags
}

type validateOutput struct {
	validation.Response
	Eligibility *validation.Eligibility `json:"eligibility,omitempty"`
	Comparisons []diff.ComparisonResult `json:"comparisons,omitempty"`
	Signature   *signer.Signature       `json:"signature,omitempty"`
}

func newValidateCmd(a *app) *cobra.Command {
	f := &validateFlags{}
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run an upgrade's script, simulate it and compare the result with the validation file",
		Example: `  validation-tool validate --network mainnet --upgrade 2025-01-upgrade --user-type "Base SC"
  validation-tool validate --network sepolia --upgrade 2025-01-upgrade --user-type "Base SC" --sign`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidate(cmd, a, f)
		},
	}
	cmd.Flags().StringVar(&f.req.Network, "network", "", "Network directory: mainnet, sepolia or test")
	cmd.Flags().StringVar(&f.req.Upgrade, "upgrade", "", "Upgrade directory")
	cmd.Flags().StringVar(&f.req.UserType, "user-type", "", `Signer role, e.g. "Base SC"`)
	cmd.Flags().StringVar(&f.req.Simulator, "simulator", validation.SimulatorAuto,
		fmt.Sprintf("Simulation backend: %s, %s or %s", validation.SimulatorAuto, simulate.NameTenderly, simulate.NameStateDiff))
	cmd.Flags().StringVar(&f.req.Sender, "sender", "", "Signer address passed to the script")
	cmd.Flags().BoolVar(&f.req.ExtractOnly, "extract-only", false, "Replay saved script output of --run-id instead of running the script")
	cmd.Flags().StringVar(&f.req.RunID, "run-id", "", "Run identifier naming the scratch files (random by default)")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVar(&f.sign, "sign", false, "Sign the expected hashes when nothing blocks")
	cmd.Flags().IntVar(&f.account, "account", -1, "Account index to sign with (default: ledger-id of the validation file)")
	cmd.Flags().BoolVar(&f.keepOutput, "keep-output", false, "Keep the saved script output after the run (always kept with --extract-only)")
	f.signer.register(cmd)
	_ = cmd.MarkFlagRequired("network")
	_ = cmd.MarkFlagRequired("upgrade")
	_ = cmd.MarkFlagRequired("user-type")
	return cmd
}

func runValidate(cmd *cobra.Command, a *app, f *validateFlags) error {
	ctx := cmd.Context()
	req := f.req
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}

	upgradeDir := a.cfg.UpgradeDir(req.Network, req.Upgrade)
	svc := validation.NewService(a.lggr, a.cfg,
		script.NewRunner(a.lggr, script.WithStdout(cmd.ErrOrStderr())),
		simulate.NewTenderly(a.lggr, a.cfg.Tenderly),
		simulate.NewStateDiff(a.lggr, a.cfg.StateDiff, upgradeDir),
	)
	// A replayed run keeps the output it replays.
	if !f.keepOutput && !req.ExtractOnly {
		defer func() {
			if err := svc.Cleanup(req.Network, req.Upgrade, req.RunID); err != nil {
				a.lggr.Warnw("failed to remove scratch files", "runID", req.RunID, "err", err)
			}
		}()
	}

	out := validateOutput{Response: svc.Run(ctx, req)}
	if !out.Success {
		if f.asJSON {
			_ = writeJSON(cmd.OutOrStdout(), out)
		}
		return fmt.Errorf("%w: %s", errValidationFailed, out.Error)
	}

	eligibility := validation.CheckEligibility(*out.Data)
	out.Eligibility = &eligibility
	out.Comparisons = validation.CompareAll(*out.Data)

	var signErr error
	if f.sign && eligibility.CanSign {
		out.Signature, signErr = signExpected(cmd, a, f, svc, req, out.Data.ExpectedHashes)
	}

	if f.asJSON {
		if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
			return err
		}
	} else {
		printReport(cmd.OutOrStdout(), out)
	}

	switch {
	case signErr != nil:
		return signErr
	case !eligibility.CanSign:
		return fmt.Errorf("%w: %s", errValidationFailed, eligibility.Reason)
	}
	return nil
}

func signExpected(cmd *cobra.Command, a *app, f *validateFlags, svc *validation.Service, req validation.Request, hashes task.ExpectedHashes) (*signer.Signature, error) {
	account := f.account
	if account < 0 {
		parsed, err := task.LoadFile(svc.ConfigPath(req.Network, req.Upgrade, req.UserType))
		if err != nil {
			return nil, err
		}
		account = parsed.Config.LedgerID
	}

	s, err := f.signer.build(a)
	if err != nil {
		return nil, err
	}
	sig, err := s.Sign(cmd.Context(), signer.SignRequest{
		DomainHash:   hashes.DomainHash,
		MessageHash:  hashes.MessageHash,
		AccountIndex: account,
	})
	if err != nil {
		return nil, deviceError(err)
	}
	return &sig, nil
}

func printReport(w io.Writer, out validateOutput) {
	data := out.Data
	fmt.Fprintf(w, "%s (run %s, simulator %s)\n\n", data.TaskName, data.RunID, data.Simulator)

	for _, it := range validation.Items(*data) {
		mark := "ok"
		switch {
		case it.Blocking():
			mark = "FAIL"
		case !it.Matches():
			mark = "expected difference"
		}
		fmt.Fprintf(w, "[%s] %s %s (%s) %s\n", mark, it.Kind, it.ContractName, it.ContractAddress, it.Path)
		if it.Actual == nil {
			fmt.Fprintln(w, "    missing from simulation")
			continue
		}
		if !it.Matches() {
			printEntryDiff(w, it)
		}
	}

	fmt.Fprintln(w)
	if out.Eligibility.CanSign {
		fmt.Fprintln(w, "All checks passed. Expected hashes:")
		fmt.Fprintf(w, "  Domain hash:  %s\n", data.ExpectedHashes.DomainHash)
		fmt.Fprintf(w, "  Message hash: %s\n", data.ExpectedHashes.MessageHash)
	} else {
		fmt.Fprintf(w, "Do not sign: %s\n", out.Eligibility.Reason)
	}
	if out.Signature != nil {
		fmt.Fprintf(w, "\nSigner:    %s\nSignature: %s\n", out.Signature.SignerAddress, out.Signature.Signature)
	}
}

func printEntryDiff(w io.Writer, it validation.Item) {
	e, a := it.Expected, *it.Actual
	fields := []struct{ name, expected, actual string }{
		{"dataToSign", e.DataToSign, a.DataToSign},
		{"key", e.Key, a.Key},
		{"value", e.Value, a.Value},
		{"before", e.Before, a.Before},
		{"after", e.After, a.After},
	}
	for _, fd := range fields {
		if diff.FieldsEqual(fd.expected, fd.actual) {
			continue
		}
		fmt.Fprintf(w, "    %s\n      expected: %s\n      actual:   %s\n", fd.name, fd.expected, fd.actual)
	}
}
