package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"

	"github.com/base/validation-tool/internal/evm"
	"github.com/base/validation-tool/internal/extract"
	"github.com/base/validation-tool/internal/script"
	"github.com/base/validation-tool/internal/template"
	"github.com/base/validation-tool/internal/task"
)

const (
	formatJSON     = "json"
	formatMarkdown = "markdown"
	formatConfig   = "config"
)

type simulateFlags struct {
	rpc          string
	format       string
	output       string
	useExtracted bool

	signingData    string
	sender         string
	network        string
	contract       string
	stateOverrides string
	rawInput       string
	tenderlyLink   string

	taskConfig string
	workdir    string
}

func newSimulateCmd(a *app) *cobra.Command {
	f := &simulateFlags{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Execute the task transaction on a local fork and print its state diff",
		Long: `Forks the chain behind --rpc at the latest block, applies the simulation link's
storage overrides and executes the call the task script prepared.

With --use-extracted the call comes from flags (as passed by the state-diff
simulation backend). Otherwise the task script of --task-config is run in
--workdir and its output is extracted first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSimulate(cmd, a, f)
		},
	}
	cmd.Flags().StringVar(&f.rpc, "rpc", "", "RPC URL of the chain to fork")
	cmd.Flags().StringVar(&f.format, "format", formatMarkdown, "Output format: json, markdown or config")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Write the output to this file instead of stdout")
	cmd.Flags().BoolVar(&f.useExtracted, "use-extracted", false, "Take the call from flags instead of running the task script")
	cmd.Flags().StringVar(&f.signingData, "signing-data", "", "EIP-712 data to sign, 0x1901 || domain hash || message hash")
	cmd.Flags().StringVar(&f.sender, "sender", "", "Caller of the simulated transaction")
	cmd.Flags().StringVar(&f.network, "network", "", "Chain ID the call was prepared for")
	cmd.Flags().StringVar(&f.contract, "contract", "", "Target of the simulated transaction")
	cmd.Flags().StringVar(&f.stateOverrides, "state-overrides", "", "Storage overrides as carried by the simulation link")
	cmd.Flags().StringVar(&f.rawInput, "raw-input", "", "Calldata of the simulated transaction")
	cmd.Flags().StringVar(&f.tenderlyLink, "tenderly-link", "", "Simulation link; fills in whatever the other flags leave out")
	cmd.Flags().StringVar(&f.taskConfig, "task-config", "", "Validation file naming the script to run")
	cmd.Flags().StringVar(&f.workdir, "workdir", ".", "Directory the task script runs in")
	_ = cmd.MarkFlagRequired("rpc")
	return cmd
}

func runSimulate(cmd *cobra.Command, a *app, f *simulateFlags) error {
	ctx := cmd.Context()
	switch f.format {
	case formatJSON, formatMarkdown, formatConfig:
	default:
		return fmt.Errorf("unknown format %q", f.format)
	}

	var (
		extracted extract.Data
		info      template.TaskInfo
		err       error
	)
	if f.useExtracted {
		extracted = f.extractedFromFlags()
	} else {
		extracted, info, err = f.runScript(ctx, a)
		if err != nil {
			return err
		}
	}

	link, signing := extracted.SimulationLink, extracted.SigningData
	if link == nil {
		return fmt.Errorf("no simulation link: pass --tenderly-link or --contract and --raw-input")
	}
	if signing == nil {
		return fmt.Errorf("no signing data: pass --signing-data")
	}
	domainHash, messageHash, err := signing.Hashes()
	if err != nil {
		return err
	}
	if !common.IsHexAddress(link.ContractAddress) || !common.IsHexAddress(link.From) {
		return fmt.Errorf("invalid contract %q or sender %q", link.ContractAddress, link.From)
	}

	linkOverrides, err := extract.DecodeStateOverrides(link.StateOverrides)
	if err != nil {
		return err
	}
	overrides, err := evm.OverridesFromLink(linkOverrides)
	if err != nil {
		return err
	}

	client, err := ethclient.DialContext(ctx, f.rpc)
	if err != nil {
		return fmt.Errorf("failed to connect to the Ethereum client: %w", err)
	}
	defer client.Close()

	res, err := evm.Run(ctx, a.lggr, client, evm.Call{
		From:      common.HexToAddress(link.From),
		To:        common.HexToAddress(link.ContractAddress),
		Data:      link.Input(),
		Overrides: overrides,
	})
	if err != nil {
		return err
	}
	if err := checkNetwork(link.Network, res.ChainID.String()); err != nil {
		return err
	}

	reg, err := template.LoadRegistry(nil)
	if err != nil {
		return err
	}
	sim := template.Simulation{
		ChainID:     res.ChainID.String(),
		Safe:        common.HexToAddress(link.ContractAddress),
		DomainHash:  domainHash.Bytes(),
		MessageHash: messageHash.Bytes(),
		Overrides:   res.Overrides,
		Diffs:       res.Diffs,
	}
	if len(extracted.NestedHashes) > 0 && info.NestedHash == "" {
		info.NestedHash = extracted.NestedHashes[0].Hash
	}

	out, err := render(f.format, reg, sim, info)
	if err != nil {
		return err
	}
	if f.output != "" {
		return os.WriteFile(f.output, out, 0o644)
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

func (f *simulateFlags) extractedFromFlags() extract.Data {
	data := extract.Data{NestedHashes: []extract.NestedHash{}}
	if f.signingData != "" {
		data.SigningData = &extract.SigningData{DataToSign: f.signingData}
	}

	var link extract.SimulationLink
	switch {
	case f.tenderlyLink != "":
		link = extract.ParseSimulationURL(f.tenderlyLink, f.rawInput)
	case f.contract != "":
		link = extract.ParseSimulationURL("", f.rawInput)
	default:
		return data
	}
	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&link.Network, f.network)
	override(&link.ContractAddress, f.contract)
	override(&link.From, f.sender)
	override(&link.StateOverrides, f.stateOverrides)
	data.SimulationLink = &link
	return data
}

func (f *simulateFlags) runScript(ctx context.Context, a *app) (extract.Data, template.TaskInfo, error) {
	if f.taskConfig == "" {
		return extract.Data{}, template.TaskInfo{}, fmt.Errorf("--task-config is required without --use-extracted")
	}
	parsed, err := task.LoadFile(f.taskConfig)
	if err != nil {
		return extract.Data{}, template.TaskInfo{}, err
	}
	if !parsed.Result.Success {
		return extract.Data{}, template.TaskInfo{}, fmt.Errorf("%w: %s", errValidationFailed, task.ValidationSummary(parsed.Result))
	}
	cfg := parsed.Config

	workdir, err := filepath.Abs(f.workdir)
	if err != nil {
		return extract.Data{}, template.TaskInfo{}, err
	}
	var args []string
	if strings.TrimSpace(cfg.Args) != "" {
		args = []string{cfg.Args}
	}
	data, err := script.NewRunner(a.lggr).Run(ctx, script.Options{
		ScriptPath: workdir,
		RPCURL:     f.rpc,
		ScriptName: cfg.ScriptName,
		Signature:  cfg.Signature,
		Args:       args,
		Sender:     f.sender,
	})
	if err != nil {
		return extract.Data{}, template.TaskInfo{}, err
	}
	if data.SimulationLink != nil && f.sender != "" {
		data.SimulationLink.From = f.sender
	}
	return data, template.TaskInfo{
		TaskName:   cfg.TaskName,
		ScriptName: cfg.ScriptName,
		Signature:  cfg.Signature,
		Args:       cfg.Args,
		LedgerID:   cfg.LedgerID,
		NestedHash: cfg.ExpectedNestedHash,
	}, nil
}

// checkNetwork rejects a fork of another chain than the link was made for.
// Non-numeric networks (e.g. "unknown") are not checked.
func checkNetwork(network, chainID string) error {
	if _, err := strconv.ParseUint(network, 10, 64); err != nil {
		return nil
	}
	if network != chainID {
		return fmt.Errorf("RPC serves chain %s but the simulation link is for network %s", chainID, network)
	}
	return nil
}

func render(format string, reg *template.Registry, sim template.Simulation, info template.TaskInfo) ([]byte, error) {
	var v any
	switch format {
	case formatMarkdown:
		return template.BuildValidationFile(reg, sim), nil
	case formatJSON:
		v = template.BuildResult(reg, sim)
	case formatConfig:
		v = template.BuildTaskConfig(reg, sim, info)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}
