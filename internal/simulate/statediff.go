package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/base/validation-tool/internal/config"
	"github.com/base/validation-tool/internal/logger"
	"github.com/base/validation-tool/internal/task"
)

// StateDiffResult is the JSON document the local simulator prints with
// --format json.
type StateDiffResult struct {
	DomainHash     string               `json:"domain_hash"`
	MessageHash    string               `json:"message_hash"`
	TargetSafe     string               `json:"target_safe"`
	StateOverrides []task.StateOverride `json:"state_overrides"`
	StateChanges   []task.StateChange   `json:"state_changes"`
}

// DomainAndMessageHashes returns the hashes the simulator recomputed, for
// checking against the expected ones.
func DomainAndMessageHashes(r StateDiffResult) task.ExpectedHashes {
	return task.ExpectedHashes{
		Address:     r.TargetSafe,
		DomainHash:  r.DomainHash,
		MessageHash: r.MessageHash,
	}
}

// StateDiff runs the local simulator as a subprocess.
type StateDiff struct {
	lggr    logger.Logger
	argv    []string
	dir     string
	timeout time.Duration

	execCommand func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewStateDiff builds the backend from cfg. An empty cfg.Command runs this
// executable's simulate subcommand. dir is the subprocess working directory.
func NewStateDiff(lggr logger.Logger, cfg config.StateDiffConfig, dir string) *StateDiff {
	argv := strings.Fields(cfg.Command)
	if len(argv) == 0 {
		self, err := os.Executable()
		if err != nil {
			self = os.Args[0]
		}
		argv = []string{self, "simulate"}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &StateDiff{
		lggr:        lggr.Named("state-diff"),
		argv:        argv,
		dir:         dir,
		timeout:     timeout,
		execCommand: exec.CommandContext,
	}
}

func (s *StateDiff) Name() string { return NameStateDiff }

func (s *StateDiff) Available(context.Context) bool {
	_, err := exec.LookPath(s.argv[0])
	return err == nil
}

// Args returns the simulator flags for req.
func Args(req Request) ([]string, error) {
	link, signing := req.Extracted.SimulationLink, req.Extracted.SigningData
	if link == nil || signing == nil {
		return nil, fmt.Errorf("%w: extracted data must contain signingData and simulationLink", ErrIncompleteData)
	}

	args := []string{
		"--rpc", req.RPCURL,
		"--format", "json",
		"--use-extracted",
		"--signing-data", signing.DataToSign,
		"--sender", link.From,
	}
	if link.Network != "" {
		args = append(args, "--network", link.Network)
	}
	if link.ContractAddress != "" {
		args = append(args, "--contract", link.ContractAddress)
	}
	if link.StateOverrides != "" {
		args = append(args, "--state-overrides", link.StateOverrides)
	}
	if link.RawFunctionInput != "" {
		args = append(args, "--raw-input", link.RawFunctionInput)
	}
	if link.URL != "" {
		args = append(args, "--tenderly-link", link.URL)
	}
	return args, nil
}

func (s *StateDiff) Simulate(ctx context.Context, req Request) (Result, error) {
	args, err := Args(req)
	if err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	argv := append(append([]string{}, s.argv[1:]...), args...)
	cmd := s.execCommand(ctx, s.argv[0], argv...)
	cmd.Dir = s.dir
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	s.lggr.Infow("running local simulation", "command", s.argv[0], "dir", s.dir)
	err = cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Result{}, fmt.Errorf("%w: state-diff simulation timed out after %s", ErrTimeout, s.timeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{}, fmt.Errorf("command failed with exit code %d: %s", exitErr.ExitCode(), stderr.String())
		}
		return Result{}, fmt.Errorf("state-diff simulation failed: %w", err)
	}
	if stderr.Len() > 0 {
		s.lggr.Debugw("state-diff stderr", "stderr", stderr.String())
	}

	var result StateDiffResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return Result{}, fmt.Errorf("failed to parse state-diff JSON output: %w", err)
	}

	hashes := DomainAndMessageHashes(result)
	return Result{
		StateOverrides: nonNilOverrides(result.StateOverrides),
		StateChanges:   nonNilChanges(result.StateChanges),
		Hashes:         &hashes,
		Raw:            json.RawMessage(stdout.Bytes()),
	}, nil
}

func nonNilOverrides(o []task.StateOverride) []task.StateOverride {
	if o == nil {
		return []task.StateOverride{}
	}
	return o
}

func nonNilChanges(c []task.StateChange) []task.StateChange {
	if c == nil {
		return []task.StateChange{}
	}
	return c
}
