package script

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/base/validation-tool/internal/extract"
	"github.com/base/validation-tool/internal/logger"
)

// Options describes one forge script invocation.
type Options struct {
	ScriptPath string
	RPCURL     string
	ScriptName string
	Signature  string
	Args       []string
	Sender     string
	// SaveOutput, when set, receives the raw output and a sibling
	// <base>-extracted.json with the extracted data.
	SaveOutput string
	// ExtractOnly replays SaveOutput instead of running forge when the file
	// already exists.
	ExtractOnly bool
}

type Runner struct {
	lggr   logger.Logger
	forge  string
	stdout io.Writer

	execCommand func(ctx context.Context, name string, args ...string) *exec.Cmd
}

type Option func(*Runner)

// WithForge overrides the forge executable.
func WithForge(path string) Option {
	return func(r *Runner) { r.forge = path }
}

// WithStdout mirrors the script's stdout to w while it runs.
func WithStdout(w io.Writer) Option {
	return func(r *Runner) { r.stdout = w }
}

func NewRunner(lggr logger.Logger, opts ...Option) *Runner {
	r := &Runner{
		lggr:        lggr.Named("script"),
		forge:       "forge",
		stdout:      io.Discard,
		execCommand: exec.CommandContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Args returns the forge argv (without the executable).
func Args(opts Options) []string {
	args := []string{"script", "--rpc-url", opts.RPCURL, opts.ScriptName}
	if opts.Signature != "" {
		args = append(args, "--sig", opts.Signature)
		args = append(args, opts.Args...)
	}
	if opts.Sender != "" {
		args = append(args, "--sender", opts.Sender)
	}
	return args
}

// Run executes the script, or replays saved output, and extracts its data.
func (r *Runner) Run(ctx context.Context, opts Options) (extract.Data, error) {
	output, err := r.Output(ctx, opts)
	if err != nil {
		return extract.Data{}, err
	}

	data := extract.Extract(output)
	r.lggr.Debugw("extracted script output",
		"simulationLink", data.SimulationLink != nil,
		"signingData", data.SigningData != nil,
		"nestedHashes", len(data.NestedHashes),
	)

	if opts.SaveOutput != "" {
		if err := writeExtracted(ExtractedPath(opts.SaveOutput), data); err != nil {
			return extract.Data{}, err
		}
	}
	return data, nil
}

// Output returns the raw script output.
func (r *Runner) Output(ctx context.Context, opts Options) (string, error) {
	if opts.ExtractOnly && opts.SaveOutput != "" {
		saved, err := os.ReadFile(opts.SaveOutput)
		if err == nil {
			r.lggr.Infow("replaying saved script output", "file", opts.SaveOutput)
			return string(saved), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("reading saved output: %w", err)
		}
	}

	if info, err := os.Stat(opts.ScriptPath); err != nil || !info.IsDir() {
		return "", fmt.Errorf("script directory does not exist: %s", opts.ScriptPath)
	}

	args := Args(opts)
	r.lggr.Infow("running script", "dir", opts.ScriptPath, "command", r.forge+" "+strings.Join(args, " "))

	cmd := r.execCommand(ctx, r.forge, args...)
	cmd.Dir = opts.ScriptPath

	var stdout, stderr bytes.Buffer
	cmd.Stdout = io.MultiWriter(r.stdout, &stdout)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("script execution failed: %s", msg)
	}

	output := stdout.String()
	if opts.SaveOutput != "" {
		if err := os.WriteFile(opts.SaveOutput, stdout.Bytes(), 0o644); err != nil {
			return "", fmt.Errorf("saving script output: %w", err)
		}
	}
	return output, nil
}

// ExtractedPath maps saved output "dir/out.txt" to "dir/out-extracted.json".
func ExtractedPath(saveOutput string) string {
	return strings.TrimSuffix(saveOutput, filepath.Ext(saveOutput)) + "-extracted.json"
}

func writeExtracted(path string, data extract.Data) error {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("saving extracted data: %w", err)
	}
	return nil
}
