package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/base/validation-tool/internal/config"
	"github.com/base/validation-tool/internal/extract"
	"github.com/base/validation-tool/internal/logger"
	"github.com/base/validation-tool/internal/script"
	"github.com/base/validation-tool/internal/simulate"
	"github.com/base/validation-tool/internal/task"
)

type Stage string

const (
	StageLoadConfig      Stage = "load-config"
	StageExtractScript   Stage = "extract-script"
	StageSelectSimulator Stage = "select-simulator"
	StageRunSimulation   Stage = "run-simulation"
	StageCanonicalize    Stage = "canonicalize"
	StageDone            Stage = "done"
)

// SimulatorAuto lets the service pick the first available backend.
const SimulatorAuto = "auto"

var (
	ErrConfigNotFound       = errors.New("config file not found")
	ErrInvalidConfig        = errors.New("invalid validation config")
	ErrNoSimulationLink     = errors.New("no simulation link found in script output")
	ErrNoSimulator          = errors.New("no simulation backend available")
	ErrSimulatorUnavailable = errors.New("simulation backend unavailable")
)

// StageError is a failed run, tagged with the stage it failed in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ScriptRunner runs an upgrade's forge script and extracts its output.
type ScriptRunner interface {
	Run(ctx context.Context, opts script.Options) (extract.Data, error)
}

// Request selects what to validate. Simulator is a backend name, SimulatorAuto
// or empty. Sender is the signer address passed to the script.
type Request struct {
	Network   string
	Upgrade   string
	UserType  string
	Simulator string
	Sender    string
	// ExtractOnly replays this run's saved script output when present.
	ExtractOnly bool
	// RunID names the run's scratch files. A random one is used when empty.
	RunID string
}

// Data is a finished run: both canonicalized datasets plus what produced them.
type Data struct {
	RunID          string               `json:"runId"`
	Simulator      string               `json:"simulator"`
	TaskName       string               `json:"taskName"`
	Expected       Dataset              `json:"expected"`
	Actual         Dataset              `json:"actual"`
	ExpectedHashes task.ExpectedHashes  `json:"expectedHashes"`
	ActualHashes   *task.ExpectedHashes `json:"actualHashes,omitempty"`
	Extracted      extract.Data         `json:"extractedData"`
	Raw            json.RawMessage      `json:"raw,omitempty"`
}

// Response is the caller-facing shape of a run.
type Response struct {
	Success bool   `json:"success"`
	Data    *Data  `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Service struct {
	lggr     logger.Logger
	cfg      *config.Config
	runner   ScriptRunner
	backends []simulate.Backend
}

// NewService wires the collaborators. Backends are probed in the given order
// during auto-selection.
func NewService(lggr logger.Logger, cfg *config.Config, runner ScriptRunner, backends ...simulate.Backend) *Service {
	return &Service{
		lggr:     lggr.Named("validation"),
		cfg:      cfg,
		runner:   runner,
		backends: backends,
	}
}

// Run executes the pipeline and folds any failure into the Response.
func (s *Service) Run(ctx context.Context, req Request) Response {
	data, err := s.Execute(ctx, req)
	if err != nil {
		return Response{Error: err.Error()}
	}
	return Response{Success: true, Data: data}
}

// Execute runs LoadConfig, ExtractScript, SelectSimulator, RunSimulation and
// Canonicalize in order. Nothing is retried; the first failing stage ends the
// run with a *StageError.
func (s *Service) Execute(ctx context.Context, req Request) (*Data, error) {
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	lggr := s.lggr.With("runID", runID, "network", req.Network, "upgrade", req.Upgrade)

	stage := StageLoadConfig
	fail := func(err error) (*Data, error) {
		lggr.Errorw("validation failed", "stage", stage, "err", err)
		return nil, &StageError{Stage: stage, Err: err}
	}

	lggr.Infow("loading config", "stage", stage, "userType", req.UserType)
	cfg, err := s.loadConfig(req)
	if err != nil {
		return fail(err)
	}

	stage = StageExtractScript
	rpcURL, err := s.cfg.RPC.URL(req.Network)
	if err != nil {
		return fail(err)
	}
	lggr.Infow("running script", "stage", stage, "script", cfg.ScriptName)
	extracted, err := s.runner.Run(ctx, script.Options{
		ScriptPath:  s.cfg.UpgradeDir(req.Network, req.Upgrade),
		RPCURL:      rpcURL,
		ScriptName:  cfg.ScriptName,
		Signature:   cfg.Signature,
		Args:        scriptArgs(cfg.Args),
		Sender:      req.Sender,
		SaveOutput:  s.OutputPath(req.Network, req.Upgrade, runID),
		ExtractOnly: req.ExtractOnly,
	})
	if err != nil {
		return fail(err)
	}
	if extracted.SimulationLink == nil {
		return fail(ErrNoSimulationLink)
	}

	stage = StageSelectSimulator
	backend, err := s.selectBackend(ctx, req.Simulator)
	if err != nil {
		return fail(err)
	}
	lggr.Infow("selected simulator", "stage", stage, "method", backend.Name())

	stage = StageRunSimulation
	result, err := backend.Simulate(ctx, simulate.Request{RPCURL: rpcURL, Extracted: extracted})
	if err != nil {
		return fail(err)
	}

	stage = StageCanonicalize
	data := &Data{
		RunID:          runID,
		Simulator:      backend.Name(),
		TaskName:       cfg.TaskName,
		Expected:       Canonicalize(ExpectedDataset(cfg)),
		Actual:         Canonicalize(Dataset{StateOverrides: result.StateOverrides, StateChanges: result.StateChanges}),
		ExpectedHashes: cfg.ExpectedDomainAndMessageHashes,
		ActualHashes:   result.Hashes,
		Extracted:      extracted,
		Raw:            result.Raw,
	}

	lggr.Infow("validation completed", "stage", StageDone,
		"stateOverrides", len(data.Actual.StateOverrides),
		"stateChanges", len(data.Actual.StateChanges),
	)
	return data, nil
}

// ConfigPath is the validation file of userType for one upgrade.
func (s *Service) ConfigPath(network, upgrade, userType string) string {
	return filepath.Join(s.cfg.UpgradeDir(network, upgrade), "validations", task.FileNameForUserType(userType))
}

// OutputPath is where a run saves its raw script output.
func (s *Service) OutputPath(network, upgrade, runID string) string {
	return filepath.Join(s.cfg.UpgradeDir(network, upgrade), "temp-script-output-"+runID+".txt")
}

// Cleanup removes the scratch files of one run. Files that are already gone
// are not an error.
func (s *Service) Cleanup(network, upgrade, runID string) error {
	output := s.OutputPath(network, upgrade, runID)
	var errs []error
	for _, path := range []string{output, script.ExtractedPath(output)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		} else if err == nil {
			s.lggr.Debugw("removed scratch file", "file", path)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) loadConfig(req Request) (task.TaskConfig, error) {
	path := s.ConfigPath(req.Network, req.Upgrade, req.UserType)
	parsed, err := task.LoadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return task.TaskConfig{}, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
	}
	if err != nil {
		return task.TaskConfig{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	if !parsed.Result.Success {
		return task.TaskConfig{}, fmt.Errorf("%w: %s", ErrInvalidConfig, task.ValidationSummary(parsed.Result))
	}
	return parsed.Config, nil
}

func (s *Service) selectBackend(ctx context.Context, name string) (simulate.Backend, error) {
	if name == "" || name == SimulatorAuto {
		for _, b := range s.backends {
			if b.Available(ctx) {
				return b, nil
			}
		}
		return nil, ErrNoSimulator
	}

	for _, b := range s.backends {
		if b.Name() != name {
			continue
		}
		if !b.Available(ctx) {
			return nil, fmt.Errorf("%w: %s", ErrSimulatorUnavailable, name)
		}
		return b, nil
	}
	return nil, fmt.Errorf("%w: unknown simulator %q", ErrSimulatorUnavailable, name)
}

// scriptArgs passes the configured args to forge as one argument.
func scriptArgs(args string) []string {
	if strings.TrimSpace(args) == "" {
		return nil
	}
	return []string{args}
}
