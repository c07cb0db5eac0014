package simulate

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/base/validation-tool/internal/extract"
	"github.com/base/validation-tool/internal/task"
)

const (
	NameTenderly  = "tenderly"
	NameStateDiff = "state-diff"
)

var (
	// ErrTimeout is returned when a backend does not answer in time. The
	// simulation is not retried.
	ErrTimeout = errors.New("simulation timed out")
	// ErrIncompleteData is returned when the extracted script data lacks what
	// a backend needs.
	ErrIncompleteData = errors.New("incomplete extracted data")
)

type Request struct {
	RPCURL    string
	Extracted extract.Data
}

// Result is a backend's view of the transaction. Raw is the backend response
// kept for diagnostics. Hashes is set by backends that recompute the EIP-712
// hashes themselves.
type Result struct {
	StateOverrides []task.StateOverride `json:"stateOverrides"`
	StateChanges   []task.StateChange   `json:"stateChanges"`
	Hashes         *task.ExpectedHashes `json:"hashes,omitempty"`
	Raw            json.RawMessage      `json:"raw,omitempty"`
}

// Backend simulates the transaction described by a script run.
type Backend interface {
	Name() string
	// Available reports whether the backend can be used at all, e.g. has
	// credentials or an executable.
	Available(ctx context.Context) bool
	Simulate(ctx context.Context, req Request) (Result, error)
}
