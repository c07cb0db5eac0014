package validation

import (
	"sort"
	"strings"

	"github.com/base/validation-tool/internal/task"
)

// Dataset is one side of a validation: what the task file declares, or what
// the simulator observed.
type Dataset struct {
	StateOverrides []task.StateOverride `json:"stateOverrides"`
	StateChanges   []task.StateChange   `json:"stateChanges"`
}

// ExpectedDataset returns the declared side of cfg.
func ExpectedDataset(cfg task.TaskConfig) Dataset {
	return Dataset{StateOverrides: cfg.StateOverrides, StateChanges: cfg.StateChanges}
}

// Canonicalize returns a copy of d with contracts ordered by address and the
// slots of each contract ordered by key. Both orderings ignore case and are
// stable. d is left untouched.
func Canonicalize(d Dataset) Dataset {
	out := Dataset{
		StateOverrides: make([]task.StateOverride, len(d.StateOverrides)),
		StateChanges:   make([]task.StateChange, len(d.StateChanges)),
	}

	for i, so := range d.StateOverrides {
		so.Overrides = append([]task.Override{}, so.Overrides...)
		sort.SliceStable(so.Overrides, func(a, b int) bool {
			return lessFold(so.Overrides[a].Key, so.Overrides[b].Key)
		})
		out.StateOverrides[i] = so
	}
	sort.SliceStable(out.StateOverrides, func(a, b int) bool {
		return lessFold(out.StateOverrides[a].Address, out.StateOverrides[b].Address)
	})

	for i, sc := range d.StateChanges {
		sc.Changes = append([]task.Change{}, sc.Changes...)
		sort.SliceStable(sc.Changes, func(a, b int) bool {
			return lessFold(sc.Changes[a].Key, sc.Changes[b].Key)
		})
		out.StateChanges[i] = sc
	}
	sort.SliceStable(out.StateChanges, func(a, b int) bool {
		return lessFold(out.StateChanges[a].Address, out.StateChanges[b].Address)
	})

	return out
}

// lessFold orders hex strings the way a case-insensitive collation would.
func lessFold(a, b string) bool {
	return strings.ToLower(a) < strings.ToLower(b)
}
