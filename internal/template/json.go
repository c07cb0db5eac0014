package template

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/base/validation-tool/internal/simulate"
	"github.com/base/validation-tool/internal/state"
	"github.com/base/validation-tool/internal/task"
)

// Simulation is one executed task: the Safe whose hashes were signed, the
// overrides execution started from and what it changed.
type Simulation struct {
	ChainID     string
	Safe        common.Address
	DomainHash  []byte
	MessageHash []byte
	Overrides   []state.Override
	Diffs       []state.StateDiff
}

// TaskInfo carries the fields of a validation config that the simulation
// cannot know.
type TaskInfo struct {
	TaskName   string
	ScriptName string
	Signature  string
	Args       string
	LedgerID   int
	NestedHash string
}

// BuildResult converts a simulation into the document printed by
// `simulate --format json`.
func BuildResult(reg *Registry, sim Simulation) simulate.StateDiffResult {
	return simulate.StateDiffResult{
		DomainHash:     encodeHash(sim.DomainHash),
		MessageHash:    encodeHash(sim.MessageHash),
		TargetSafe:     sim.Safe.Hex(),
		StateOverrides: stateOverrides(reg, sim),
		StateChanges:   stateChanges(reg, sim),
	}
}

// BuildTaskConfig converts a simulation into a validation config skeleton
// that a task author can review and commit.
func BuildTaskConfig(reg *Registry, sim Simulation, info TaskInfo) task.TaskConfig {
	return task.TaskConfig{
		TaskName:   info.TaskName,
		ScriptName: info.ScriptName,
		Signature:  info.Signature,
		Args:       info.Args,
		LedgerID:   info.LedgerID,
		ExpectedDomainAndMessageHashes: task.ExpectedHashes{
			Address:     sim.Safe.Hex(),
			DomainHash:  encodeHash(sim.DomainHash),
			MessageHash: encodeHash(sim.MessageHash),
		},
		ExpectedNestedHash: info.NestedHash,
		StateOverrides:     stateOverrides(reg, sim),
		StateChanges:       stateChanges(reg, sim),
	}
}

func stateOverrides(reg *Registry, sim Simulation) []task.StateOverride {
	out := []task.StateOverride{}
	for _, o := range sortedOverrides(sim.Overrides) {
		if len(o.Storage) == 0 {
			continue
		}
		contract, _ := reg.Contract(sim.ChainID, o.ContractAddress.Hex())
		so := task.StateOverride{
			Name:      contract.Name,
			Address:   o.ContractAddress.Hex(),
			Overrides: make([]task.Override, 0, len(o.Storage)),
		}
		for _, s := range o.Storage {
			description := "Storage override for slot " + s.Key.Hex()
			if slot, ok := contract.Slot(s.Key.Hex(), ""); ok && slot.OverrideMeaning != "" {
				description = slot.OverrideMeaning
			}
			so.Overrides = append(so.Overrides, task.Override{
				Key:         s.Key.Hex(),
				Value:       s.Value.Hex(),
				Description: description,
			})
		}
		out = append(out, so)
	}
	return out
}

func stateChanges(reg *Registry, sim Simulation) []task.StateChange {
	out := []task.StateChange{}
	for _, d := range sim.Diffs {
		var changes []task.Change
		contract, _ := reg.Contract(sim.ChainID, d.Address.Hex())
		for _, sd := range d.SortedStorageDiffs() {
			if !sd.Changed() {
				continue
			}
			description := "Storage slot changed"
			if slot, ok := contract.Slot(sd.Key.Hex(), sd.Preimage); ok && slot.Summary != "" {
				description = slot.Summary
			}
			changes = append(changes, task.Change{
				Key:         sd.Key.Hex(),
				Before:      sd.ValueBefore.Hex(),
				After:       sd.ValueAfter.Hex(),
				Description: description,
			})
		}
		if len(changes) == 0 {
			continue
		}
		out = append(out, task.StateChange{
			Name:    contract.Name,
			Address: d.Address.Hex(),
			Changes: changes,
		})
	}
	return out
}

// sortedOverrides orders overrides by address and their slots by key without
// touching the caller's slices.
func sortedOverrides(overrides []state.Override) []state.Override {
	out := make([]state.Override, len(overrides))
	for i, o := range overrides {
		storage := append([]state.StorageOverride(nil), o.Storage...)
		sort.Slice(storage, func(a, b int) bool {
			return bytes.Compare(storage[a].Key[:], storage[b].Key[:]) < 0
		})
		out[i] = state.Override{ContractAddress: o.ContractAddress, Storage: storage}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return bytes.Compare(out[a].ContractAddress[:], out[b].ContractAddress[:]) < 0
	})
	return out
}

func encodeHash(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return hexutil.Encode(b)
}
