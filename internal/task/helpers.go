package task

import "strings"

// FindStateOverride returns the first state override whose name contains
// contractName, ignoring case.
func FindStateOverride(cfg TaskConfig, contractName string) (StateOverride, bool) {
	needle := strings.ToLower(contractName)
	for _, o := range cfg.StateOverrides {
		if strings.Contains(strings.ToLower(o.Name), needle) {
			return o, true
		}
	}
	return StateOverride{}, false
}

func FindStateOverrideByAddress(cfg TaskConfig, address string) (StateOverride, bool) {
	for _, o := range cfg.StateOverrides {
		if strings.EqualFold(o.Address, address) {
			return o, true
		}
	}
	return StateOverride{}, false
}

// FindStateChange returns the first state change whose name contains
// contractName, ignoring case.
func FindStateChange(cfg TaskConfig, contractName string) (StateChange, bool) {
	needle := strings.ToLower(contractName)
	for _, c := range cfg.StateChanges {
		if strings.Contains(strings.ToLower(c.Name), needle) {
			return c, true
		}
	}
	return StateChange{}, false
}

func FindStateChangeByAddress(cfg TaskConfig, address string) (StateChange, bool) {
	for _, c := range cfg.StateChanges {
		if strings.EqualFold(c.Address, address) {
			return c, true
		}
	}
	return StateChange{}, false
}

// AllAddresses lists every address referenced by cfg in first-seen order:
// the signing safe, then state override contracts, then state change contracts.
func AllAddresses(cfg TaskConfig) []string {
	seen := map[string]bool{}
	var out []string
	add := func(addr string) {
		if addr == "" || seen[addr] {
			return
		}
		seen[addr] = true
		out = append(out, addr)
	}

	add(cfg.ExpectedDomainAndMessageHashes.Address)
	for _, o := range cfg.StateOverrides {
		add(o.Address)
	}
	for _, c := range cfg.StateChanges {
		add(c.Address)
	}
	return out
}

// Completeness reports authoring gaps that the schema accepts but that make a
// configuration useless for signing.
func Completeness(cfg TaskConfig) []string {
	var issues []string
	if cfg.TaskName == "" {
		issues = append(issues, "Missing task name")
	}
	if cfg.ScriptName == "" {
		issues = append(issues, "Missing script name")
	}
	if cfg.Signature == "" {
		issues = append(issues, "Missing script signature")
	}
	if cfg.ExpectedDomainAndMessageHashes.Address == "" {
		issues = append(issues, "Missing multisig address")
	}
	if len(cfg.StateOverrides) == 0 {
		issues = append(issues, "No state overrides defined")
	}
	if len(cfg.StateChanges) == 0 {
		issues = append(issues, "No state changes defined")
	}
	return issues
}
