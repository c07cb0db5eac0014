package template

import (
	"fmt"
	"strings"
)

const (
	markerIdentifiers = "<<MessageIdentifiers>>"
	markerOverrides   = "<<StateOverrides>>"
	markerChanges     = "<<StateChanges>>"
)

var markdownTemplate = `# Validation

This document can be used to validate the inputs and result of the execution of the upgrade transaction which you are signing.

> [!NOTE]
>
> This document names each contract address to add clarity to what you are seeing. The names are not visible in the simulator UI. All that matters is that addresses and storage slot hex values match exactly what is presented here.

The steps are:

1. [Validate the Domain and Message Hashes](#expected-domain-and-message-hashes)
2. [Verify the state changes](#state-changes)

## Expected Domain and Message Hashes

First, validate the domain and message hashes. These values should match both the values on your ledger and the values printed to the terminal when you run the task.

> [!CAUTION]
>
> Before signing, ensure the below hashes match what is on your ledger.
>
<<MessageIdentifiers>>

# State Validations

For each contract listed in the state diff, verify that no contracts or state changes shown in the simulation are missing from this document. Additionally, verify for each contract that:

- The following state changes (and no others) are made to that contract.
- All key values match the semantic meaning provided.

<<StateOverrides>>## Task State Changes

<<StateChanges>>

### Your Signer Address

- Nonce increment
`

// BuildValidationFile renders sim as the markdown validation document.
func BuildValidationFile(reg *Registry, sim Simulation) []byte {
	doc := strings.Replace(markdownTemplate, markerIdentifiers, messageIdentifiers(reg, sim), 1)
	doc = strings.Replace(doc, markerOverrides, overridesSection(reg, sim), 1)
	doc = strings.Replace(doc, markerChanges, changesSection(reg, sim), 1)
	return []byte(doc)
}

func messageIdentifiers(reg *Registry, sim Simulation) string {
	contract, _ := reg.Contract(sim.ChainID, sim.Safe.Hex())

	var b strings.Builder
	fmt.Fprintf(&b, "> ### %s: `%s`\n", contract.Name, sim.Safe.Hex())
	b.WriteString(">\n")
	fmt.Fprintf(&b, "> - Domain Hash: `%s`\n", encodeHash(sim.DomainHash))
	fmt.Fprintf(&b, "> - Message Hash: `%s`", encodeHash(sim.MessageHash))
	return b.String()
}

// overridesSection renders the whole "State Overrides" section, or nothing
// when execution started from unmodified state.
func overridesSection(reg *Registry, sim Simulation) string {
	var b strings.Builder
	for _, o := range sortedOverrides(sim.Overrides) {
		if len(o.Storage) == 0 {
			continue
		}
		contract, _ := reg.Contract(sim.ChainID, o.ContractAddress.Hex())
		fmt.Fprintf(&b, "### %s (`%s`)\n\n", contract.Name, o.ContractAddress.Hex())
		for _, s := range o.Storage {
			slot, _ := contract.Slot(s.Key.Hex(), "")
			fmt.Fprintf(&b, "- **Key**: `%s` <br/>\n", s.Key.Hex())
			fmt.Fprintf(&b, "  **Override**: `%s` <br/>\n", s.Value.Hex())
			fmt.Fprintf(&b, "  **Meaning**: %s\n\n", slot.OverrideMeaning)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "## State Overrides\n\n" + b.String()
}

func changesSection(reg *Registry, sim Simulation) string {
	var b strings.Builder
	n := 0
	for _, d := range sim.Diffs {
		contract, _ := reg.Contract(sim.ChainID, d.Address.Hex())
		header := false
		for _, sd := range d.SortedStorageDiffs() {
			if !sd.Changed() {
				continue
			}
			if !header {
				fmt.Fprintf(&b, "### %s (`%s`)\n\n", contract.Name, d.Address.Hex())
				header = true
			}
			slot, _ := contract.Slot(sd.Key.Hex(), sd.Preimage)
			fmt.Fprintf(&b, "%d. **Key**: `%s` <br/>\n", n, sd.Key.Hex())
			fmt.Fprintf(&b, "   **Before**: `%s` <br/>\n", sd.ValueBefore.Hex())
			fmt.Fprintf(&b, "   **After**: `%s` <br/>\n", sd.ValueAfter.Hex())
			fmt.Fprintf(&b, "   **Value Type**: %s <br/>\n", slot.Type)
			fmt.Fprintf(&b, "   **Decoded Old Value**: `%s` <br/>\n", decodeValue(slot.Type, sd.ValueBefore))
			fmt.Fprintf(&b, "   **Decoded New Value**: `%s` <br/>\n", decodeValue(slot.Type, sd.ValueAfter))
			fmt.Fprintf(&b, "   **Meaning**: %s <br/>\n\n", slot.Summary)
			n++
		}
	}
	return strings.TrimSuffix(b.String(), "\n\n")
}
