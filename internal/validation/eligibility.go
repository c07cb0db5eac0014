package validation

import (
	"fmt"
	"strings"

	"github.com/base/validation-tool/internal/diff"
	"github.com/base/validation-tool/internal/task"
)

// ExpectedDifferenceMarker in an expected description downgrades a value
// mismatch of that item to informational.
const ExpectedDifferenceMarker = "difference is expected"

type ItemKind string

const (
	ItemSigningData ItemKind = "signing-data"
	ItemOverride    ItemKind = "override"
	ItemChange      ItemKind = "change"
)

// Entry holds the comparable values of one item side. Which fields are used
// depends on the item kind.
type Entry struct {
	DataToSign  string `json:"dataToSign,omitempty"`
	Key         string `json:"key,omitempty"`
	Value       string `json:"value,omitempty"`
	Before      string `json:"before,omitempty"`
	After       string `json:"after,omitempty"`
	Description string `json:"description,omitempty"`
}

// Item is one thing a signer has to review. Actual is nil when the simulation
// produced no counterpart.
type Item struct {
	Kind            ItemKind `json:"kind"`
	ContractName    string   `json:"contractName"`
	ContractAddress string   `json:"contractAddress"`
	Path            string   `json:"path"`
	Expected        Entry    `json:"expected"`
	Actual          *Entry   `json:"actual,omitempty"`
}

// Matches reports whether both sides agree on the values of the item's kind.
func (it Item) Matches() bool {
	if it.Actual == nil {
		return false
	}
	e, a := it.Expected, *it.Actual
	switch it.Kind {
	case ItemSigningData:
		return diff.FieldsEqual(e.DataToSign, a.DataToSign)
	case ItemOverride:
		return diff.FieldsEqual(e.Key, a.Key) && diff.FieldsEqual(e.Value, a.Value)
	case ItemChange:
		return diff.FieldsEqual(e.Key, a.Key) && diff.FieldsEqual(e.Before, a.Before) && diff.FieldsEqual(e.After, a.After)
	}
	return false
}

// ExpectedDifference reports whether the expected description carries
// ExpectedDifferenceMarker.
func (it Item) ExpectedDifference() bool {
	return strings.Contains(strings.ToLower(it.Expected.Description), ExpectedDifferenceMarker)
}

// Blocking is true for a missing counterpart, or for a mismatch that is not
// marked as expected.
func (it Item) Blocking() bool {
	if it.Actual == nil {
		return true
	}
	return !it.Matches() && !it.ExpectedDifference()
}

// Items lists the signing data, then every expected override, then every
// expected change. Expected entries are paired with the actual entry at the
// same position.
func Items(data Data) []Item {
	var items []Item

	expectedSigning := data.ExpectedHashes.DataToSign()
	signing := Item{
		Kind:            ItemSigningData,
		ContractName:    "EIP-712 Signing Data",
		ContractAddress: data.ExpectedHashes.Address,
		Path:            "signing_data",
		Expected:        Entry{DataToSign: expectedSigning},
	}
	if sd := data.Extracted.SigningData; sd != nil {
		signing.Actual = &Entry{DataToSign: sd.DataToSign}
	} else if h := data.ActualHashes; h != nil && h.DataToSign() != "" {
		signing.Actual = &Entry{DataToSign: h.DataToSign()}
	}
	items = append(items, signing)

	for i, so := range data.Expected.StateOverrides {
		var actual []task.Override
		if i < len(data.Actual.StateOverrides) {
			actual = data.Actual.StateOverrides[i].Overrides
		}
		for j, o := range so.Overrides {
			item := Item{
				Kind:            ItemOverride,
				ContractName:    so.Name,
				ContractAddress: so.Address,
				Path:            fmt.Sprintf("state_overrides[%d].overrides[%d]", i, j),
				Expected:        Entry{Key: o.Key, Value: o.Value, Description: o.Description},
			}
			if j < len(actual) {
				a := actual[j]
				item.Actual = &Entry{Key: a.Key, Value: a.Value, Description: a.Description}
			}
			items = append(items, item)
		}
	}

	for i, sc := range data.Expected.StateChanges {
		var actual []task.Change
		if i < len(data.Actual.StateChanges) {
			actual = data.Actual.StateChanges[i].Changes
		}
		for j, c := range sc.Changes {
			item := Item{
				Kind:            ItemChange,
				ContractName:    sc.Name,
				ContractAddress: sc.Address,
				Path:            fmt.Sprintf("state_changes[%d].changes[%d]", i, j),
				Expected:        Entry{Key: c.Key, Before: c.Before, After: c.After, Description: c.Description},
			}
			if j < len(actual) {
				a := actual[j]
				item.Actual = &Entry{Key: a.Key, Before: a.Before, After: a.After, Description: a.Description}
			}
			items = append(items, item)
		}
	}

	return items
}

type Eligibility struct {
	CanSign  bool   `json:"canSign"`
	Blocking []Item `json:"blocking"`
	Reason   string `json:"reason,omitempty"`
}

// CheckEligibility decides whether data may be signed: no item is blocking
// and both expected hashes are present.
func CheckEligibility(data Data) Eligibility {
	out := Eligibility{Blocking: []Item{}}
	for _, it := range Items(data) {
		if it.Blocking() {
			out.Blocking = append(out.Blocking, it)
		}
	}

	switch {
	case data.ExpectedHashes.DomainHash == "" || data.ExpectedHashes.MessageHash == "":
		out.Reason = "expected domain and message hashes are missing"
	case len(out.Blocking) > 0:
		out.Reason = fmt.Sprintf("%d blocking validation item(s)", len(out.Blocking))
	default:
		out.CanSign = true
	}
	return out
}

// CompareAll runs the structural comparator on every expected contract
// against the actual contract at the same position. A missing actual contract
// is compared against an empty record.
func CompareAll(data Data) []diff.ComparisonResult {
	results := make([]diff.ComparisonResult, 0, len(data.Expected.StateOverrides)+len(data.Expected.StateChanges))
	for i, so := range data.Expected.StateOverrides {
		var actual task.StateOverride
		if i < len(data.Actual.StateOverrides) {
			actual = data.Actual.StateOverrides[i]
		}
		results = append(results, diff.CompareStateOverride(so, actual))
	}
	for i, sc := range data.Expected.StateChanges {
		var actual task.StateChange
		if i < len(data.Actual.StateChanges) {
			actual = data.Actual.StateChanges[i]
		}
		results = append(results, diff.CompareStateChange(sc, actual))
	}
	return results
}
