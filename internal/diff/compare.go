package diff

import (
	"fmt"

	"github.com/base/validation-tool/internal/task"
)

type Kind string

const (
	KindOverride Kind = "override"
	KindChange   Kind = "change"
)

type Status string

const (
	StatusMatch    Status = "match"
	StatusMismatch Status = "mismatch"
)

// FieldDiff compares one scalar field. Path locates it inside the compared
// record, e.g. "name" or "overrides[2].key".
type FieldDiff struct {
	Field    string       `json:"field"`
	Path     string       `json:"path"`
	Expected string       `json:"expected"`
	Actual   string       `json:"actual"`
	Diffs    []StringDiff `json:"diffs"`
	Type     DiffType     `json:"type"`
}

type ObjectDiff struct {
	Type       string      `json:"type"`
	FieldDiffs []FieldDiff `json:"fieldDiffs"`
	Status     Status      `json:"status"`
}

type Stats struct {
	TotalFields      int `json:"totalFields"`
	MatchingFields   int `json:"matchingFields"`
	MismatchedFields int `json:"mismatchedFields"`
	AddedFields      int `json:"addedFields"`
	RemovedFields    int `json:"removedFields"`
}

type ComparisonResult struct {
	Summary string       `json:"summary"`
	Status  Status       `json:"status"`
	Diffs   []ObjectDiff `json:"diffs"`
	Stats   Stats        `json:"stats"`
}

// Mismatches returns every field diff that is not unchanged.
func (r ComparisonResult) Mismatches() []FieldDiff {
	var out []FieldDiff
	for _, d := range r.Diffs {
		for _, f := range d.FieldDiffs {
			if f.Type != Unchanged {
				out = append(out, f)
			}
		}
	}
	return out
}

// Compare dispatches on kind. expected and actual must both be
// task.StateOverride for KindOverride or task.StateChange for KindChange.
func Compare(kind Kind, expected, actual any) (ComparisonResult, error) {
	switch kind {
	case KindOverride:
		e, ok1 := expected.(task.StateOverride)
		a, ok2 := actual.(task.StateOverride)
		if !ok1 || !ok2 {
			return ComparisonResult{}, fmt.Errorf("override comparison needs two state overrides, got %T and %T", expected, actual)
		}
		return CompareStateOverride(e, a), nil
	case KindChange:
		e, ok1 := expected.(task.StateChange)
		a, ok2 := actual.(task.StateChange)
		if !ok1 || !ok2 {
			return ComparisonResult{}, fmt.Errorf("change comparison needs two state changes, got %T and %T", expected, actual)
		}
		return CompareStateChange(e, a), nil
	}
	return ComparisonResult{}, fmt.Errorf("unknown comparison kind %q", kind)
}

// CompareStateOverride diffs name, address and every override slot position
// by position. Descriptions only take part when one side is missing the slot.
func CompareStateOverride(expected, actual task.StateOverride) ComparisonResult {
	var c collector
	c.field("name", "name", expected.Name, actual.Name)
	c.field("address", "address", expected.Address, actual.Address)

	for i := 0; i < max(len(expected.Overrides), len(actual.Overrides)); i++ {
		prefix := fmt.Sprintf("overrides[%d]", i)
		switch {
		case i >= len(expected.Overrides):
			a := actual.Overrides[i]
			c.unpaired("key", prefix+".key", "", a.Key)
			c.unpaired("value", prefix+".value", "", a.Value)
			c.unpaired("description", prefix+".description", "", a.Description)
		case i >= len(actual.Overrides):
			e := expected.Overrides[i]
			c.unpaired("key", prefix+".key", e.Key, "")
			c.unpaired("value", prefix+".value", e.Value, "")
			c.unpaired("description", prefix+".description", e.Description, "")
		default:
			e, a := expected.Overrides[i], actual.Overrides[i]
			c.field("key", prefix+".key", e.Key, a.Key)
			c.field("value", prefix+".value", e.Value, a.Value)
		}
	}

	return c.result("StateOverride")
}

// CompareStateChange is CompareStateOverride for before/after slot changes.
func CompareStateChange(expected, actual task.StateChange) ComparisonResult {
	var c collector
	c.field("name", "name", expected.Name, actual.Name)
	c.field("address", "address", expected.Address, actual.Address)

	for i := 0; i < max(len(expected.Changes), len(actual.Changes)); i++ {
		prefix := fmt.Sprintf("changes[%d]", i)
		switch {
		case i >= len(expected.Changes):
			a := actual.Changes[i]
			c.unpaired("key", prefix+".key", "", a.Key)
			c.unpaired("before", prefix+".before", "", a.Before)
			c.unpaired("after", prefix+".after", "", a.After)
			c.unpaired("description", prefix+".description", "", a.Description)
		case i >= len(actual.Changes):
			e := expected.Changes[i]
			c.unpaired("key", prefix+".key", e.Key, "")
			c.unpaired("before", prefix+".before", e.Before, "")
			c.unpaired("after", prefix+".after", e.After, "")
			c.unpaired("description", prefix+".description", e.Description, "")
		default:
			e, a := expected.Changes[i], actual.Changes[i]
			c.field("key", prefix+".key", e.Key, a.Key)
			c.field("before", prefix+".before", e.Before, a.Before)
			c.field("after", prefix+".after", e.After, a.After)
		}
	}

	return c.result("StateChange")
}

// FieldsEqual reports whether two field values compare as unchanged.
func FieldsEqual(expected, actual string) bool {
	return expected == actual
}

type collector struct {
	fields     []FieldDiff
	matching   int
	mismatched int
}

func (c *collector) field(name, path, expected, actual string) {
	if c.record(name, path, expected, actual) == Unchanged {
		c.matching++
	} else {
		c.mismatched++
	}
}

// unpaired records a field of a slot present on one side only. It always
// counts as mismatched, even when the present value is itself empty.
func (c *collector) unpaired(name, path, expected, actual string) {
	c.record(name, path, expected, actual)
	c.mismatched++
}

func (c *collector) record(name, path, expected, actual string) DiffType {
	t := Modified
	if FieldsEqual(expected, actual) {
		t = Unchanged
	}
	c.fields = append(c.fields, FieldDiff{
		Field:    name,
		Path:     path,
		Expected: expected,
		Actual:   actual,
		Diffs:    Strings(expected, actual),
		Type:     t,
	})
	return t
}

func (c *collector) result(objectType string) ComparisonResult {
	status := StatusMatch
	summary := objectType + " objects match perfectly"
	if c.mismatched > 0 {
		status = StatusMismatch
		summary = fmt.Sprintf("%s differences found: %d/%d fields differ", objectType, c.mismatched, len(c.fields))
	}

	stats := Stats{
		TotalFields:      len(c.fields),
		MatchingFields:   c.matching,
		MismatchedFields: c.mismatched,
	}
	for _, f := range c.fields {
		if f.Expected == "" {
			stats.AddedFields++
		}
		if f.Actual == "" {
			stats.RemovedFields++
		}
	}

	fields := c.fields
	if fields == nil {
		fields = []FieldDiff{}
	}
	return ComparisonResult{
		Summary: summary,
		Status:  status,
		Diffs:   []ObjectDiff{{Type: objectType, FieldDiffs: fields, Status: status}},
		Stats:   stats,
	}
}
