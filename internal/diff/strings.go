package diff

import "unicode/utf8"

type DiffType string

const (
	Added     DiffType = "added"
	Removed   DiffType = "removed"
	Modified  DiffType = "modified"
	Unchanged DiffType = "unchanged"
)

// StringDiff is one segment of a character-level diff. Removed segments index
// into the expected string, added segments into the actual string and
// unchanged segments into the expected string. The indices are absent on the
// single segment returned for equal inputs.
type StringDiff struct {
	Type       DiffType `json:"type"`
	Value      string   `json:"value"`
	StartIndex *int     `json:"startIndex,omitempty"`
	EndIndex   *int     `json:"endIndex,omitempty"`
}

// Strings splits expected and actual into at most four segments: a shared
// prefix, the removed middle of expected, the added middle of actual and a
// shared suffix. It is not a minimal edit script; a single changed nibble in a
// hash shows up as one removed and one added character between the unchanged
// runs. Indices count runes, or bytes when either input is not valid UTF-8.
func Strings(expected, actual string) []StringDiff {
	if expected == actual {
		return []StringDiff{{Type: Unchanged, Value: expected}}
	}
	if utf8.ValidString(expected) && utf8.ValidString(actual) {
		return split([]rune(expected), []rune(actual), func(s []rune) string { return string(s) })
	}
	return split([]byte(expected), []byte(actual), func(s []byte) string { return string(s) })
}

func split[T comparable](exp, act []T, str func([]T) string) []StringDiff {
	shorter := min(len(exp), len(act))

	prefix := 0
	for prefix < shorter && exp[prefix] == act[prefix] {
		prefix++
	}

	suffix := 0
	for suffix < shorter-prefix && exp[len(exp)-1-suffix] == act[len(act)-1-suffix] {
		suffix++
	}

	segment := func(t DiffType, src []T, start, end int) StringDiff {
		return StringDiff{
			Type:       t,
			Value:      str(src[start:end]),
			StartIndex: &start,
			EndIndex:   &end,
		}
	}

	var diffs []StringDiff
	if prefix > 0 {
		diffs = append(diffs, segment(Unchanged, exp, 0, prefix))
	}
	if end := len(exp) - suffix; end > prefix {
		diffs = append(diffs, segment(Removed, exp, prefix, end))
	}
	if end := len(act) - suffix; end > prefix {
		diffs = append(diffs, segment(Added, act, prefix, end))
	}
	if suffix > 0 {
		diffs = append(diffs, segment(Unchanged, exp, len(exp)-suffix, len(exp)))
	}
	return diffs
}

// Reconstruct joins the segments belonging to one side of a diff: removed and
// unchanged segments rebuild the expected string, added and unchanged
// segments rebuild the actual one.
func Reconstruct(diffs []StringDiff, side DiffType) string {
	var out []byte
	for _, d := range diffs {
		if d.Type == Unchanged || d.Type == side {
			out = append(out, d.Value...)
		}
	}
	return string(out)
}
