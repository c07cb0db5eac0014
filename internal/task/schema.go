package task

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var hashRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// validate holds the field-level constraints. eth_addr is the stock
// ^0x[0-9a-fA-F]{40}$ check; hash32 is registered below.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("hash32", func(fl validator.FieldLevel) bool {
		return hashRegex.MatchString(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("registering hash32 validation: %v", err))
	}
	return v
}

type kind int

const (
	kindString kind = iota
	kindInt
	kindObject
	kindArray
)

func (k kind) String() string {
	switch k {
	case kindString:
		return "string"
	case kindInt:
		return "number"
	case kindObject:
		return "object"
	case kindArray:
		return "array"
	}
	return "unknown"
}

// node is one declarative constraint: the JSON type a value must have, an
// optional validator tag applied to scalars and the message reported when the
// tag fails.
type node struct {
	name    string
	kind    kind
	tag     string
	message string
	fields  []node
	elem    *node
}

func addressNode(name string) node {
	return node{name: name, kind: kindString, tag: "eth_addr", message: "Invalid Ethereum address"}
}

func hashNode(name string) node {
	return node{name: name, kind: kindString, tag: "hash32", message: "Invalid hash format"}
}

func nonEmptyNode(name string) node {
	return node{name: name, kind: kindString, tag: "min=1", message: "String must contain at least 1 character(s)"}
}

var taskConfigSchema = node{
	kind: kindObject,
	fields: []node{
		nonEmptyNode("task_name"),
		nonEmptyNode("script_name"),
		nonEmptyNode("signature"),
		{name: "args", kind: kindString},
		{name: "ledger-id", kind: kindInt, tag: "gte=0", message: "Number must be greater than or equal to 0"},
		{
			name: "expected_domain_and_message_hashes",
			kind: kindObject,
			fields: []node{
				addressNode("address"),
				hashNode("domain_hash"),
				hashNode("message_hash"),
			},
		},
		{
			name:    "expected_nested_hash",
			kind:    kindString,
			tag:     "omitempty,hash32",
			message: "Must be empty string or valid 32-byte hex hash",
		},
		{
			name: "state_overrides",
			kind: kindArray,
			elem: &node{
				kind: kindObject,
				fields: []node{
					nonEmptyNode("name"),
					addressNode("address"),
					{
						name: "overrides",
						kind: kindArray,
						elem: &node{
							kind: kindObject,
							fields: []node{
								hashNode("key"),
								hashNode("value"),
								{name: "description", kind: kindString},
							},
						},
					},
				},
			},
		},
		{
			name: "state_changes",
			kind: kindArray,
			elem: &node{
				kind: kindObject,
				fields: []node{
					nonEmptyNode("name"),
					addressNode("address"),
					{
						name: "changes",
						kind: kindArray,
						elem: &node{
							kind: kindObject,
							fields: []node{
								hashNode("key"),
								hashNode("before"),
								hashNode("after"),
								{name: "description", kind: kindString},
							},
						},
					},
				},
			},
		},
	},
}

// check walks value against n and appends every violation to issues. It never
// stops at the first problem.
func (n node) check(value any, path []string, issues []Issue) []Issue {
	switch n.kind {
	case kindObject:
		obj, ok := value.(map[string]any)
		if !ok {
			return append(issues, typeIssue(path, n.kind, value))
		}
		for _, f := range n.fields {
			fieldPath := appendPath(path, f.name)
			v, present := obj[f.name]
			if !present {
				issues = append(issues, Issue{Path: fieldPath, Message: "Required"})
				continue
			}
			issues = f.check(v, fieldPath, issues)
		}
		return issues

	case kindArray:
		arr, ok := value.([]any)
		if !ok {
			return append(issues, typeIssue(path, n.kind, value))
		}
		for i, v := range arr {
			issues = n.elem.check(v, appendPath(path, fmt.Sprint(i)), issues)
		}
		return issues

	case kindString:
		s, ok := value.(string)
		if !ok {
			return append(issues, typeIssue(path, n.kind, value))
		}
		if n.tag != "" && validate.Var(s, n.tag) != nil {
			issues = append(issues, Issue{Path: path, Message: n.message})
		}
		return issues

	case kindInt:
		i, issue, ok := toInt(value, path)
		if !ok {
			return append(issues, issue)
		}
		if n.tag != "" && validate.Var(i, n.tag) != nil {
			issues = append(issues, Issue{Path: path, Message: n.message})
		}
		return issues
	}

	return issues
}

func toInt(value any, path []string) (int64, Issue, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), Issue{}, true
	case int64:
		return v, Issue{}, true
	case float64:
		if math.Trunc(v) != v || math.IsInf(v, 0) {
			return 0, Issue{Path: path, Message: "Expected integer, received float"}, false
		}
		switch {
		case v >= math.MaxInt64:
			return 0, Issue{Path: path, Message: fmt.Sprintf("Number must be less than or equal to %d", int64(math.MaxInt64))}, false
		case v < math.MinInt64:
			return math.MinInt64, Issue{}, true
		}
		return int64(v), Issue{}, true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, Issue{}, true
		}
		if f, err := v.Float64(); err == nil {
			return toInt(f, path)
		}
		return 0, Issue{Path: path, Message: "Expected integer, received float"}, false
	}
	return 0, typeIssue(path, kindInt, value), false
}

func typeIssue(path []string, want kind, got any) Issue {
	return Issue{
		Path:    path,
		Message: fmt.Sprintf("Expected %s, received %s", want, jsonTypeOf(got)),
	}
}

func jsonTypeOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64, int32, uint, uint64, json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

func appendPath(path []string, segment string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, segment)
}
