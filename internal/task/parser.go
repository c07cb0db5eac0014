package task

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Issue is a single violated constraint. Path holds the field names and array
// indices leading to the offending value; it is empty for document-level
// problems such as malformed JSON.
type Issue struct {
	Path    []string `json:"path"`
	Message string   `json:"message"`
}

func (i Issue) PathString() string {
	return strings.Join(i.Path, ".")
}

func (i Issue) String() string {
	if len(i.Path) == 0 {
		return i.Message
	}
	return i.PathString() + ": " + i.Message
}

type ParseResult struct {
	Success bool    `json:"success"`
	Issues  []Issue `json:"errors,omitempty"`
}

type ParsedConfig struct {
	Config TaskConfig  `json:"config"`
	Result ParseResult `json:"result"`
}

// ParseConfig validates raw against the task configuration schema. raw is
// usually the output of json.Unmarshal into an `any`, but any value that
// marshals to JSON is accepted. Malformed input never produces an error:
// failures are reported in Result.Issues and Config is left at its zero value.
func ParseConfig(raw any) ParsedConfig {
	doc, err := normalize(raw)
	if err != nil {
		return failed(Issue{Message: fmt.Sprintf("Failed to parse configuration: %v", err)})
	}

	if issues := taskConfigSchema.check(doc, nil, nil); len(issues) > 0 {
		return failed(issues...)
	}

	cfg := defaultConfig()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "json",
		Result:     &cfg,
		DecodeHook: integralNumberHook,
	})
	if err != nil {
		return failed(Issue{Message: fmt.Sprintf("Failed to parse configuration: %v", err)})
	}
	if err := decoder.Decode(doc); err != nil {
		return failed(Issue{Message: fmt.Sprintf("Failed to parse configuration: %v", err)})
	}
	if cfg.StateOverrides == nil {
		cfg.StateOverrides = []StateOverride{}
	}
	if cfg.StateChanges == nil {
		cfg.StateChanges = []StateChange{}
	}

	return ParsedConfig{Config: cfg, Result: ParseResult{Success: true}}
}

// ParseFromString decodes text as JSON and validates it. A malformed document
// is reported as a single issue with an empty path.
func ParseFromString(text string) ParsedConfig {
	doc, err := decodeJSON([]byte(text))
	if err != nil {
		return failed(Issue{Message: fmt.Sprintf("Invalid JSON: %v", err)})
	}
	return ParseConfig(doc)
}

// ValidationSummary renders result as a human readable report.
func ValidationSummary(result ParseResult) string {
	if result.Success {
		return "Configuration is valid"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Configuration has errors (%d):", len(result.Issues))
	for _, issue := range result.Issues {
		b.WriteString("\n  - ")
		b.WriteString(issue.String())
	}
	return b.String()
}

func failed(issues ...Issue) ParsedConfig {
	return ParsedConfig{
		Config: defaultConfig(),
		Result: ParseResult{Success: false, Issues: issues},
	}
}

// normalize converts raw into the generic shape produced by encoding/json so
// the schema walk only has to deal with maps, slices, strings, bools, nil and
// json.Number.
func normalize(raw any) (any, error) {
	switch raw.(type) {
	case map[string]any, []any, string, bool, nil, json.Number, float64:
		if isGeneric(raw) {
			return raw, nil
		}
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	return decodeJSON(data)
}

func isGeneric(v any) bool {
	switch t := v.(type) {
	case map[string]any:
		for _, e := range t {
			if !isGeneric(e) {
				return false
			}
		}
		return true
	case []any:
		for _, e := range t {
			if !isGeneric(e) {
				return false
			}
		}
		return true
	case string, bool, nil, json.Number, float64, int, int64:
		return true
	}
	return false
}

// integralNumberHook decodes numbers such as 5.0 or 1e0 into integer fields.
// The schema has already rejected fractional and out of range values.
func integralNumberHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	n, ok := data.(json.Number)
	if !ok {
		return data, nil
	}
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
	default:
		return data, nil
	}
	if _, err := n.Int64(); err == nil {
		return data, nil
	}
	f, err := n.Float64()
	if err != nil {
		return data, nil
	}
	return int64(f), nil
}

func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("invalid character after top-level value")
	}
	return doc, nil
}
