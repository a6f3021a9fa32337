// Package pipelinespec parses pipeline specs pasted into the console.
package pipelinespec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrEmptySpec is returned for empty or whitespace-only input.
var ErrEmptySpec = errors.New("Empty spec")

// ParseError wraps any failure to turn spec text into a document.
type ParseError struct {
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	return "Invalid JSON/YAML: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Format names the syntax a spec text will be parsed as.
func Format(text string) string {
	if strings.HasPrefix(strings.TrimSpace(text), "{") {
		return "json"
	}
	return "yaml"
}

// Parse turns spec text into a generic document ready to be posted as JSON.
// Input starting with "{" after trimming is JSON; anything else is YAML.
func Parse(text string) (any, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, &ParseError{Err: ErrEmptySpec}
	}

	if Format(trimmed) == "json" {
		dec := json.NewDecoder(strings.NewReader(trimmed))
		dec.UseNumber()
		var doc any
		if err := dec.Decode(&doc); err != nil {
			return nil, &ParseError{Format: "json", Err: err}
		}
		if dec.More() {
			return nil, &ParseError{Format: "json", Err: errors.New("unexpected data after top-level value")}
		}
		return doc, nil
	}

	var doc any
	if err := yaml.Unmarshal([]byte(trimmed), &doc); err != nil {
		return nil, &ParseError{Format: "yaml", Err: err}
	}
	normalized, err := normalize(doc)
	if err != nil {
		return nil, &ParseError{Format: "yaml", Err: err}
	}
	return normalized, nil
}

// normalize converts YAML-decoded values into JSON-encodable ones.
// yaml.v3 yields map[string]any for string keys but map[any]any otherwise.
func normalize(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			n, err := normalize(val)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			n, err := normalize(val)
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(k)] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			n, err := normalize(val)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	default:
		return t, nil
	}
}

// Demo is the example pipeline offered by the editor.
var Demo = map[string]any{
	"name":              "demo-ui",
	"replace_if_exists": true,
	"blocks": []any{
		map[string]any{"name": "csv", "type": "CSV_READER", "config": map[string]any{"input_path": "/app/data/input.csv"}},
		map[string]any{"name": "sent", "type": "LLM_SENTIMENT"},
	},
	"edges": []any{
		map[string]any{"from": "csv", "to": "sent"},
	},
}

// DemoText renders Demo as indented JSON for the editor.
func DemoText() string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	_ = enc.Encode(Demo)
	return strings.TrimSpace(buf.String())
}
