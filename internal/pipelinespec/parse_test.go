package pipelinespec

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestParseRejectsEmpty(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\t\n"} {
		_, err := Parse(in)
		if !errors.Is(err, ErrEmptySpec) {
			t.Fatalf("Parse(%q) err = %v, want ErrEmptySpec", in, err)
		}
		if !strings.Contains(err.Error(), "Empty spec") {
			t.Fatalf("message %q lacks Empty spec", err)
		}
	}
}

func TestParseErrorsAreWrapped(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		format string
	}{
		{"broken json", `{"name": `, "json"},
		{"trailing json", `{"a":1} {"b":2}`, "json"},
		{"broken yaml", "name: [unclosed", "yaml"},
		{"mapping then sequence", "a: 1\n- b", "yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.in)
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("err = %v, want *ParseError", err)
			}
			if pe.Format != tt.format {
				t.Fatalf("format = %q, want %q", pe.Format, tt.format)
			}
			if !strings.HasPrefix(err.Error(), "Invalid JSON/YAML: ") {
				t.Fatalf("message = %q", err)
			}
		})
	}
}

func TestParseYAMLAndJSONAgree(t *testing.T) {
	yamlText := `
name: demo-ui
replace_if_exists: true
blocks:
  - name: csv
    type: CSV_READER
    config:
      input_path: /app/data/input.csv
  - name: sent
    type: LLM_SENTIMENT
edges:
  - from: csv
    to: sent
`
	fromYAML, err := Parse(yamlText)
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	fromJSON, err := Parse(DemoText())
	if err != nil {
		t.Fatalf("json: %v", err)
	}

	a, _ := json.Marshal(fromYAML)
	b, _ := json.Marshal(fromJSON)
	if string(a) != string(b) {
		t.Fatalf("documents differ:\nyaml %s\njson %s", a, b)
	}
}

func TestParseNormalizesNonStringKeys(t *testing.T) {
	doc, err := Parse("1: one\ntrue: yes\nnested:\n  2: two\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := json.Marshal(doc); err != nil {
		t.Fatalf("document is not JSON encodable: %v", err)
	}
	m := doc.(map[string]any)
	if m["1"] != "one" || m["nested"].(map[string]any)["2"] != "two" {
		t.Fatalf("doc = %#v", doc)
	}
}

func TestFormat(t *testing.T) {
	if Format("  {\"a\":1}") != "json" || Format("a: 1") != "yaml" || Format(`["a"]`) != "yaml" {
		t.Fatal("unexpected format detection")
	}
}

// **Feature: pipeline-console, Property 7: Spec Parsing Round Trip**
// *For any* valid JSON object text, parsing SHALL yield a structurally equal
// document, and a YAML mapping of strings SHALL parse to the equal map.

func TestParseJSONObjects(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("JSON objects parse to equal documents", prop.ForAll(
		func(keys []string, n int) bool {
			obj := map[string]any{}
			for i, k := range keys {
				obj["k"+k] = n + i
			}
			obj["nested"] = map[string]any{"list": []any{"a", true, nil}}
			text, _ := json.Marshal(obj)

			got, err := Parse("  " + string(text) + "\n")
			if err != nil {
				t.Logf("Parse(%s): %v", text, err)
				return false
			}

			var want any
			dec := json.NewDecoder(strings.NewReader(string(text)))
			dec.UseNumber()
			dec.Decode(&want)
			return reflect.DeepEqual(got, want)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.IntRange(-1000, 1000),
	))

	properties.Property("YAML mappings of strings parse to maps", prop.ForAll(
		func(keys []string) bool {
			var b strings.Builder
			want := map[string]any{}
			for _, k := range keys {
				key := "k" + k
				b.WriteString(key + ": v" + k + "\n")
				want[key] = "v" + k
			}
			if b.Len() == 0 {
				return true
			}
			got, err := Parse(b.String())
			if err != nil {
				t.Logf("Parse(%q): %v", b.String(), err)
				return false
			}
			return reflect.DeepEqual(got, want)
		},
		gen.SliceOf(gen.Identifier()).Map(dedupe),
	))

	properties.TestingRun(t)
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func TestDemoText(t *testing.T) {
	doc, err := Parse(DemoText())
	if err != nil {
		t.Fatalf("demo spec does not parse: %v", err)
	}
	m := doc.(map[string]any)
	if m["name"] != "demo-ui" || m["replace_if_exists"] != true {
		t.Fatalf("demo = %#v", m)
	}
	if len(m["blocks"].([]any)) != 2 || len(m["edges"].([]any)) != 1 {
		t.Fatalf("demo blocks/edges = %#v", m)
	}
}
