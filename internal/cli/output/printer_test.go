package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type runReport struct {
	RunID   string `json:"run_id" yaml:"run_id"`
	Deleted int    `json:"deleted" yaml:"deleted"`
}

func TestPrinterJSON(t *testing.T) {
	var buf bytes.Buffer
	report := runReport{RunID: "run-1", Deleted: 3}

	if err := NewPrinter(&buf, FormatJSON).Print(report); err != nil {
		t.Fatalf("Print failed: %v", err)
	}

	var decoded runReport
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded != report {
		t.Errorf("decoded = %+v, want %+v", decoded, report)
	}
}

func TestPrinterYAML(t *testing.T) {
	var buf bytes.Buffer

	if err := NewPrinter(&buf, FormatYAML).Print(runReport{RunID: "run-1", Deleted: 3}); err != nil {
		t.Fatalf("Print failed: %v", err)
	}

	var decoded runReport
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
	if decoded.RunID != "run-1" || decoded.Deleted != 3 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestPrinterTableFallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer

	// runReport has no tabular form; table format still produces output.
	if err := NewPrinter(&buf, FormatTable).Print(runReport{RunID: "run-1"}); err != nil {
		t.Fatalf("Print failed: %v", err)
	}
	if !strings.Contains(buf.String(), "run-1") {
		t.Errorf("fallback output missing run id: %q", buf.String())
	}
}
