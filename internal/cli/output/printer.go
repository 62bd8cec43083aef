package output

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Printer writes command results in one fixed format.
type Printer struct {
	w      io.Writer
	format Format
}

// NewPrinter creates a printer for the given format.
func NewPrinter(w io.Writer, format Format) *Printer {
	return &Printer{w: w, format: format}
}

// Print renders v. In table format v must implement TableRenderer;
// values that do not are rendered as JSON so -o table never fails on a
// plain struct.
func (p *Printer) Print(v any) error {
	switch p.format {
	case FormatJSON:
		return encodeJSON(p.w, v)
	case FormatYAML:
		return encodeYAML(p.w, v)
	case FormatTable:
		if r, ok := v.(TableRenderer); ok {
			return renderTable(p.w, r)
		}
		return encodeJSON(p.w, v)
	default:
		return fmt.Errorf("unknown output format %q", p.format)
	}
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func encodeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
