// Package output renders command results as key-value tables, per-node-type
// GC count breakdowns, JSON, or YAML.
package output

import (
	"fmt"
	"strings"
)

// Format selects how a command result is rendered.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

var formatAliases = map[string]Format{
	"":      FormatTable,
	"table": FormatTable,
	"json":  FormatJSON,
	"yaml":  FormatYAML,
	"yml":   FormatYAML,
}

// ParseFormat resolves the -o flag value. An empty value means table.
func ParseFormat(s string) (Format, error) {
	f, ok := formatAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown output format %q, expected table, json or yaml", s)
	}
	return f, nil
}

func (f Format) String() string {
	return string(f)
}
