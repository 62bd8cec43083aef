package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/marmos91/dittodoc/pkg/gc"
)

func TestKeyValues(t *testing.T) {
	var buf bytes.Buffer

	err := KeyValues(&buf, [][2]string{
		{"Container", "books"},
		{"Latest sequence", "4"},
	})
	if err != nil {
		t.Fatalf("KeyValues failed: %v", err)
	}

	got := buf.String()
	for _, want := range []string{"Container", "books", "Latest sequence", "4"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestNodeCountsTable(t *testing.T) {
	var counts NodeCounts
	counts.Add("Total", gc.TypeCounts{DataStores: 5, Blobs: 3, Other: 1})
	counts.Add("Deleted", gc.TypeCounts{Blobs: 2})

	rows := counts.Rows()
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0][4] != "9" {
		t.Errorf("Total sum = %s, want 9", rows[0][4])
	}
	if rows[1][2] != "2" || rows[1][4] != "2" {
		t.Errorf("Deleted row = %v", rows[1])
	}

	var buf bytes.Buffer
	if err := renderTable(&buf, &counts); err != nil {
		t.Fatalf("renderTable failed: %v", err)
	}
	got := buf.String()
	if !strings.Contains(got, "Deleted") || !strings.Contains(strings.ToUpper(got), "DATASTORES") {
		t.Errorf("unexpected table output:\n%s", got)
	}
}
