package output

import (
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/marmos91/dittodoc/pkg/gc"
)

// TableRenderer is implemented by results that have a tabular form.
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
}

func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	return table
}

func renderTable(w io.Writer, r TableRenderer) error {
	table := newTable(w)
	table.SetAutoFormatHeaders(true)
	table.SetHeader(r.Headers())
	for _, row := range r.Rows() {
		table.Append(row)
	}
	table.Render()
	return nil
}

// KeyValues prints label/value pairs, one per row.
func KeyValues(w io.Writer, pairs [][2]string) error {
	table := newTable(w)
	table.SetAutoFormatHeaders(false)
	table.SetColumnSeparator(":")
	for _, pair := range pairs {
		table.Append([]string{pair[0], pair[1]})
	}
	table.Render()
	return nil
}

// NodeCounts renders GC statistics broken down by node type, one row
// per category (total, unreferenced, tombstoned, ...).
type NodeCounts struct {
	rows [][]string
}

// Add appends a category row.
func (t *NodeCounts) Add(category string, counts gc.TypeCounts) {
	t.rows = append(t.rows, []string{
		category,
		strconv.Itoa(counts.DataStores),
		strconv.Itoa(counts.Blobs),
		strconv.Itoa(counts.Other),
		strconv.Itoa(counts.Sum()),
	})
}

// Headers implements TableRenderer.
func (t *NodeCounts) Headers() []string {
	return []string{"", "datastores", "blobs", "other", "total"}
}

// Rows implements TableRenderer.
func (t *NodeCounts) Rows() [][]string {
	return t.rows
}
