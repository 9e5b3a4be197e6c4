// Package output renders recyctl's tabular terminal output.
package output

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
)

// RenderTable writes rows under the given headers to stdout. The style
// upper-cases headers, so callers can pass natural-case labels.
func RenderTable(headers []string, rows [][]interface{}) {
	w := table.NewWriter()
	w.SetOutputMirror(os.Stdout)
	w.SetStyle(table.StyleLight)

	hdr := make(table.Row, len(headers))
	for i, h := range headers {
		hdr[i] = h
	}
	w.AppendHeader(hdr)

	body := make([]table.Row, len(rows))
	for i, r := range rows {
		body[i] = table.Row(r)
	}
	w.AppendRows(body)

	w.Render()
}
