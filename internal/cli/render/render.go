// Package render prints read results for the command-line hosts.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/duckgrid/duckgrid/internal/tabular"
)

const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// CheckFormat rejects output formats the renderers do not know.
func CheckFormat(format string) error {
	switch format {
	case FormatTable, FormatJSON:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want table or json)", format)
	}
}

func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Data prints a result set with columns in their result order.
func Data(w io.Writer, data tabular.ParsedData, format string) error {
	if format == FormatJSON {
		return JSON(w, data)
	}
	if len(data.Rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}

	t := newTable(w)
	header := make(table.Row, len(data.Columns))
	for i, col := range data.Columns {
		header[i] = col.Name
	}
	t.AppendHeader(header)
	for _, row := range data.Rows {
		out := make(table.Row, len(data.Columns))
		for i, col := range data.Columns {
			out[i] = formatValue(row[col.Name])
		}
		t.AppendRow(out)
	}
	t.Render()

	footer := fmt.Sprintf("(%d rows", len(data.Rows))
	if data.TotalRows > int64(len(data.Rows)) {
		footer += fmt.Sprintf(" of %d", data.TotalRows)
	}
	if data.Truncated {
		footer += ", truncated"
	}
	_, _ = fmt.Fprintln(w, footer+")")
	return nil
}

// Columns prints a column list as name/type pairs.
func Columns(w io.Writer, columns []tabular.Column, format string) error {
	if format == FormatJSON {
		return JSON(w, columns)
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"Column", "Type"})
	for _, col := range columns {
		t.AppendRow(table.Row{col.Name, string(col.Type)})
	}
	t.Render()
	return nil
}

// Names prints a single-column list such as tables or sheets.
func Names(w io.Writer, title string, names []string, format string) error {
	if format == FormatJSON {
		if names == nil {
			names = []string{}
		}
		return JSON(w, names)
	}
	if len(names) == 0 {
		_, _ = fmt.Fprintf(w, "(no %s)\n", strings.ToLower(title))
		return nil
	}
	t := newTable(w)
	t.AppendHeader(table.Row{title})
	for _, name := range names {
		t.AppendRow(table.Row{name})
	}
	t.Render()
	return nil
}

// Fields prints key/value pairs in the given order.
func Fields(w io.Writer, keys []string, values map[string]any, format string) error {
	if format == FormatJSON {
		return JSON(w, values)
	}
	t := newTable(w)
	for _, key := range keys {
		t.AppendRow(table.Row{key, formatValue(values[key])})
	}
	t.Render()
	return nil
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func formatValue(v any) string {
	switch value := v.(type) {
	case nil:
		return "NULL"
	case map[string]any, []any:
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprintf("%v", value)
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", value)
	}
}
