// Package format renders query results.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"

	"github.com/harshithgowdakt/granuleflow/internal/column"
	"github.com/harshithgowdakt/granuleflow/internal/pipeline"
	"github.com/harshithgowdakt/granuleflow/internal/types"
)

// Format specifies the result format.
type Format string

const (
	TabSeparated Format = "TabSeparated"
	CSV          Format = "CSV"
	JSON         Format = "JSON"
	Pretty       Format = "Pretty"
)

// Parse parses a format name, case-insensitively.
func Parse(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "tabseparated", "tsv":
		return TabSeparated, nil
	case "csv":
		return CSV, nil
	case "json":
		return JSON, nil
	case "pretty":
		return Pretty, nil
	default:
		return "", errors.Newf("unknown output format %q", s)
	}
}

// Write renders res to w. Totals and extremes follow the main rows in the
// text formats and get their own keys in JSON.
func Write(w io.Writer, res *pipeline.Result, f Format) error {
	switch f {
	case JSON:
		return writeJSON(w, res)
	case CSV:
		return writeDelimited(w, res, ",", quoteCSV)
	case Pretty:
		return writePretty(w, res)
	default:
		return writeDelimited(w, res, "\t", escapeTSV)
	}
}

func writeDelimited(w io.Writer, res *pipeline.Result, sep string, quote func(types.DataType, string) string) error {
	names := res.Header.Names()
	header := make([]string, len(names))
	for i, n := range names {
		header[i] = quote(types.TypeString, n)
	}
	if _, err := fmt.Fprintln(w, strings.Join(header, sep)); err != nil {
		return err
	}
	writeBlock := func(b *column.Block) error {
		for row := range b.NumRows() {
			vals := make([]string, b.NumColumns())
			for c, col := range b.Columns {
				vals[c] = quote(col.DataType(), formatValue(col.DataType(), col.Value(row)))
			}
			if _, err := fmt.Fprintln(w, strings.Join(vals, sep)); err != nil {
				return err
			}
		}
		return nil
	}
	for _, b := range res.Blocks {
		if err := writeBlock(b); err != nil {
			return err
		}
	}
	for _, side := range []*column.Block{res.Totals, res.Extremes} {
		if side == nil {
			continue
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
		if err := writeBlock(side); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(w io.Writer, res *pipeline.Result) error {
	type metaJSON struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	type resultJSON struct {
		Meta     []metaJSON       `json:"meta"`
		Data     []map[string]any `json:"data"`
		Totals   map[string]any   `json:"totals,omitempty"`
		Extremes map[string]any   `json:"extremes,omitempty"`
		Rows     int              `json:"rows"`
	}

	result := resultJSON{Data: []map[string]any{}}
	for _, c := range res.Header {
		result.Meta = append(result.Meta, metaJSON{Name: c.Name, Type: c.Type.Name()})
	}
	row := func(b *column.Block, i int) map[string]any {
		m := make(map[string]any, b.NumColumns())
		for c, name := range b.ColumnNames {
			m[name] = b.Columns[c].Value(i)
		}
		return m
	}
	for _, b := range res.Blocks {
		for i := range b.NumRows() {
			result.Data = append(result.Data, row(b, i))
		}
	}
	result.Rows = len(result.Data)
	if res.Totals != nil && res.Totals.NumRows() > 0 {
		result.Totals = row(res.Totals, 0)
	}
	if res.Extremes != nil && res.Extremes.NumRows() == 2 {
		result.Extremes = map[string]any{"min": row(res.Extremes, 0), "max": row(res.Extremes, 1)}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// writePretty draws a box table. Column names are bold, the totals and
// extremes sections are labelled in colour.
func writePretty(w io.Writer, res *pipeline.Result) error {
	names := res.Header.Names()
	widths := make([]int, len(names))
	for i, n := range names {
		widths[i] = utf8.RuneCountInString(n)
	}
	cells := func(b *column.Block) [][]string {
		rows := make([][]string, b.NumRows())
		for r := range rows {
			rows[r] = make([]string, b.NumColumns())
			for c, col := range b.Columns {
				s := formatValue(col.DataType(), col.Value(r))
				rows[r][c] = s
				if n := utf8.RuneCountInString(s); c < len(widths) && n > widths[c] {
					widths[c] = n
				}
			}
		}
		return rows
	}
	var main [][]string
	for _, b := range res.Blocks {
		main = append(main, cells(b)...)
	}
	var totals, extremes [][]string
	if res.Totals != nil {
		totals = cells(res.Totals)
	}
	if res.Extremes != nil {
		extremes = cells(res.Extremes)
	}

	bold := color.New(color.Bold)
	label := color.New(color.FgCyan)
	numeric := make([]bool, len(res.Header))
	for i, c := range res.Header {
		numeric[i] = c.Type.IsNumeric()
	}

	var sb strings.Builder
	rule := func(left, mid, right string) {
		sb.WriteString(left)
		for i, wd := range widths {
			if i > 0 {
				sb.WriteString(mid)
			}
			sb.WriteString(strings.Repeat("─", wd+2))
		}
		sb.WriteString(right)
		sb.WriteByte('\n')
	}
	line := func(vals []string, style *color.Color) {
		sb.WriteString("│")
		for i, v := range vals {
			if i >= len(widths) {
				break
			}
			pad := strings.Repeat(" ", widths[i]-utf8.RuneCountInString(v))
			cell := v + pad
			if numeric[i] && style == nil {
				cell = pad + v
			}
			if style != nil {
				cell = style.Sprint(cell)
			}
			sb.WriteString(" " + cell + " │")
		}
		sb.WriteByte('\n')
	}
	table := func(rows [][]string) {
		rule("┌", "┬", "┐")
		line(names, bold)
		rule("├", "┼", "┤")
		for _, r := range rows {
			line(r, nil)
		}
		rule("└", "┴", "┘")
	}

	table(main)
	if totals != nil {
		sb.WriteString("\n" + label.Sprint("Totals:") + "\n")
		table(totals)
	}
	if extremes != nil {
		sb.WriteString("\n" + label.Sprint("Extremes:") + "\n")
		table(extremes)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func formatValue(dt types.DataType, v types.Value) string {
	if v == nil {
		return "NULL"
	}
	switch dt {
	case types.TypeFloat32:
		return fmt.Sprintf("%g", v.(float32))
	case types.TypeFloat64:
		return fmt.Sprintf("%g", v.(float64))
	default:
		return types.ValueToString(v)
	}
}

func quoteCSV(dt types.DataType, s string) string {
	if dt == types.TypeString || strings.ContainsAny(s, ",\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

var tsvEscaper = strings.NewReplacer("\\", "\\\\", "\t", "\\t", "\n", "\\n")

func escapeTSV(_ types.DataType, s string) string {
	return tsvEscaper.Replace(s)
}
