package output

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
)

// Field is one labelled cell of a row. Value is nil, a bool, a number, a string,
// a []any or a map[string]any.
type Field struct {
	Label string
	Value any
}

// Row is one device's cells in display order
type Row []Field

// column tracks where a label first appeared and how wide it renders
type column struct {
	label string
	order int
	width int
}

// columnRegistry discovers the table schema from the rows themselves
type columnRegistry struct {
	byLabel map[string]*column
}

func newColumnRegistry() *columnRegistry {
	return &columnRegistry{byLabel: make(map[string]*column)}
}

func (r *columnRegistry) observe(label, rendered string) {
	width := runewidth.StringWidth(rendered)
	col, ok := r.byLabel[label]
	if !ok {
		col = &column{label: label, order: len(r.byLabel), width: runewidth.StringWidth(label)}
		r.byLabel[label] = col
	}
	if width > col.width {
		col.width = width
	}
}

// columns returns the columns in first-seen order
func (r *columnRegistry) columns() []column {
	cols := make([]column, 0, len(r.byLabel))
	for _, col := range r.byLabel {
		cols = append(cols, *col)
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].order < cols[j].order })
	return cols
}

// RenderTable lays rows out as an aligned table: a header, a separator and one line
// per row. Columns appear in the order their labels are first seen.
func RenderTable(rows []Row) string {
	registry := newColumnRegistry()
	cells := make([]map[string]string, 0, len(rows))

	for _, row := range rows {
		rendered := make(map[string]string, len(row))
		for _, field := range row {
			value := renderValue(field.Value)
			rendered[field.Label] = value
			registry.observe(field.Label, value)
		}
		cells = append(cells, rendered)
	}

	cols := registry.columns()
	lines := make([]string, 0, len(rows)+2)

	header := make([]string, 0, len(cols))
	dashes := make([]string, 0, len(cols))
	for _, col := range cols {
		header = append(header, pad(col.label, col.width))
		dashes = append(dashes, strings.Repeat("-", col.width))
	}
	lines = append(lines, " "+strings.Join(header, " | ")+" ")
	lines = append(lines, "-"+strings.Join(dashes, "-+-")+"-")

	for _, rendered := range cells {
		line := make([]string, 0, len(cols))
		for _, col := range cols {
			// missing cells are blank
			line = append(line, pad(rendered[col.label], col.width))
		}
		lines = append(lines, " "+strings.Join(line, " | ")+" ")
	}

	return strings.Join(lines, "\n")
}

func pad(value string, width int) string {
	return runewidth.FillRight(value, width)
}

// renderValue turns a cell value into its table text. Values outside the supported
// set mean a row was shaped wrongly, which is a bug.
func renderValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "-"
	case bool:
		return strconv.FormatBool(v)
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int8, int16, int32, int64:
		return fmt.Sprintf("%d", v)
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case []any:
		parts := make([]string, 0, len(v))
		for _, elem := range v {
			parts = append(parts, renderValue(elem))
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		encoded, err := json.Marshal(v)
		if err != nil {
			panic(fmt.Sprintf("(bug) cell value cannot be encoded: %v", err))
		}
		return string(encoded)
	default:
		panic(fmt.Sprintf("(bug) unsupported cell value of type %T", value))
	}
}
