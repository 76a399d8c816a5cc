package types

import (
	"fmt"
	"strings"
)

// Column is a named, ordered sequence of cells.
type Column struct {
	Name   string  `json:"name"`
	Values []Value `json:"values"`
}

// Table is an ordered set of equal-length columns. A Table is immutable once
// built; every transformation returns a new Table.
type Table struct {
	columns []Column
	rows    int
}

// NewTable builds a table from a header and row-major cells.
func NewTable(names []string, rows [][]Value) (*Table, error) {
	cols := make([][]Value, len(names))
	for c := range cols {
		cols[c] = make([]Value, len(rows))
	}
	for r, row := range rows {
		if len(row) != len(names) {
			return nil, fmt.Errorf("row %d has %d cells, expected %d", r, len(row), len(names))
		}
		for c, v := range row {
			cols[c][r] = v
		}
	}
	return FromColumns(names, cols)
}

// FromColumns builds a table from column-major cells. The table takes ownership
// of the slices; callers must not modify them afterwards.
func FromColumns(names []string, cols [][]Value) (*Table, error) {
	if len(names) != len(cols) {
		return nil, fmt.Errorf("got %d column names for %d columns", len(names), len(cols))
	}
	seen := make(map[string]struct{}, len(names))
	t := &Table{columns: make([]Column, len(names))}
	for i, name := range names {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("column %d has an empty name", i)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate column name %q", name)
		}
		seen[name] = struct{}{}
		if i > 0 && len(cols[i]) != len(cols[0]) {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", name, len(cols[i]), len(cols[0]))
		}
		t.columns[i] = Column{Name: name, Values: cols[i]}
	}
	if len(cols) > 0 {
		t.rows = len(cols[0])
	}
	return t, nil
}

// NumRows returns the row count.
func (t *Table) NumRows() int { return t.rows }

// NumColumns returns the column count.
func (t *Table) NumColumns() int { return len(t.columns) }

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the i-th column. The returned cells must be treated as read-only.
func (t *Table) Column(i int) Column { return t.columns[i] }

// ColumnByName looks up a column by name.
func (t *Table) ColumnByName(name string) (Column, bool) {
	for _, c := range t.columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Cell returns the cell at row r, column c.
func (t *Table) Cell(r, c int) Value { return t.columns[c].Values[r] }

// Row returns a copy of row r.
func (t *Table) Row(r int) []Value {
	row := make([]Value, len(t.columns))
	for c := range t.columns {
		row[c] = t.columns[c].Values[r]
	}
	return row
}

// Rows returns a copy of all rows.
func (t *Table) Rows() [][]Value {
	rows := make([][]Value, t.rows)
	for r := range rows {
		rows[r] = t.Row(r)
	}
	return rows
}

// Head returns a new table holding the first n rows.
func (t *Table) Head(n int) *Table {
	n = min(max(n, 0), t.rows)
	out := &Table{columns: make([]Column, len(t.columns)), rows: n}
	for i, c := range t.columns {
		vals := make([]Value, n)
		copy(vals, c.Values[:n])
		out.columns[i] = Column{Name: c.Name, Values: vals}
	}
	return out
}

// Records returns the rows as name -> raw value maps, limited to n rows.
func (t *Table) Records(n int) []map[string]any {
	n = min(max(n, 0), t.rows)
	out := make([]map[string]any, n)
	for r := 0; r < n; r++ {
		rec := make(map[string]any, len(t.columns))
		for _, c := range t.columns {
			rec[c.Name] = c.Values[r].Raw()
		}
		out[r] = rec
	}
	return out
}

// RowEquivalent reports whether every cell of row r of t is Equivalent to the
// matching cell of row s of o.
func (t *Table) RowEquivalent(r int, o *Table, s int) bool {
	if len(t.columns) != len(o.columns) {
		return false
	}
	for c := range t.columns {
		if !t.columns[c].Values[r].Equivalent(o.columns[c].Values[s]) {
			return false
		}
	}
	return true
}

// RowEqual reports whether row r of t equals row s of o.
func (t *Table) RowEqual(r int, o *Table, s int) bool {
	if len(t.columns) != len(o.columns) {
		return false
	}
	for c := range t.columns {
		if !t.columns[c].Values[r].Equal(o.columns[c].Values[s]) {
			return false
		}
	}
	return true
}
