// Package table holds the small column-oriented data model the pipeline
// builds from weather payloads and writes out as Parquet.
package table

// Row is a single record with ordered columns.
type Row struct {
	cols []string
	vals map[string]any
}

// NewRow returns an empty row.
func NewRow() Row {
	return Row{vals: make(map[string]any)}
}

// Set stores v under col. New columns are appended after existing ones.
func (r *Row) Set(col string, v any) {
	if r.vals == nil {
		r.vals = make(map[string]any)
	}
	if _, ok := r.vals[col]; !ok {
		r.cols = append(r.cols, col)
	}
	r.vals[col] = v
}

// Get returns the value of col.
func (r Row) Get(col string) (any, bool) {
	v, ok := r.vals[col]
	return v, ok
}

// Drop removes col from the row.
func (r *Row) Drop(col string) {
	if _, ok := r.vals[col]; !ok {
		return
	}
	delete(r.vals, col)
	for i, c := range r.cols {
		if c == col {
			r.cols = append(r.cols[:i:i], r.cols[i+1:]...)
			break
		}
	}
}

// Columns returns the column names in insertion order.
func (r Row) Columns() []string {
	out := make([]string, len(r.cols))
	copy(out, r.cols)
	return out
}

// Len returns the number of columns.
func (r Row) Len() int {
	return len(r.cols)
}

// Empty reports whether the row has no columns.
func (r Row) Empty() bool {
	return len(r.cols) == 0
}

// Merge appends the columns of other after the columns of r. Existing
// columns are overwritten in place.
func (r *Row) Merge(other Row) {
	for _, c := range other.cols {
		r.Set(c, other.vals[c])
	}
}

// Prefix returns a copy of r with every column renamed to prefix+column.
func (r Row) Prefix(prefix string) Row {
	out := NewRow()
	for _, c := range r.cols {
		out.Set(prefix+c, r.vals[c])
	}
	return out
}

// FlattenObject turns nested objects into a single level row, joining key
// paths with sep. Arrays are kept as values. Empty nested objects produce
// no column.
func FlattenObject(obj Object, sep string) Row {
	row := NewRow()
	flattenInto(&row, "", obj, sep)
	return row
}

func flattenInto(row *Row, prefix string, obj Object, sep string) {
	for _, m := range obj {
		key := m.Key
		if prefix != "" {
			key = prefix + sep + m.Key
		}
		if nested, ok := m.Value.(Object); ok {
			flattenInto(row, key, nested, sep)
			continue
		}
		row.Set(key, m.Value)
	}
}

// Table is an ordered set of rows sharing the union of their columns.
// Cells a row does not define read as null.
type Table struct {
	cols []string
	seen map[string]struct{}
	rows []Row
}

// New returns an empty table.
func New() *Table {
	return &Table{seen: make(map[string]struct{})}
}

// Concat stacks rows into a new table, indexed from zero in argument order.
// Columns are the union of all row columns in order of first appearance.
func Concat(rows ...Row) *Table {
	t := New()
	for _, r := range rows {
		t.Append(r)
	}
	return t
}

// Append adds r as the last row.
func (t *Table) Append(r Row) {
	if t.seen == nil {
		t.seen = make(map[string]struct{})
	}
	for _, c := range r.cols {
		if _, ok := t.seen[c]; !ok {
			t.seen[c] = struct{}{}
			t.cols = append(t.cols, c)
		}
	}
	t.rows = append(t.rows, r)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Empty reports whether the table has no rows.
func (t *Table) Empty() bool {
	return t.Len() == 0
}

// Columns returns the column names.
func (t *Table) Columns() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.cols))
	copy(out, t.cols)
	return out
}

// Value returns the cell at row i, column col. Missing cells are (nil, false).
func (t *Table) Value(i int, col string) (any, bool) {
	return t.rows[i].Get(col)
}
