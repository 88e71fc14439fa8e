package source

import "strings"

// Table is the metadata of one source table. It is not modified after
// LoadColumns fills it in.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// TargetName returns the destination table name, which is always the
// lower-cased source name.
func (t *Table) TargetName() string {
	return strings.ToLower(t.Name)
}

// ColumnNames returns the column names in ordinal order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column is the metadata of one source column.
type Column struct {
	Name     string `json:"name"`
	TypeName string `json:"type_name"` // Native type tag as reported, e.g. COUNTER, DOUBLE, VARCHAR
	Size     int64  `json:"size"`      // Declared size; 0 when the type has none
	Ordinal  int    `json:"ordinal"`
}
