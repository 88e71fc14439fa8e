package target

import (
	"strings"

	"github.com/johndauphine/accdb-pg-migrate/internal/source"
	"github.com/johndauphine/accdb-pg-migrate/internal/typemap"
	"github.com/johndauphine/accdb-pg-migrate/internal/value"
)

// GenerateDDL returns the CREATE TABLE statement for a source table.
// The table name is always quoted; column names are lower-cased.
func GenerateDDL(t *source.Table) string {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	sb.WriteString(quotePGIdent(t.TargetName()))
	sb.WriteString(" (")
	for i, c := range t.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(typemap.ColumnDefinition(pgIdent(c.Name), c.TypeName, c.Size))
	}
	sb.WriteString(")")
	return sb.String()
}

// BuildInsert returns the INSERT statement for one row, with every value
// inlined as a literal.
func BuildInsert(table string, row []value.Value) string {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(pgIdent(table))
	sb.WriteString(" VALUES (")
	for i, v := range row {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(v.Literal())
	}
	sb.WriteString(")")
	return sb.String()
}
