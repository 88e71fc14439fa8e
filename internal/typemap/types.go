package typemap

import "fmt"

// Destination types that never carry a size qualifier.
const (
	PGInteger = "integer"
	PGDouble  = "double precision"
)

// AccessToPostgres converts a source type tag to its PostgreSQL equivalent.
// Only the autonumber, long integer and double tags are rewritten; every
// other tag is passed through unchanged, case included.
func AccessToPostgres(typeName string) string {
	switch typeName {
	case "COUNTER":
		return PGInteger
	case "INTEGER":
		return PGInteger
	case "DOUBLE":
		return PGDouble
	default:
		return typeName
	}
}

// IsUnsized reports whether a destination type takes no size qualifier.
func IsUnsized(pgType string) bool {
	return pgType == PGInteger || pgType == PGDouble
}

// ColumnDefinition renders one column of a CREATE TABLE statement. ident
// is the destination identifier, already lower-cased and quoted as needed;
// it is written as given. A non-positive size drops the qualifier instead
// of emitting "(0)".
func ColumnDefinition(ident, typeName string, size int64) string {
	pgType := AccessToPostgres(typeName)
	if IsUnsized(pgType) || size <= 0 {
		return fmt.Sprintf("%s %s", ident, pgType)
	}
	return fmt.Sprintf("%s %s(%d)", ident, pgType, size)
}
