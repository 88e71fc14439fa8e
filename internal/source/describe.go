package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoTypeInfo is returned when neither a registered describer nor the
// database/sql driver can report the native type of a column.
var ErrNoTypeInfo = errors.New("driver reports no column type information")

// NativeColumn is a result column as an ODBC driver describes it.
type NativeColumn struct {
	Name    string
	SQLType int   // ODBC SQL data type code (SQL_INTEGER, SQL_WVARCHAR, ...)
	Size    int64 // ODBC column size: characters, bytes or digits
}

// DescribeFunc prepares query against the store reached through dsn and
// describes its result columns without fetching rows.
type DescribeFunc func(ctx context.Context, dsn, query string) ([]NativeColumn, error)

var (
	describersMu sync.RWMutex
	describers   = make(map[string]DescribeFunc)
)

// RegisterDescriber installs the column describer for a source type.
// Driver packages call it from init.
func RegisterDescriber(sourceType string, fn DescribeFunc) {
	describersMu.Lock()
	defer describersMu.Unlock()
	describers[sourceType] = fn
}

func describerFor(sourceType string) DescribeFunc {
	describersMu.RLock()
	defer describersMu.RUnlock()
	return describers[sourceType]
}

// ODBC SQL data type codes (sql.h / sqlext.h).
const (
	sqlChar          = 1
	sqlNumeric       = 2
	sqlDecimal       = 3
	sqlInteger       = 4
	sqlSmallint      = 5
	sqlFloat         = 6
	sqlReal          = 7
	sqlDouble        = 8
	sqlDate          = 9
	sqlTime          = 10
	sqlTimestamp     = 11
	sqlVarchar       = 12
	sqlTypeDate      = 91
	sqlTypeTime      = 92
	sqlTypeTimestamp = 93
	sqlLongVarchar   = -1
	sqlBinary        = -2
	sqlVarBinary     = -3
	sqlLongVarBinary = -4
	sqlBigint        = -5
	sqlTinyint       = -6
	sqlBit           = -7
	sqlWChar         = -8
	sqlWVarchar      = -9
	sqlWLongVarchar  = -10
	sqlGUID          = -11
)

// AccessTag converts an ODBC column description to the Access type name
// and declared size. Only Text and Binary fields declare a length; every
// other type reports size 0. The driver describes autonumber fields as
// SQL_INTEGER, so they come back as INTEGER rather than COUNTER.
func AccessTag(col NativeColumn) (string, int64, error) {
	switch col.SQLType {
	case sqlBit:
		return "BIT", 0, nil
	case sqlTinyint:
		return "BYTE", 0, nil
	case sqlSmallint:
		return "SMALLINT", 0, nil
	case sqlInteger:
		return "INTEGER", 0, nil
	case sqlBigint:
		return "BIGINT", 0, nil
	case sqlReal:
		return "REAL", 0, nil
	case sqlFloat, sqlDouble:
		return "DOUBLE", 0, nil
	case sqlNumeric, sqlDecimal:
		return "DECIMAL", 0, nil
	case sqlDate, sqlTime, sqlTimestamp, sqlTypeDate, sqlTypeTime, sqlTypeTimestamp:
		return "DATETIME", 0, nil
	case sqlChar, sqlVarchar, sqlWChar, sqlWVarchar:
		return "VARCHAR", col.Size, nil
	case sqlLongVarchar, sqlWLongVarchar:
		return "LONGCHAR", 0, nil
	case sqlBinary, sqlVarBinary:
		return "BINARY", col.Size, nil
	case sqlLongVarBinary:
		return "LONGBINARY", 0, nil
	case sqlGUID:
		return "GUID", 0, nil
	default:
		return "", 0, fmt.Errorf("column %s: unsupported ODBC type %d", col.Name, col.SQLType)
	}
}
