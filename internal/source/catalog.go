package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/johndauphine/accdb-pg-migrate/internal/dbconfig"
)

// Catalog hides how a source store lists its tables and describes their
// columns.
type Catalog interface {
	Name() string
	ListTables(ctx context.Context, db *sql.DB) ([]string, error)
	LoadColumns(ctx context.Context, db *sql.DB, table string) ([]Column, error)
	QuoteIdent(ident string) string
}

// ErrCatalogDenied is returned when the Access system catalog cannot be
// read. It is permanent: retrying does not help.
var ErrCatalogDenied = errors.New("no read permission on MSysObjects")

// CatalogFor returns the catalog for a source type. dsn is handed to the
// column describer registered for the type, if any.
func CatalogFor(sourceType, dsn string) (Catalog, error) {
	switch sourceType {
	case dbconfig.SourceAccess, "":
		return accessCatalog{dsn: dsn, describe: describerFor(dbconfig.SourceAccess)}, nil
	case dbconfig.SourceSQLite:
		return sqliteCatalog{}, nil
	default:
		return nil, fmt.Errorf("unsupported source type %q", sourceType)
	}
}

// accessCatalog reads the Jet/ACE system table. User tables are type 1
// with no flags; linked and system tables are excluded. Column types come
// from the registered ODBC describer, because the database/sql ODBC driver
// does not report them.
type accessCatalog struct {
	dsn      string
	describe DescribeFunc
}

func (accessCatalog) Name() string { return dbconfig.SourceAccess }

func (accessCatalog) ListTables(ctx context.Context, db *sql.DB) ([]string, error) {
	names, err := queryNames(ctx, db, `SELECT Name FROM MSysObjects WHERE Type = 1 AND Flags = 0 ORDER BY Name`)
	if err != nil && isReadPermissionError(err) {
		return nil, fmt.Errorf("%w (run GRANT SELECT ON MSysObjects TO Admin in the database, or name the tables in migration.tables): %v",
			ErrCatalogDenied, err)
	}
	return names, err
}

// isReadPermissionError matches the Jet/ACE "Records cannot be read; no
// read permission on 'MSysObjects'" failure.
func isReadPermissionError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "no read permission")
}

func (c accessCatalog) LoadColumns(ctx context.Context, db *sql.DB, table string) ([]Column, error) {
	query := "SELECT * FROM " + c.QuoteIdent(table) + " WHERE 1 = 0"
	if c.describe == nil {
		return columnsFromResult(ctx, db, query)
	}

	native, err := c.describe(ctx, c.dsn, query)
	if err != nil {
		return nil, err
	}
	cols := make([]Column, len(native))
	for i, nc := range native {
		tag, size, err := AccessTag(nc)
		if err != nil {
			return nil, err
		}
		cols[i] = Column{Name: nc.Name, TypeName: tag, Size: size, Ordinal: i + 1}
	}
	return cols, nil
}

func (accessCatalog) QuoteIdent(ident string) string {
	return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
}

// sqliteCatalog reads sqlite_master and PRAGMA table_info, which keep the
// declared type text ("TEXT(50)") so the size survives.
type sqliteCatalog struct{}

func (sqliteCatalog) Name() string { return dbconfig.SourceSQLite }

func (sqliteCatalog) ListTables(ctx context.Context, db *sql.DB) ([]string, error) {
	return queryNames(ctx, db,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
}

func (sqliteCatalog) LoadColumns(ctx context.Context, db *sql.DB, table string) ([]Column, error) {
	rows, err := db.QueryContext(ctx, `SELECT cid, name, type FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var cid int
		var name, declared string
		if err := rows.Scan(&cid, &name, &declared); err != nil {
			return nil, err
		}
		tag, size := ParseDeclaredType(declared)
		cols = append(cols, Column{Name: name, TypeName: tag, Size: size, Ordinal: cid + 1})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s has no columns", table)
	}
	return cols, nil
}

func (sqliteCatalog) QuoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func queryNames(ctx context.Context, db *sql.DB, query string) ([]string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

var declaredTypeRe = regexp.MustCompile(`^\s*([^(]*?)\s*(?:\(\s*(\d+)\s*(?:,\s*\d+\s*)?\))?\s*$`)

// ParseDeclaredType splits a declared type such as "TEXT(50)" or
// "DECIMAL(10,2)" into its tag and leading size. The tag keeps its case.
func ParseDeclaredType(declared string) (string, int64) {
	m := declaredTypeRe.FindStringSubmatch(declared)
	if m == nil {
		return strings.TrimSpace(declared), 0
	}
	var size int64
	if m[2] != "" {
		size, _ = strconv.ParseInt(m[2], 10, 64)
	}
	return m[1], size
}

// columnsFromResult describes the columns of an empty result through
// database/sql. Every column must carry a database type name; drivers that
// leave it blank fail with ErrNoTypeInfo instead of guessing a type.
func columnsFromResult(ctx context.Context, db *sql.DB, query string) ([]Column, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	cols := make([]Column, len(types))
	for i, ct := range types {
		if ct.DatabaseTypeName() == "" {
			return nil, fmt.Errorf("%w: column %s", ErrNoTypeInfo, ct.Name())
		}
		cols[i] = columnFromType(i+1, ct)
	}
	return cols, rows.Err()
}

func columnFromType(ordinal int, ct *sql.ColumnType) Column {
	col := Column{Name: ct.Name(), TypeName: ct.DatabaseTypeName(), Ordinal: ordinal}
	if n, ok := ct.Length(); ok && n > 0 && n < 1<<31 {
		col.Size = n
	} else if p, _, ok := ct.DecimalSize(); ok && p > 0 {
		col.Size = p
	}
	return col
}
