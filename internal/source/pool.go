package source

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/johndauphine/accdb-pg-migrate/internal/dbconfig"
	"github.com/johndauphine/accdb-pg-migrate/internal/logging"
	"github.com/johndauphine/accdb-pg-migrate/internal/value"
	_ "modernc.org/sqlite"
)

// Pool is the read-only handle on the source database file. It holds a
// single connection: desktop database engines serialize access anyway.
type Pool struct {
	db      *sql.DB
	config  *dbconfig.SourceConfig
	catalog Catalog
	decoder *value.Decoder
}

// NewPool opens and pings the source store described by cfg using dsn.
func NewPool(ctx context.Context, cfg *dbconfig.SourceConfig, dsn string) (*Pool, error) {
	driver, err := cfg.DriverName()
	if err != nil {
		return nil, err
	}
	catalog, err := CatalogFor(cfg.Type, dsn)
	if err != nil {
		return nil, err
	}
	dec, err := value.NewDecoder(cfg.Charset)
	if err != nil {
		return nil, fmt.Errorf("source charset: %w", err)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening connection: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logging.Debug("Opened %s source (charset=%q)", catalog.Name(), cfg.Charset)
	return &Pool{db: db, config: cfg, catalog: catalog, decoder: dec}, nil
}

// Close closes the connection.
func (p *Pool) Close() error {
	return p.db.Close()
}

// DB returns the underlying database handle.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Type returns the source store type ("access" or "sqlite").
func (p *Pool) Type() string {
	return p.catalog.Name()
}

// ListTables returns the names of all base tables.
func (p *Pool) ListTables(ctx context.Context) ([]string, error) {
	names, err := p.catalog.ListTables(ctx, p.db)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	return names, nil
}

// LoadColumns returns the table descriptor for name with its columns in
// ordinal order.
func (p *Pool) LoadColumns(ctx context.Context, name string) (*Table, error) {
	cols, err := p.catalog.LoadColumns(ctx, p.db, name)
	if err != nil {
		return nil, fmt.Errorf("loading columns for %s: %w", name, err)
	}
	return &Table{Name: name, Columns: cols}, nil
}

// QuoteTable returns name quoted for the source dialect.
func (p *Pool) QuoteTable(name string) string {
	return p.catalog.QuoteIdent(name)
}

// CountRows returns the exact row count of a table.
func (p *Pool) CountRows(ctx context.Context, name string) (int64, error) {
	var n int64
	err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+p.QuoteTable(name)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting rows of %s: %w", name, err)
	}
	return n, nil
}

// StreamRows reads every row of a table in source order and hands it to fn
// converted to values. Rows are read one at a time. A non-nil error from
// fn stops the scan and is returned as is.
func (p *Pool) StreamRows(ctx context.Context, name string, fn func(row []value.Value) error) error {
	rows, err := p.db.QueryContext(ctx, "SELECT * FROM "+p.QuoteTable(name))
	if err != nil {
		return fmt.Errorf("querying %s: %w", name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("reading columns of %s: %w", name, err)
	}
	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scanning %s: %w", name, err)
		}
		if err := fn(value.FromRow(raw, p.decoder)); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	return nil
}
