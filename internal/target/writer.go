package target

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/johndauphine/accdb-pg-migrate/internal/logging"
)

// Writer executes statements on a single PostgreSQL connection whose
// search_path is the target schema.
type Writer struct {
	conn   *pgx.Conn
	schema string
}

// NewWriter connects to dsn and pings the server. There is no retry: a
// destination that cannot be reached is fatal.
func NewWriter(ctx context.Context, dsn, schema string) (*Writer, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing dsn: %w", err)
	}
	if schema == "" {
		schema = "public"
	}
	cfg.RuntimeParams["search_path"] = schema

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Writer{conn: conn, schema: schema}, nil
}

// Close closes the connection.
func (w *Writer) Close(ctx context.Context) error {
	return w.conn.Close(ctx)
}

// Schema returns the target schema.
func (w *Writer) Schema() string {
	return w.schema
}

// TableExists reports whether the lower-cased table exists in the target
// schema.
func (w *Writer) TableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	err := w.conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_tables WHERE schemaname = $1 AND tablename = $2)`,
		w.schema, strings.ToLower(table)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", table, err)
	}
	return exists, nil
}

// DropTable drops the lower-cased table. It commits on its own.
func (w *Writer) DropTable(ctx context.Context, table string) error {
	if _, err := w.conn.Exec(ctx, "DROP TABLE "+pgIdent(table)); err != nil {
		return fmt.Errorf("dropping table %s: %w", table, err)
	}
	return nil
}

// CreateTable runs a CREATE TABLE statement in its own transaction.
func (w *Writer) CreateTable(ctx context.Context, ddl string) error {
	return w.ExecBatch(ctx, []string{ddl})
}

// ExecBatch runs stmts in one transaction. On any failure the transaction
// is rolled back so the connection stays usable, and the first error is
// returned.
func (w *Writer) ExecBatch(ctx context.Context, stmts []string) (err error) {
	tx, err := w.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			// A cancelled ctx must not leave the session in an aborted transaction.
			if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				logging.Warn("Rollback failed: %v", rbErr)
			}
		}
	}()

	for _, stmt := range stmts {
		if _, err = tx.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// RowCount returns the row count of the lower-cased table.
func (w *Writer) RowCount(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := w.conn.QueryRow(ctx, "SELECT COUNT(*) FROM "+pgIdent(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting rows of %s: %w", table, err)
	}
	return n, nil
}
