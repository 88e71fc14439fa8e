// Package orchestrator coordinates the migration stages: connect,
// enumerate, translate schema, replicate rows.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/johndauphine/accdb-pg-migrate/internal/config"
	"github.com/johndauphine/accdb-pg-migrate/internal/logging"
	"github.com/johndauphine/accdb-pg-migrate/internal/replay"
	"github.com/johndauphine/accdb-pg-migrate/internal/retry"
	"github.com/johndauphine/accdb-pg-migrate/internal/source"
	"github.com/johndauphine/accdb-pg-migrate/internal/target"
	"github.com/johndauphine/accdb-pg-migrate/internal/value"
)

// ErrInterrupted is returned when the run is cancelled between or during
// tables.
var ErrInterrupted = errors.New("migration interrupted")

// SourceStore is the read side of a migration.
type SourceStore interface {
	ListTables(ctx context.Context) ([]string, error)
	LoadColumns(ctx context.Context, name string) (*source.Table, error)
	CountRows(ctx context.Context, name string) (int64, error)
	StreamRows(ctx context.Context, name string, fn func(row []value.Value) error) error
	Close() error
}

// TargetStore is the write side of a migration.
type TargetStore interface {
	TableExists(ctx context.Context, table string) (bool, error)
	DropTable(ctx context.Context, table string) error
	CreateTable(ctx context.Context, ddl string) error
	ExecBatch(ctx context.Context, stmts []string) error
	RowCount(ctx context.Context, table string) (int64, error)
	Close(ctx context.Context) error
}

// Orchestrator coordinates the migration process
type Orchestrator struct {
	config *config.Config
	source SourceStore
	target TargetStore
	replay *replay.File
	out    io.Writer
	retry  retry.Policy
}

// New opens the source and destination and creates the replay file. Any
// failure here is fatal to the run.
func New(ctx context.Context, cfg *config.Config, out io.Writer) (*Orchestrator, error) {
	o, err := Connect(ctx, cfg, out)
	if err != nil {
		return nil, err
	}

	rep, err := replay.Create(cfg.ReplayFilePath(time.Now()))
	if err != nil {
		o.Close()
		return nil, err
	}
	o.replay = rep
	return o, nil
}

// Connect opens the source and destination without touching the replay
// file.
func Connect(ctx context.Context, cfg *config.Config, out io.Writer) (*Orchestrator, error) {
	o, err := NewSourceOnly(ctx, cfg, out)
	if err != nil {
		return nil, err
	}
	if o.target, err = openTarget(ctx, cfg); err != nil {
		o.Close()
		return nil, err
	}
	return o, nil
}

// NewSourceOnly opens just the source, for read-only commands.
func NewSourceOnly(ctx context.Context, cfg *config.Config, out io.Writer) (*Orchestrator, error) {
	if err := cfg.RequireSource(); err != nil {
		return nil, err
	}
	src, err := source.NewPool(ctx, &cfg.Source, cfg.SourceDSN())
	if err != nil {
		logging.Error("Can't connect to source: %s", cfg.Source.Path)
		logging.Error("%v", err)
		return nil, fmt.Errorf("connecting to source: %w", err)
	}
	return NewWithStores(cfg, src, nil, nil, out), nil
}

// NewTargetOnly opens just the destination, for replaying statements.
func NewTargetOnly(ctx context.Context, cfg *config.Config, out io.Writer) (*Orchestrator, error) {
	tgt, err := openTarget(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithStores(cfg, nil, tgt, nil, out), nil
}

func openTarget(ctx context.Context, cfg *config.Config) (TargetStore, error) {
	tgt, err := target.NewWriter(ctx, cfg.TargetDSN(), cfg.Target.Schema)
	if err != nil {
		logging.Error("Can't connect to PostgreSQL: %s", cfg.RedactedTargetDSN())
		logging.Error("%v", err)
		return nil, fmt.Errorf("connecting to target: %w", err)
	}
	return tgt, nil
}

// NewWithStores assembles an orchestrator from already open stores. tgt
// and rep may be nil for commands that do not write.
func NewWithStores(cfg *config.Config, src SourceStore, tgt TargetStore, rep *replay.File, out io.Writer) *Orchestrator {
	if out == nil {
		out = io.Discard
	}
	return &Orchestrator{
		config: cfg,
		source: src,
		target: tgt,
		replay: rep,
		out:    out,
		retry:  retry.Fixed(cfg.Migration.EnumerateRetries, cfg.Migration.RetryInterval),
	}
}

// Close releases the stores and the replay file.
func (o *Orchestrator) Close() {
	if o.replay != nil {
		if err := o.replay.Close(); err != nil {
			logging.Warn("Closing replay file: %v", err)
		}
	}
	if o.target != nil {
		if err := o.target.Close(context.Background()); err != nil {
			logging.Warn("Closing target: %v", err)
		}
	}
	if o.source != nil {
		if err := o.source.Close(); err != nil {
			logging.Warn("Closing source: %v", err)
		}
	}
}

// enumerate lists the source tables with bounded retry, then applies the
// include/exclude filters. When the catalog is unreadable and the include
// list names tables literally, that list is used instead.
func (o *Orchestrator) enumerate(ctx context.Context) ([]string, error) {
	var names []string
	err := o.retry.Do(ctx, "listing source tables", func(ctx context.Context) error {
		var err error
		names, err = o.source.ListTables(ctx)
		if errors.Is(err, source.ErrCatalogDenied) {
			return retry.Stop(err)
		}
		return err
	})
	switch {
	case errors.Is(err, source.ErrCatalogDenied):
		literal, ok := literalTables(o.config.Migration.Tables)
		if !ok {
			logging.Error("%v", err)
			return nil, err
		}
		logging.Warn("Source catalog unreadable, using migration.tables: %v", literal)
		names = literal
	case errors.Is(err, retry.ErrExhausted):
		logging.Error("Retry time out.")
		return nil, err
	case err != nil:
		return nil, err
	}
	logging.Debug("Source tables: %v", names)

	filtered := filterTables(names, o.config.Migration.Tables, o.config.Migration.ExcludeTables)
	if len(filtered) != len(names) {
		logging.Info("Table filters kept %d of %d tables", len(filtered), len(names))
	}
	return filtered, nil
}

// literalTables returns the include patterns when none of them is a glob.
func literalTables(patterns []string) ([]string, bool) {
	if len(patterns) == 0 {
		return nil, false
	}
	for _, p := range patterns {
		if strings.ContainsAny(p, `*?[\`) {
			return nil, false
		}
	}
	return patterns, true
}

// filterTables keeps the tables matching any include pattern (all tables
// when there are none) and drops those matching an exclude pattern.
// Patterns use path.Match syntax and ignore case.
func filterTables(names, include, exclude []string) []string {
	var out []string
	for _, n := range names {
		if len(include) > 0 && !matchAny(n, include) {
			continue
		}
		if matchAny(n, exclude) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func matchAny(name string, patterns []string) bool {
	lower := strings.ToLower(name)
	for _, p := range patterns {
		if ok, err := path.Match(strings.ToLower(p), lower); err == nil && ok {
			return true
		}
	}
	return false
}
