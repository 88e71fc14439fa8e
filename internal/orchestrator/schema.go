package orchestrator

import (
	"context"
	"fmt"

	"github.com/johndauphine/accdb-pg-migrate/internal/logging"
	"github.com/johndauphine/accdb-pg-migrate/internal/source"
	"github.com/johndauphine/accdb-pg-migrate/internal/target"
)

// SchemaResult is the outcome of translating one table.
type SchemaResult struct {
	Table   string
	DDL     string
	Dropped bool
	Err     error
}

// createSchema drops and recreates every destination table. A table whose
// columns cannot be read or whose DDL is rejected is logged and left
// absent; the remaining tables still get created.
func (o *Orchestrator) createSchema(ctx context.Context, names []string) []SchemaResult {
	results := make([]SchemaResult, 0, len(names))
	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		results = append(results, o.createTable(ctx, name))
	}
	return results
}

func (o *Orchestrator) createTable(ctx context.Context, name string) SchemaResult {
	res := SchemaResult{Table: name}

	t, err := o.source.LoadColumns(ctx, name)
	if err != nil {
		logging.Error("%v", err)
		res.Err = err
		return res
	}
	res.DDL = target.GenerateDDL(t)

	exists, err := o.target.TableExists(ctx, t.TargetName())
	if err != nil {
		logging.Error("[SQL ERROR] %v", err)
		res.Err = err
		return res
	}
	if exists {
		if err := o.target.DropTable(ctx, t.TargetName()); err != nil {
			logging.Error("[SQL ERROR] %v", err)
			res.Err = err
			return res
		}
		res.Dropped = true
	}

	logging.Info("%s", res.DDL)
	if err := o.target.CreateTable(ctx, res.DDL); err != nil {
		logging.Error("[SQL ERROR] %v", err)
		res.Err = fmt.Errorf("creating table %s: %w", t.TargetName(), err)
	}
	return res
}

// PlanEntry is the DDL a run would issue for one table.
type PlanEntry struct {
	Table   *source.Table
	DDL     string
	Columns int
	Err     error
}

// Plan lists the source tables and prints the DDL a run would execute.
// Nothing is written to the destination.
func (o *Orchestrator) Plan(ctx context.Context) ([]PlanEntry, error) {
	names, err := o.enumerate(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]PlanEntry, 0, len(names))
	for _, name := range names {
		t, err := o.source.LoadColumns(ctx, name)
		if err != nil {
			logging.Error("%v", err)
			fmt.Fprintf(o.out, "-- %s: %v\n", name, err)
			entries = append(entries, PlanEntry{Table: &source.Table{Name: name}, Err: err})
			continue
		}
		ddl := target.GenerateDDL(t)
		fmt.Fprintf(o.out, "-- %s (%d columns)\n%s;\n", name, len(t.Columns), ddl)
		entries = append(entries, PlanEntry{Table: t, DDL: ddl, Columns: len(t.Columns)})
	}
	fmt.Fprintf(o.out, "-- %d tables\n", len(entries))
	return entries, nil
}
