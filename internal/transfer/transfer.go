// Package transfer replicates the rows of one table.
package transfer

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/johndauphine/accdb-pg-migrate/internal/logging"
	"github.com/johndauphine/accdb-pg-migrate/internal/pipeline"
	"github.com/johndauphine/accdb-pg-migrate/internal/progress"
	"github.com/johndauphine/accdb-pg-migrate/internal/target"
	"github.com/johndauphine/accdb-pg-migrate/internal/value"
)

// RowSource streams the rows of a source table.
type RowSource interface {
	CountRows(ctx context.Context, table string) (int64, error)
	StreamRows(ctx context.Context, table string, fn func(row []value.Value) error) error
}

// StatementLog receives every statement the destination rejected.
type StatementLog interface {
	Append(stmt string) error
}

// Job represents a data transfer job
type Job struct {
	Table     string
	BatchSize int
}

// Execute copies every row of job.Table into the lower-cased destination
// table, one INSERT per row. Rejected rows are logged, appended to rejects
// and counted; they never stop the transfer. The returned error is a
// source read failure or a cancelled context.
func Execute(
	ctx context.Context,
	src RowSource,
	exec pipeline.Executor,
	rejects StatementLog,
	prog *progress.Tracker,
	out io.Writer,
	job Job,
) (pipeline.Stats, error) {
	logging.Info("### Processing table %s", job.Table)
	fmt.Fprintf(out, "### Processing table %s\n", job.Table)

	total := int64(-1)
	if prog.WantsTotal() {
		n, err := src.CountRows(ctx, job.Table)
		if err != nil {
			logging.Warn("Row count for %s unavailable: %v", job.Table, err)
		} else {
			total = n
		}
	}
	prog.Start(job.Table, total)

	bw := pipeline.NewBatchWriter(exec, job.BatchSize, func(stmt string, err error) {
		logging.Info("%s", stmt)
		if rerr := rejects.Append(stmt); rerr != nil {
			logging.Error("Writing replay file: %v", rerr)
		}
		logging.Error("[SQL ERROR] %v", err)
	})

	start := time.Now()
	err := src.StreamRows(ctx, job.Table, func(row []value.Value) error {
		if err := bw.Write(ctx, target.BuildInsert(job.Table, row)); err != nil {
			return err
		}
		prog.Add(1)
		return nil
	})
	if ferr := bw.Flush(ctx); err == nil {
		err = ferr
	}
	prog.Done()

	stats := bw.Stats()
	stats.ReadTime = time.Since(start) - stats.WriteTime

	summary := fmt.Sprintf("[Table %s] Total row:%d, Error row:%d", job.Table, stats.Rows, stats.Errors)
	logging.Info("%s", summary)
	fmt.Fprintln(out, summary)
	logging.Debug("[Table %s] %s", job.Table, stats.String())

	if err != nil {
		return stats, fmt.Errorf("transferring %s: %w", job.Table, err)
	}
	return stats, nil
}
