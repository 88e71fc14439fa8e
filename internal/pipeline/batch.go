package pipeline

import (
	"context"
	"time"
)

// Executor runs statements in a single transaction, rolling back on
// failure.
type Executor interface {
	ExecBatch(ctx context.Context, stmts []string) error
}

// FailureFunc is told about every statement the destination rejected.
type FailureFunc func(stmt string, err error)

// BatchWriter groups statements into transactions of up to size
// statements. A failed batch is rolled back and its statements re-run one
// per transaction, so a bad row only ever costs itself.
type BatchWriter struct {
	exec      Executor
	size      int
	onFailure FailureFunc
	pending   []string
	stats     Stats
}

// NewBatchWriter creates a writer. A size below 1 is treated as 1.
func NewBatchWriter(exec Executor, size int, onFailure FailureFunc) *BatchWriter {
	if size < 1 {
		size = 1
	}
	if onFailure == nil {
		onFailure = func(string, error) {}
	}
	return &BatchWriter{
		exec:      exec,
		size:      size,
		onFailure: onFailure,
		pending:   make([]string, 0, size),
	}
}

// Write queues stmt and flushes once the batch is full. Rejected
// statements are reported to the failure func, not returned; the only
// error returned is a cancelled context.
func (b *BatchWriter) Write(ctx context.Context, stmt string) error {
	b.stats.Rows++
	b.pending = append(b.pending, stmt)
	if len(b.pending) < b.size {
		return nil
	}
	return b.Flush(ctx)
}

// Flush executes whatever is queued.
func (b *BatchWriter) Flush(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}
	batch := b.pending
	b.pending = make([]string, 0, b.size)

	start := time.Now()
	defer func() { b.stats.WriteTime += time.Since(start) }()

	err := b.exec.ExecBatch(ctx, batch)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if len(batch) == 1 {
		b.reject(batch[0], err)
		return nil
	}

	for _, stmt := range batch {
		if err := b.exec.ExecBatch(ctx, []string{stmt}); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.reject(stmt, err)
		}
	}
	return nil
}

func (b *BatchWriter) reject(stmt string, err error) {
	b.stats.Errors++
	b.onFailure(stmt, err)
}

// Stats returns the counters accumulated so far.
func (b *BatchWriter) Stats() Stats {
	return b.stats
}
