package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/johndauphine/accdb-pg-migrate/internal/logging"
)

// ValidationTimeout is the maximum time to wait for a single table's row count query.
const ValidationTimeout = 5 * time.Minute

// ErrValidation is returned when any table's counts differ or cannot be read.
var ErrValidation = errors.New("validation failed")

// ValidationResult holds the result of validating a single table.
type ValidationResult struct {
	Table       string
	SourceCount int64
	TargetCount int64
	Err         error
}

// OK reports whether both counts were read and match.
func (r ValidationResult) OK() bool {
	return r.Err == nil && r.SourceCount == r.TargetCount
}

// Validate compares source and destination row counts table by table.
func (o *Orchestrator) Validate(ctx context.Context) ([]ValidationResult, error) {
	names, err := o.enumerate(ctx)
	if err != nil {
		return nil, err
	}

	fmt.Fprintln(o.out, "Validation Results:")
	fmt.Fprintln(o.out, "-------------------")

	var results []ValidationResult
	failed := false
	for _, name := range names {
		r := o.validateTable(ctx, name)
		results = append(results, r)

		var line string
		switch {
		case r.Err != nil:
			line = fmt.Sprintf("%-30s ERROR: %v", r.Table, r.Err)
			logging.Error("%s", line)
			failed = true
		case r.OK():
			line = fmt.Sprintf("%-30s OK %d rows", r.Table, r.TargetCount)
			logging.Info("%s", line)
		default:
			line = fmt.Sprintf("%-30s FAIL source=%d target=%d (diff=%d)",
				r.Table, r.SourceCount, r.TargetCount, r.SourceCount-r.TargetCount)
			logging.Error("%s", line)
			failed = true
		}
		fmt.Fprintln(o.out, line)
	}

	if failed {
		return results, ErrValidation
	}
	return results, nil
}

// validateTable validates a single table's row count.
func (o *Orchestrator) validateTable(ctx context.Context, name string) ValidationResult {
	res := ValidationResult{Table: name}

	ctx, cancel := context.WithTimeout(ctx, ValidationTimeout)
	defer cancel()

	if res.SourceCount, res.Err = o.source.CountRows(ctx, name); res.Err != nil {
		return res
	}
	res.TargetCount, res.Err = o.target.RowCount(ctx, name)
	return res
}
