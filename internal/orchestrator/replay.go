package orchestrator

import (
	"context"
	"fmt"

	"github.com/johndauphine/accdb-pg-migrate/internal/logging"
	"github.com/johndauphine/accdb-pg-migrate/internal/pipeline"
	"github.com/johndauphine/accdb-pg-migrate/internal/replay"
)

// ReplayResult counts the outcome of re-running a replay file.
type ReplayResult struct {
	Statements int
	Applied    int
	Failed     int
	FailedFile string
}

// Replay re-executes the statements of a replay file, one transaction per
// statement. Statements that fail again are written to failedPath.
func (o *Orchestrator) Replay(ctx context.Context, path, failedPath string) (*ReplayResult, error) {
	stmts, err := replay.ReadFile(path)
	if err != nil {
		return nil, err
	}
	failed, err := replay.Create(failedPath)
	if err != nil {
		return nil, err
	}
	defer failed.Close()

	res := &ReplayResult{Statements: len(stmts), FailedFile: failedPath}
	bw := pipeline.NewBatchWriter(o.target, 1, func(stmt string, err error) {
		logging.Error("[SQL ERROR] %v", err)
		if ferr := failed.Append(stmt); ferr != nil {
			logging.Error("Writing %s: %v", failedPath, ferr)
		}
	})
	for _, stmt := range stmts {
		if err := bw.Write(ctx, stmt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInterrupted, err)
		}
	}

	st := bw.Stats()
	res.Failed = int(st.Errors)
	res.Applied = res.Statements - res.Failed
	fmt.Fprintf(o.out, "Replayed %d statements from %s: %d applied, %d failed\n",
		res.Statements, path, res.Applied, res.Failed)
	if res.Failed > 0 {
		fmt.Fprintf(o.out, "Still failing statements written to %s\n", failedPath)
	}
	return res, nil
}
