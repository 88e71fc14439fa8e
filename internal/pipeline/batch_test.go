package pipeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

// fakeExecutor rejects any transaction containing a statement with "bad"
// in it and records what was committed.
type fakeExecutor struct {
	committed []string
	calls     [][]string
	cancel    context.CancelFunc
}

func (f *fakeExecutor) ExecBatch(ctx context.Context, stmts []string) error {
	f.calls = append(f.calls, append([]string(nil), stmts...))
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, s := range stmts {
		if strings.Contains(s, "bad") {
			if f.cancel != nil {
				f.cancel()
				return context.Canceled
			}
			return fmt.Errorf("rejected: %s", s)
		}
	}
	f.committed = append(f.committed, stmts...)
	return nil
}

func TestBatchWriterFaultIsolation(t *testing.T) {
	for _, size := range []int{0, 1, 3, 10} {
		t.Run(fmt.Sprintf("size=%d", size), func(t *testing.T) {
			exec := &fakeExecutor{}
			var rejected []string
			w := NewBatchWriter(exec, size, func(stmt string, err error) {
				rejected = append(rejected, stmt)
			})

			ctx := context.Background()
			var want []string
			for i := 1; i <= 7; i++ {
				stmt := fmt.Sprintf("row %d", i)
				if i == 4 {
					stmt = "row 4 bad"
				} else {
					want = append(want, stmt)
				}
				if err := w.Write(ctx, stmt); err != nil {
					t.Fatalf("Write: %v", err)
				}
			}
			if err := w.Flush(ctx); err != nil {
				t.Fatalf("Flush: %v", err)
			}

			st := w.Stats()
			if st.Rows != 7 || st.Errors != 1 {
				t.Errorf("Stats = rows %d errors %d, want 7 and 1", st.Rows, st.Errors)
			}
			if !reflect.DeepEqual(rejected, []string{"row 4 bad"}) {
				t.Errorf("rejected = %v", rejected)
			}
			if !reflect.DeepEqual(exec.committed, want) {
				t.Errorf("committed = %v, want %v", exec.committed, want)
			}
		})
	}
}

func TestBatchWriterGroupsStatements(t *testing.T) {
	exec := &fakeExecutor{}
	w := NewBatchWriter(exec, 2, nil)
	ctx := context.Background()
	for _, s := range []string{"a", "b", "c"} {
		if err := w.Write(ctx, s); err != nil {
			t.Fatal(err)
		}
	}
	if len(exec.calls) != 1 {
		t.Fatalf("calls before flush = %d, want 1", len(exec.calls))
	}
	if err := w.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	want := [][]string{{"a", "b"}, {"c"}}
	if !reflect.DeepEqual(exec.calls, want) {
		t.Errorf("calls = %v, want %v", exec.calls, want)
	}
	if err := w.Flush(ctx); err != nil || len(exec.calls) != 2 {
		t.Errorf("empty Flush should not execute")
	}
}

func TestBatchWriterStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exec := &fakeExecutor{cancel: cancel}
	var rejected int
	w := NewBatchWriter(exec, 1, func(string, error) { rejected++ })

	if err := w.Write(ctx, "ok"); err != nil {
		t.Fatal(err)
	}
	err := w.Write(ctx, "bad")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Write() error = %v, want context.Canceled", err)
	}
	if rejected != 0 {
		t.Errorf("cancelled statement reported as rejected")
	}
}

func TestStats(t *testing.T) {
	var s Stats
	if s.String() != "rows=0, errors=0" {
		t.Errorf("String() = %q", s.String())
	}
	s.Add(Stats{Rows: 10, Errors: 2})
	s.Add(Stats{Rows: 5})
	if s.Rows != 15 || s.Errors != 2 {
		t.Errorf("Add: %+v", s)
	}
	if s.RowsPerSecond() != 0 {
		t.Errorf("RowsPerSecond() with no time = %v", s.RowsPerSecond())
	}
}
