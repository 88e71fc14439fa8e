package orchestrator

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/johndauphine/accdb-pg-migrate/internal/config"
	"github.com/johndauphine/accdb-pg-migrate/internal/dbconfig"
	"github.com/johndauphine/accdb-pg-migrate/internal/replay"
	"github.com/johndauphine/accdb-pg-migrate/internal/retry"
	"github.com/johndauphine/accdb-pg-migrate/internal/source"
)

// fakeTarget is an in-memory destination. Tables are keyed by their
// lower-cased name and hold the committed INSERT statements.
type fakeTarget struct {
	tables     map[string][]string
	failCreate map[string]bool
	reject     string
	events     []string
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{tables: map[string][]string{}, failCreate: map[string]bool{}}
}

func (f *fakeTarget) TableExists(_ context.Context, table string) (bool, error) {
	_, ok := f.tables[strings.ToLower(table)]
	return ok, nil
}

func (f *fakeTarget) DropTable(_ context.Context, table string) error {
	f.events = append(f.events, "drop:"+strings.ToLower(table))
	delete(f.tables, strings.ToLower(table))
	return nil
}

func (f *fakeTarget) CreateTable(_ context.Context, ddl string) error {
	name := strings.SplitN(strings.TrimPrefix(ddl, `CREATE TABLE "`), `"`, 2)[0]
	f.events = append(f.events, "create:"+name)
	if f.failCreate[name] {
		return fmt.Errorf(`type "bogus" does not exist`)
	}
	f.tables[name] = nil
	return nil
}

func (f *fakeTarget) ExecBatch(ctx context.Context, stmts []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	staged := map[string][]string{}
	for _, s := range stmts {
		name := strings.Trim(strings.Fields(s)[2], `"`)
		if _, ok := f.tables[name]; !ok {
			return fmt.Errorf(`relation "%s" does not exist`, name)
		}
		if f.reject != "" && strings.Contains(s, f.reject) {
			return errors.New("invalid byte sequence")
		}
		staged[name] = append(staged[name], s)
	}
	for name, rows := range staged {
		f.events = append(f.events, "insert:"+name)
		f.tables[name] = append(f.tables[name], rows...)
	}
	return nil
}

func (f *fakeTarget) RowCount(_ context.Context, table string) (int64, error) {
	rows, ok := f.tables[strings.ToLower(table)]
	if !ok {
		return 0, fmt.Errorf(`relation "%s" does not exist`, strings.ToLower(table))
	}
	return int64(len(rows)), nil
}

func (f *fakeTarget) Close(context.Context) error { return nil }

// flakySource fails ListTables a fixed number of times.
type flakySource struct {
	SourceStore
	failures int
	calls    int
}

func (f *flakySource) ListTables(ctx context.Context) ([]string, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("database is locked")
	}
	return f.SourceStore.ListTables(ctx)
}

// deniedSource cannot read the table catalog.
type deniedSource struct {
	SourceStore
	calls int
}

func (d *deniedSource) ListTables(context.Context) ([]string, error) {
	d.calls++
	return nil, fmt.Errorf("listing tables: %w: Records cannot be read", source.ErrCatalogDenied)
}

func testConfig(t *testing.T, path string) *config.Config {
	t.Helper()
	cfg, err := config.Finish(&config.Config{
		Source:    config.SourceConfig{Type: dbconfig.SourceSQLite, Path: path},
		Target:    config.TargetConfig{Database: "ngii"},
		Migration: config.MigrationConfig{RetryInterval: time.Millisecond, EnumerateRetries: 2, ProgressEvery: 2, LineEvery: 4},
		Logging:   config.LoggingConfig{Dir: t.TempDir()},
	}, func(string) string { return "" })
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func newSQLiteSource(t *testing.T, stmts ...string) (*source.Pool, *config.Config) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "poi.sqlite")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
	db.Close()

	cfg := testConfig(t, path)
	p, err := source.NewPool(context.Background(), &cfg.Source, cfg.SourceDSN())
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p, cfg
}

var poiFixture = []string{
	`CREATE TABLE Items (ID COUNTER, Name TEXT(50), Price DOUBLE)`,
	`INSERT INTO Items VALUES (1, 'O''Brien', NULL)`,
	`INSERT INTO Items VALUES (2, 'poison', 1.5)`,
	`INSERT INTO Items VALUES (3, 'Widget', 2)`,
	`CREATE TABLE Shops (Code BOGUS(4), Name TEXT(20))`,
	`INSERT INTO Shops VALUES ('A1', 'North')`,
	`INSERT INTO Shops VALUES ('B2', 'South')`,
}

func TestRun(t *testing.T) {
	src, cfg := newSQLiteSource(t, poiFixture...)
	tgt := newFakeTarget()
	tgt.reject = "poison"
	tgt.failCreate["shops"] = true

	rep, err := replay.Create(cfg.ReplayFilePath(time.Now()))
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	o := NewWithStores(cfg, src, tgt, rep, &out)

	sum, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	rep.Close()

	if sum.RunID == "" {
		t.Error("missing run ID")
	}
	if sum.SchemaFailures() != 1 {
		t.Errorf("SchemaFailures() = %d, want 1", sum.SchemaFailures())
	}
	if sum.Totals.Rows != 5 || sum.Totals.Errors != 3 {
		t.Errorf("totals = %d rows, %d errors; want 5, 3", sum.Totals.Rows, sum.Totals.Errors)
	}
	if got := len(tgt.tables["items"]); got != 2 {
		t.Errorf("items rows = %d, want 2", got)
	}

	// Every table's DDL runs before any row is inserted.
	lastCreate, firstInsert := -1, len(tgt.events)
	for i, e := range tgt.events {
		if strings.HasPrefix(e, "create:") {
			lastCreate = i
		}
		if strings.HasPrefix(e, "insert:") && i < firstInsert {
			firstInsert = i
		}
	}
	if lastCreate > firstInsert {
		t.Errorf("schema and rows interleaved: %v", tgt.events)
	}

	data, err := os.ReadFile(sum.ReplayFile)
	if err != nil {
		t.Fatal(err)
	}
	wantReplay := `INSERT INTO items VALUES (2, E'poison', 1.5);` + "\n" +
		`INSERT INTO shops VALUES (E'A1', E'North');` + "\n" +
		`INSERT INTO shops VALUES (E'B2', E'South');` + "\n"
	if string(data) != wantReplay {
		t.Errorf("replay file =\n%s\nwant\n%s", data, wantReplay)
	}

	for _, want := range []string{
		"### Processing table Items\n",
		"[Table Items] Total row:3, Error row:1\n",
		"### Processing table Shops\n",
		"[Table Shops] Total row:2, Error row:2\n",
		"Transferred 5 rows",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("operator output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRunRecreatesExistingTable(t *testing.T) {
	src, cfg := newSQLiteSource(t, poiFixture[:4]...)
	tgt := newFakeTarget()
	tgt.tables["items"] = []string{"stale row"}

	o := NewWithStores(cfg, src, tgt, nil, nil)
	for i := 0; i < 2; i++ {
		sum, err := o.Run(context.Background())
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if !sum.Schema[0].Dropped {
			t.Errorf("run %d: existing table not dropped", i)
		}
		if got := len(tgt.tables["items"]); got != 3 {
			t.Errorf("run %d: items rows = %d, want 3", i, got)
		}
	}
}

func TestEnumerateRetries(t *testing.T) {
	src, cfg := newSQLiteSource(t, poiFixture...)

	flaky := &flakySource{SourceStore: src, failures: 2}
	o := NewWithStores(cfg, flaky, newFakeTarget(), nil, nil)
	names, err := o.enumerate(context.Background())
	if err != nil {
		t.Fatalf("enumerate: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"Items", "Shops"}) {
		t.Errorf("names = %v", names)
	}
	if flaky.calls != 3 {
		t.Errorf("calls = %d, want 3", flaky.calls)
	}

	broken := &flakySource{SourceStore: src, failures: 100}
	o = NewWithStores(cfg, broken, newFakeTarget(), nil, nil)
	_, err = o.Run(context.Background())
	if !errors.Is(err, retry.ErrExhausted) {
		t.Fatalf("Run() error = %v, want ErrExhausted", err)
	}
	if broken.calls != cfg.Migration.EnumerateRetries+1 {
		t.Errorf("calls = %d, want %d", broken.calls, cfg.Migration.EnumerateRetries+1)
	}
}

func TestEnumerateCatalogDenied(t *testing.T) {
	src, cfg := newSQLiteSource(t, poiFixture...)

	denied := &deniedSource{SourceStore: src}
	o := NewWithStores(cfg, denied, newFakeTarget(), nil, nil)
	_, err := o.enumerate(context.Background())
	if !errors.Is(err, source.ErrCatalogDenied) {
		t.Fatalf("enumerate() error = %v, want ErrCatalogDenied", err)
	}
	if errors.Is(err, retry.ErrExhausted) || denied.calls != 1 {
		t.Errorf("permission failure was retried: calls = %d, err = %v", denied.calls, err)
	}

	cfg.Migration.Tables = []string{"Items", "Shops"}
	cfg.Migration.ExcludeTables = []string{"shops"}
	names, err := o.enumerate(context.Background())
	if err != nil {
		t.Fatalf("enumerate with literal tables: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"Items"}) {
		t.Errorf("names = %v, want [Items]", names)
	}

	cfg.Migration.Tables = []string{"Item*"}
	if _, err := o.enumerate(context.Background()); !errors.Is(err, source.ErrCatalogDenied) {
		t.Errorf("glob include list should not replace the catalog, got %v", err)
	}
}

func TestRunCancelled(t *testing.T) {
	src, cfg := newSQLiteSource(t, poiFixture...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := NewWithStores(cfg, src, newFakeTarget(), nil, nil)
	if _, err := o.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestFilterTables(t *testing.T) {
	names := []string{"Items", "Shops", "tmp_Import", "MSysCompact"}
	tests := []struct {
		name    string
		include []string
		exclude []string
		want    []string
	}{
		{"no filters", nil, nil, names},
		{"include exact ignoring case", []string{"items"}, nil, []string{"Items"}},
		{"exclude glob", nil, []string{"tmp_*", "msys*"}, []string{"Items", "Shops"}},
		{"include then exclude", []string{"*s"}, []string{"shops"}, []string{"Items"}},
		{"nothing matches", []string{"nope"}, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := filterTables(names, tt.include, tt.exclude)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("filterTables() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPlan(t *testing.T) {
	src, cfg := newSQLiteSource(t, poiFixture...)
	var out bytes.Buffer
	o := NewWithStores(cfg, src, nil, nil, &out)

	entries, err := o.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	want := `CREATE TABLE "items" (id integer, name TEXT(50), price double precision)`
	if entries[0].DDL != want {
		t.Errorf("DDL = %s, want %s", entries[0].DDL, want)
	}
	if !strings.Contains(out.String(), want+";\n") || !strings.Contains(out.String(), "-- 2 tables") {
		t.Errorf("plan output:\n%s", out.String())
	}
}

func TestValidate(t *testing.T) {
	src, cfg := newSQLiteSource(t, poiFixture...)
	tgt := newFakeTarget()
	tgt.tables["items"] = []string{"a", "b", "c"}
	tgt.tables["shops"] = []string{"a"}

	var out bytes.Buffer
	o := NewWithStores(cfg, src, tgt, nil, &out)
	results, err := o.Validate(context.Background())
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate() error = %v, want ErrValidation", err)
	}
	if len(results) != 2 || !results[0].OK() || results[1].OK() {
		t.Errorf("results = %+v", results)
	}
	if !strings.Contains(out.String(), "FAIL source=2 target=1 (diff=1)") {
		t.Errorf("output:\n%s", out.String())
	}

	tgt.tables["shops"] = []string{"a", "b"}
	if _, err := o.Validate(context.Background()); err != nil {
		t.Errorf("Validate() after fix = %v", err)
	}
}

func TestReplay(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "ERR_SQL_20240307.sql")
	content := "INSERT INTO items VALUES (1, E'ok');\n" +
		"INSERT INTO items VALUES (2, E'poison');\n" +
		"INSERT INTO missing VALUES (3);\n"
	if err := os.WriteFile(in, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	tgt := newFakeTarget()
	tgt.tables["items"] = nil
	tgt.reject = "poison"
	cfg := testConfig(t, filepath.Join(dir, "unused.sqlite"))

	var out bytes.Buffer
	o := NewWithStores(cfg, nil, tgt, nil, &out)
	failedPath := in + ".failed"
	res, err := o.Replay(context.Background(), in, failedPath)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if res.Statements != 3 || res.Applied != 1 || res.Failed != 2 {
		t.Errorf("result = %+v", res)
	}

	data, err := os.ReadFile(failedPath)
	if err != nil {
		t.Fatal(err)
	}
	want := "INSERT INTO items VALUES (2, E'poison');\nINSERT INTO missing VALUES (3);\n"
	if string(data) != want {
		t.Errorf("failed file = %q, want %q", data, want)
	}
}

func TestNewSourceOnlyRequiresSource(t *testing.T) {
	cfg := testConfig(t, "")
	if _, err := NewSourceOnly(context.Background(), cfg, nil); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("NewSourceOnly() error = %v, want config.ErrInvalid", err)
	}
}
