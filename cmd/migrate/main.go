package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/johndauphine/accdb-pg-migrate/internal/config"
	"github.com/johndauphine/accdb-pg-migrate/internal/logging"
	"github.com/johndauphine/accdb-pg-migrate/internal/orchestrator"
	_ "github.com/johndauphine/accdb-pg-migrate/internal/source/access"
	"github.com/johndauphine/accdb-pg-migrate/internal/util"
	"github.com/johndauphine/accdb-pg-migrate/internal/version"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// runFlags are accepted both by "run" and by the bare command, which runs
// a migration by default.
func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "source",
			Usage: "Path to the source .mdb/.accdb/.sqlite file",
		},
		&cli.StringFlag{
			Name:  "source-type",
			Usage: "Source type: access or sqlite",
		},
		&cli.StringFlag{
			Name:  "tables",
			Usage: "Comma-separated table names or patterns to migrate (default: all)",
		},
		&cli.StringFlag{
			Name:  "exclude-tables",
			Usage: "Comma-separated table names or patterns to skip",
		},
		&cli.IntFlag{
			Name:  "batch-size",
			Usage: "Statements per destination transaction",
		},
		&cli.StringFlag{
			Name:  "progress",
			Usage: "Progress display: markers or bar",
		},
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    version.Name,
		Usage:   version.Description,
		Version: version.Version,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "Path to configuration file (optional)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format: text or json",
			},
			&cli.StringFlag{
				Name:  "log-dir",
				Usage: "Directory for the dated log and replay files",
			},
		}, runFlags()...),
		Action: runMigration,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Migrate every source table (the default command)",
				Flags:  runFlags(),
				Action: runMigration,
			},
			{
				Name:   "plan",
				Usage:  "Print the DDL a run would execute without touching the destination",
				Flags:  runFlags(),
				Action: planMigration,
			},
			{
				Name:   "validate",
				Usage:  "Validate row counts between source and target",
				Flags:  runFlags(),
				Action: validateMigration,
			},
			{
				Name:  "replay",
				Usage: "Re-execute the statements of a replay file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Required: true,
						Usage:    "Replay file to execute",
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "File for statements that fail again (default: <file>.failed)",
					},
				},
				Action: replayStatements,
			},
		},
	}
}

// flagContext returns the nearest context in which name was set, so run
// flags work both before and after the subcommand name.
func flagContext(c *cli.Context, name string) *cli.Context {
	for _, ctx := range c.Lineage() {
		if ctx != nil && ctx.IsSet(name) {
			return ctx
		}
	}
	return nil
}

// loadConfig reads the config file and layers flags over it.
func loadConfig(c *cli.Context) (*config.Config, error) {
	str := func(name string, dst *string) {
		if fc := flagContext(c, name); fc != nil {
			*dst = fc.String(name)
		}
	}
	list := func(name string, dst *[]string) {
		if fc := flagContext(c, name); fc != nil {
			*dst = util.SplitList(fc.String(name))
		}
	}

	cfg, err := config.Load(c.String("config"), func(cfg *config.Config) {
		str("source", &cfg.Source.Path)
		str("source-type", &cfg.Source.Type)
		list("tables", &cfg.Migration.Tables)
		list("exclude-tables", &cfg.Migration.ExcludeTables)
		if fc := flagContext(c, "batch-size"); fc != nil {
			cfg.Migration.BatchSize = fc.Int("batch-size")
		}
		str("progress", &cfg.Migration.Progress)
		str("log-level", &cfg.Logging.Level)
		str("log-format", &cfg.Logging.Format)
		str("log-dir", &cfg.Logging.Dir)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// setupLogging routes the log to the dated log file.
func setupLogging(cfg *config.Config) (func(), error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logging.SetLevel(level)
	logging.SetFormat(cfg.Logging.Format)

	if err := os.MkdirAll(cfg.Logging.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log dir: %w", err)
	}
	closeLog, err := logging.OpenFile(cfg.LogFilePath(time.Now()))
	if err != nil {
		return nil, err
	}
	return func() {
		if err := closeLog(); err != nil {
			fmt.Fprintf(os.Stderr, "closing log file: %v\n", err)
		}
	}, nil
}

// prepare loads config and logging for a command.
func prepare(c *cli.Context) (*config.Config, func(), error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	done, err := setupLogging(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, done, nil
}

// signalContext is cancelled on SIGINT/SIGTERM. The statement in flight
// finishes or fails, then the command stops.
func signalContext(out io.Writer) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(out, "\nInterrupted. Stopping after the current statement...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

func runMigration(c *cli.Context) error {
	cfg, done, err := prepare(c)
	if err != nil {
		return err
	}
	defer done()

	ctx, cancel := signalContext(c.App.Writer)
	defer cancel()

	orch, err := orchestrator.New(ctx, cfg, c.App.Writer)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}
	defer orch.Close()

	sum, err := orch.Run(ctx)
	if err != nil {
		return err
	}
	if sum.Totals.Errors > 0 || sum.SchemaFailures() > 0 {
		fmt.Fprintf(c.App.Writer, "Completed with %d table errors and %d row errors; rejected rows are in %s\n",
			sum.SchemaFailures(), sum.Totals.Errors, sum.ReplayFile)
	}
	return nil
}

func planMigration(c *cli.Context) error {
	cfg, done, err := prepare(c)
	if err != nil {
		return err
	}
	defer done()

	ctx, cancel := signalContext(c.App.Writer)
	defer cancel()

	orch, err := orchestrator.NewSourceOnly(ctx, cfg, c.App.Writer)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}
	defer orch.Close()

	_, err = orch.Plan(ctx)
	return err
}

func validateMigration(c *cli.Context) error {
	cfg, done, err := prepare(c)
	if err != nil {
		return err
	}
	defer done()

	ctx, cancel := signalContext(c.App.Writer)
	defer cancel()

	orch, err := orchestrator.Connect(ctx, cfg, c.App.Writer)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}
	defer orch.Close()

	_, err = orch.Validate(ctx)
	return err
}

func replayStatements(c *cli.Context) error {
	cfg, done, err := prepare(c)
	if err != nil {
		return err
	}
	defer done()

	file := c.String("file")
	if _, err := os.Stat(file); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("replay file %s does not exist", file)
		}
		return err
	}
	out := c.String("out")
	if out == "" {
		out = filepath.Clean(file) + ".failed"
	}

	ctx, cancel := signalContext(c.App.Writer)
	defer cancel()

	orch, err := orchestrator.NewTargetOnly(ctx, cfg, c.App.Writer)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}
	defer orch.Close()

	_, err = orch.Replay(ctx, file, out)
	return err
}
