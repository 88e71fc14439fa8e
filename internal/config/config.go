package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/johndauphine/accdb-pg-migrate/internal/dbconfig"
	"github.com/johndauphine/accdb-pg-migrate/internal/logging"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// SourceConfig and TargetConfig live in dbconfig so source/target can use
// them without importing config.
type (
	SourceConfig = dbconfig.SourceConfig
	TargetConfig = dbconfig.TargetConfig
)

// Progress display modes.
const (
	ProgressMarkers = "markers"
	ProgressBar     = "bar"
)

// Config is the full configuration of a migration run.
type Config struct {
	Source    SourceConfig    `yaml:"source"`
	Target    TargetConfig    `yaml:"target"`
	Migration MigrationConfig `yaml:"migration"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// MigrationConfig holds migration behaviour settings.
type MigrationConfig struct {
	BatchSize        int           `yaml:"batch_size"`        // Statements per destination transaction (default: 1)
	EnumerateRetries int           `yaml:"enumerate_retries"` // Retries after the first failed table listing (default: 10)
	RetryInterval    time.Duration `yaml:"retry_interval"`    // Wait between listing attempts (default: 1s)
	Progress         string        `yaml:"progress"`          // "markers" (default) or "bar"
	ProgressEvery    int64         `yaml:"progress_every"`    // Rows between progress markers (default: 10000)
	LineEvery        int64         `yaml:"line_every"`        // Rows between marker line breaks (default: 100000)
	Tables           []string      `yaml:"tables"`            // Only migrate these tables (default: all)
	ExcludeTables    []string      `yaml:"exclude_tables"`    // Never migrate these tables
}

// LoggingConfig holds log file settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error (default: error)
	Format string `yaml:"format"` // text (default) or json
	Dir    string `yaml:"dir"`    // Directory for the log and replay files (default: .)
}

// Load reads configuration from a YAML file. A missing file is not an
// error: defaults and environment overrides still apply. Overrides run
// after the environment is applied, so command-line flags win.
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
			logging.Debug("Config file %s not found, using defaults", path)
		default:
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	return Finish(cfg, os.Getenv, overrides...)
}

// Finish applies environment overrides, the given overrides and defaults,
// then validates.
func Finish(cfg *Config, getenv func(string) string, overrides ...func(*Config)) (*Config, error) {
	cfg.applyEnv(getenv)
	for _, o := range overrides {
		o(cfg)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("ACCDB_SOURCE_PATH"); v != "" {
		c.Source.Path = v
	}
	if v := getenv("PGHOST"); v != "" {
		c.Target.Host = v
	}
	if v := getenv("PGPORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Target.Port = p
		}
	}
	if v := getenv("PGDATABASE"); v != "" {
		c.Target.Database = v
	}
	if v := getenv("PGUSER"); v != "" {
		c.Target.User = v
	}
	if v := getenv("PGPASSWORD"); v != "" {
		c.Target.Password = v
	}
}

func (c *Config) applyDefaults() {
	if c.Source.Type == "" {
		c.Source.Type = dbconfig.SourceAccess
	}
	c.Source.Type = strings.ToLower(c.Source.Type)
	if c.Source.Type == dbconfig.SourceAccess && c.Source.Driver == "" {
		c.Source.Driver = dbconfig.DefaultAccessDriver
	}

	if c.Target.Host == "" {
		c.Target.Host = "localhost"
	}
	if c.Target.Port == 0 {
		c.Target.Port = 5432
	}
	if c.Target.User == "" {
		c.Target.User = "postgres"
	}
	if c.Target.Schema == "" {
		c.Target.Schema = "public"
	}
	if c.Target.SSLMode == "" {
		c.Target.SSLMode = "disable"
	}

	if c.Migration.BatchSize <= 0 {
		c.Migration.BatchSize = 1
	}
	if c.Migration.EnumerateRetries <= 0 {
		c.Migration.EnumerateRetries = 10
	}
	if c.Migration.RetryInterval <= 0 {
		c.Migration.RetryInterval = time.Second
	}
	if c.Migration.Progress == "" {
		c.Migration.Progress = ProgressMarkers
	}
	if c.Migration.ProgressEvery <= 0 {
		c.Migration.ProgressEvery = 10000
	}
	if c.Migration.LineEvery <= 0 {
		c.Migration.LineEvery = 100000
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "error"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = "."
	}
}

func (c *Config) validate() error {
	if _, err := c.Source.DriverName(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Target.Database == "" {
		return fmt.Errorf("%w: target.database is required", ErrInvalid)
	}
	if c.Target.Port < 1 || c.Target.Port > 65535 {
		return fmt.Errorf("%w: target.port %d out of range", ErrInvalid, c.Target.Port)
	}
	switch c.Migration.Progress {
	case ProgressMarkers, ProgressBar:
	default:
		return fmt.Errorf("%w: migration.progress must be %q or %q, got %q",
			ErrInvalid, ProgressMarkers, ProgressBar, c.Migration.Progress)
	}
	if c.Migration.LineEvery < c.Migration.ProgressEvery {
		return fmt.Errorf("%w: migration.line_every (%d) must not be below progress_every (%d)",
			ErrInvalid, c.Migration.LineEvery, c.Migration.ProgressEvery)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// RequireSource reports whether a source file or DSN is configured. Commands
// that only write to PostgreSQL do not need one.
func (c *Config) RequireSource() error {
	if c.Source.DSN == "" && c.Source.Path == "" {
		return fmt.Errorf("%w: source.path or source.dsn is required", ErrInvalid)
	}
	return nil
}

// SourceDSN returns the database/sql DSN for the source store.
func (c *Config) SourceDSN() string {
	if c.Source.DSN != "" {
		return c.Source.DSN
	}
	if c.Source.Type == dbconfig.SourceSQLite {
		return buildSQLiteDSN(c.Source.Path)
	}
	return buildAccessDSN(c.Source.Driver, c.Source.Path)
}

// TargetDSN returns the PostgreSQL connection URL.
func (c *Config) TargetDSN() string {
	return c.buildPostgresDSN(c.Target.Host, c.Target.Port, c.Target.Database,
		c.Target.User, c.Target.Password, c.Target.DSNOptions())
}

// RedactedTargetDSN is TargetDSN with the password masked, for log lines.
func (c *Config) RedactedTargetDSN() string {
	u, err := url.Parse(c.TargetDSN())
	if err != nil {
		return "postgres://" + c.Target.Host
	}
	return u.Redacted()
}

func buildAccessDSN(driver, path string) string {
	return fmt.Sprintf("Driver={%s};Dbq=%s;", driver, path)
}

func buildSQLiteDSN(path string) string {
	return "file:" + filepath.ToSlash(path) + "?mode=ro"
}

func (c *Config) buildPostgresDSN(host string, port int, database, user, password string, opts map[string]any) string {
	u := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + database,
	}
	if password != "" {
		u.User = url.UserPassword(user, password)
	} else {
		u.User = url.User(user)
	}

	q := url.Values{}
	for k, v := range opts {
		q.Set(k, fmt.Sprint(v))
	}
	u.RawQuery = q.Encode()
	u.ForceQuery = true
	return u.String()
}

// LogFilePath returns the dated log file path for a run started at t.
func (c *Config) LogFilePath(t time.Time) string {
	return filepath.Join(c.Logging.Dir, t.Format("20060102")+".log")
}

// ReplayFilePath returns the dated replay file path for a run started at t.
func (c *Config) ReplayFilePath(t time.Time) string {
	return filepath.Join(c.Logging.Dir, "ERR_SQL_"+t.Format("20060102")+".sql")
}
