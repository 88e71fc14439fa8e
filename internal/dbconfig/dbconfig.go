// Package dbconfig provides the connection settings shared by the config,
// source and target packages. It exists to keep those packages free of an
// import on config.
package dbconfig

import "fmt"

// Source store types.
const (
	SourceAccess = "access"
	SourceSQLite = "sqlite"
)

// DefaultAccessDriver is the ODBC driver name registered by the Microsoft
// Access Database Engine.
const DefaultAccessDriver = "Microsoft Access Driver (*.mdb, *.accdb)"

// SourceConfig holds desktop database file settings.
type SourceConfig struct {
	Type    string `yaml:"type"`    // "access" (default) or "sqlite"
	Path    string `yaml:"path"`    // Path to the .mdb/.accdb/.sqlite file
	Driver  string `yaml:"driver"`  // Access: ODBC driver name
	DSN     string `yaml:"dsn"`     // Full DSN; overrides Path/Driver when set
	Charset string `yaml:"charset"` // Charset of non-UTF-8 byte values (e.g. windows-1252)
}

// TargetConfig holds PostgreSQL connection settings.
type TargetConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Schema   string `yaml:"schema"`
	SSLMode  string `yaml:"ssl_mode"` // disable, require, verify-ca, verify-full (default: disable)
}

// DriverName returns the database/sql driver name for the source type.
func (c *SourceConfig) DriverName() (string, error) {
	switch c.Type {
	case SourceAccess, "":
		return "odbc", nil
	case SourceSQLite:
		return "sqlite", nil
	default:
		return "", fmt.Errorf("unsupported source type %q", c.Type)
	}
}

// DSNOptions returns the query options appended to the PostgreSQL DSN.
func (c *TargetConfig) DSNOptions() map[string]any {
	opts := make(map[string]any)
	if c.SSLMode != "" {
		opts["sslmode"] = c.SSLMode
	}
	return opts
}
