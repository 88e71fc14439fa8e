package version

// Version is the current version of accdb-pg-migrate.
// Can be overridden at build time with -ldflags "-X ...version.Version=..."
var Version = "1.2.0"

// Name is the application name.
const Name = "accdb-pg-migrate"

// Description is a short description of the application.
const Description = "One-shot Access/SQLite to PostgreSQL migration"
