package database

import "errors"

var (
	// ErrEmptyURL is returned when no connection string was supplied.
	ErrEmptyURL = errors.New("database: connection string is empty")

	// ErrUnsupportedURL is returned for connection strings that do not name a SQLite file.
	ErrUnsupportedURL = errors.New("database: unsupported connection string")
)

var (
	// ErrMigrationMissing is returned when an applied version has no file in MigrationsFS.
	ErrMigrationMissing = errors.New("database: applied migration not found")

	// ErrNoDownMigration is returned when rolling back a version without a .down.sql file.
	ErrNoDownMigration = errors.New("database: migration has no down SQL")
)
