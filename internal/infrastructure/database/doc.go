// Package database provides SQLite connectivity for the garage relay.
//
// This package manages:
//   - Parsing the DATABASE_URL connection string into a file path
//   - Opening the database with WAL mode and a busy timeout
//   - Versioned, embedded schema migrations
//   - Health checks and pool statistics
//
// Usage:
//
//	path, err := database.PathFromURL(cfg.Database.URL)
//	db, err := database.Open(ctx, database.Config{Path: path, WALMode: true, BusyTimeout: 5})
//	defer db.Close()
//	err = db.Migrate(ctx)
//
// Migrations are additive. Each version ships an .up.sql and may ship a
// .down.sql used by MigrateDown during development.
package database
