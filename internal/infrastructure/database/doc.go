// Package database provides the SQLite store behind the audit trail.
//
// It opens the database with WAL mode and a busy timeout and applies
// schema migrations read from an fs.FS. The migrations package embeds the
// daemon's migration files.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with a
// matching .down.sql. Migrations are additive: new columns must be nullable
// or carry a default.
package database
