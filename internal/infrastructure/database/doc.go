// Package database provides the SQLite store behind the audit trail.
//
// It opens the database in WAL mode with a single writer connection and
// applies embedded, versioned migrations. The live value cache is never
// stored here.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql, and are applied oldest first, each in its
// own transaction.
package database
