// Package database provides the SQLite connection shared by the speaker
// registry (when registry.backend is "sqlite") and the audit trail.
//
// This package manages:
//   - Opening the database with WAL mode and a busy timeout
//   - Versioned schema migrations embedded in the binary
//   - Connection lifecycle and health checks
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The database file is restricted to mode 0600 because the registry
//     tables hold speaker passwords
//
// Usage:
//
//	db, err := database.OpenMigrated(ctx, database.ConfigFrom(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
// Migration files are named YYYYMMDD_HHMMSS_description.{up,down}.sql and
// live in the top-level migrations package. Migrations are additive: new
// columns are nullable or carry a default, and every .up.sql ships with a
// .down.sql.
package database
