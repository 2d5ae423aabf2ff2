// Package database provides SQLite persistence for NaviBridge.
//
// It wraps database/sql with connection configuration (WAL mode, busy
// timeout, foreign keys), embedded schema migrations, and health checks.
//
// NaviBridge stores two kinds of data locally:
//   - Authentication tokens, so restarts can skip the full cloud login
//   - Device status history, a local audit trail of telemetry snapshots
//
// # Usage
//
//	db, err := database.Open(database.Config{Path: "./data/navibridge.db", WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are embedded via the migrations package; see migrations/embed.go.
package database
