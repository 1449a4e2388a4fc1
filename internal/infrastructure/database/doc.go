// Package database provides SQLite connection management and schema
// migrations for Hearth Bridge.
//
// The database holds accounts, linked identities, fireplaces, and the
// account-fireplace associations. SQLite is deliberate: the bridge is a
// single-process service and the store is advisory state, not a ledger.
//
// # Features
//
//   - WAL mode for concurrent reads during writes
//   - Foreign keys enforced (account/device cascades rely on this)
//   - Embedded migrations applied at startup, each in its own transaction
//   - Health check for the readiness endpoint
//
// # Usage
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
