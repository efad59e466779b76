// Package sqlstore is the durable backend for identities and consent
// grants. It runs on SQLite (modernc.org/sqlite) or Postgres (pgx) and
// applies its schema with embedded goose migrations.
//
//	db, err := sqlstore.OpenSQLite(ctx, "identity.db")
//	users := db.Identities()
//	grants := db.Consents()
//
// Sessions, attempt counters and reset tokens are short-lived and are not
// stored here.
package sqlstore
