package store

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"

	"garrison-gate/config"
)

//go:embed migrations_pg/*.sql
var migrationsPG embed.FS

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS pending_auth (
    slot        INTEGER PRIMARY KEY,
    email       TEXT NOT NULL,
    password    TEXT NOT NULL,
    owner       TEXT NOT NULL,
    created_at  TIMESTAMP NOT NULL,
    expires_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS verify_events (
    seq     INTEGER PRIMARY KEY AUTOINCREMENT,
    id      TEXT NOT NULL,
    event   TEXT NOT NULL,
    email   TEXT NOT NULL,
    origin  TEXT NOT NULL,
    at      TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_verify_events_at ON verify_events (at);
`

// ApplyMigrations brings the shared schema up to date. Postgres goes
// through goose so multiple gateway processes can race on startup
// safely; the sqlite schema is idempotent DDL executed directly.
func ApplyMigrations(db *sql.DB, cfg *config.AppConfig) error {
	if cfg.Store.Driver == config.DriverPostgres {
		goose.SetBaseFS(migrationsPG)
		if err := goose.SetDialect("postgres"); err != nil {
			return fmt.Errorf("set dialect: %w", err)
		}
		if err := goose.Up(db, "migrations_pg"); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		return nil
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return fmt.Errorf("apply sqlite schema: %w", err)
	}
	return nil
}
