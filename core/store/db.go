// Package store is the durable, machine-scoped state shared by every gateway
// window: the pending-auth cache and the verification broadcast feed. SQLite
// is the default (one file per machine, the analogue of origin-scoped browser
// storage); PostgreSQL serves managed fleets where windows span hosts.
package store

import (
	"database/sql"
	"errors"
	"strings"

	"garrison-gate/config"
	"garrison-gate/core/utils"
	_ "modernc.org/sqlite"
)

func NewDB(cfg *config.AppConfig, logger *utils.Logger) (*sql.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	if driver == "" {
		if strings.TrimSpace(cfg.Store.URL) != "" {
			driver = config.DriverPostgres
		} else {
			driver = config.DriverSQLite
		}
	}
	switch driver {
	case config.DriverSQLite:
		if strings.TrimSpace(cfg.Store.Path) == "" {
			return nil, errors.New("store.path is required for sqlite")
		}
		db, err := sql.Open("sqlite", cfg.Store.Path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
		if err != nil {
			if logger != nil {
				logger.Errorf("store open failed: %v", err)
			}
			return nil, err
		}
		// One writer at a time keeps cross-window read-then-delete a single
		// logical step; readers go through WAL.
		db.SetMaxOpenConns(1)
		if logger != nil {
			logger.Printf("store open sqlite path=%s", cfg.Store.Path)
		}
		return db, nil
	case config.DriverPostgres:
		if strings.TrimSpace(cfg.Store.URL) == "" {
			return nil, errors.New("store.url is required for postgres")
		}
		db, err := sql.Open(postgresDriverName, cfg.Store.URL)
		if err != nil {
			if logger != nil {
				logger.Errorf("store open failed: %v", err)
			}
			return nil, err
		}
		if logger != nil {
			logger.Printf("store open postgres")
		}
		return db, nil
	default:
		return nil, errors.New("unsupported store driver: " + driver)
	}
}
