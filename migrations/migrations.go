package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed scripts/stock/*.sql
var stockScripts embed.FS

// ApplyMigrations brings the stock database schema up to date. It returns
// migrate.ErrNoChange when nothing had to be applied.
func ApplyMigrations(db *sql.DB) error {
	source, err := iofs.New(stockScripts, "scripts/stock")
	if err != nil {
		return fmt.Errorf("could not open embedded migrations: %v", err)
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create database driver: %v", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to initialize migrate instance: %v", err)
	}

	return m.Up()
}
