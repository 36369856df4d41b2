package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/SGNL-ai/stockfile/migrations"
)

func InitializeDB(dbPath string, logger *zap.Logger) (*sql.DB, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("stock database path is not set")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("cannot create stock database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open stock database: %w", err)
	}

	logger.Info("Applying database migrations for stock...")

	err = migrations.ApplyMigrations(db)
	if err != nil && err != migrate.ErrNoChange {
		db.Close()

		return nil, fmt.Errorf("failed to apply migrations to stock database: %w", err)
	} else if err == migrate.ErrNoChange {
		logger.Info("No new migrations to apply to stock database.")
	} else {
		logger.Info("Migrations applied successfully to stock database.")
	}

	logger.Info("Stock database setup completed successfully.", zap.String("path", dbPath))

	return db, nil
}
