package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SGNL-ai/stockfile/pkg/config"
	"github.com/SGNL-ai/stockfile/pkg/database"
	"github.com/SGNL-ai/stockfile/pkg/filehandler"
	"github.com/SGNL-ai/stockfile/pkg/logging"
	"github.com/SGNL-ai/stockfile/pkg/stockservice"
)

var (
	cfgFile string
	verbose bool

	appConfig *config.AppConfig
	logger    *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "stock",
	Short: "Stock file inventory service",
	Long: `Stock file inventory service

Commands:
    serve     run the HTTP API
    export    write items or sales history as CSV
    import    upsert items from a CSV file
    backup    snapshot the active store
    migrate   apply SQLite schema migrations
`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); defaults and environment are used when empty")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(serveCmd, exportCmd, importCmd, backupCmd, migrateCmd)
}

func initConfig() error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	cfg, err := config.GetAppConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}

	if verbose {
		cfg.Logging.Level = "debug"
	}

	appConfig = cfg
	logger = logging.NewLogger(cfg.Logging)

	return nil
}

// openRepository opens the store selected by storage.driver.
func openRepository(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (stockservice.Repository, error) {
	switch cfg.Storage.Driver {
	case config.StorageSQLite:
		db, err := database.InitializeDB(cfg.Storage.DBPath, logger)
		if err != nil {
			return nil, err
		}

		return database.NewRepository(db, cfg.Backup.Dir, cfg.Backup.MaxBackups, logger), nil
	default:
		h, err := filehandler.OpenStockFileHandler(ctx, cfg.Storage.FilePath, cfg.Backup.Dir, cfg.Backup.MaxBackups, logger)
		if err != nil {
			return nil, err
		}

		return h, nil
	}
}

func newService(cfg *config.AppConfig, repo stockservice.Repository, publisher stockservice.Publisher, logger *zap.Logger) *stockservice.Service {
	svc := stockservice.NewService(repo, publisher, cfg.VAT(), logger)
	svc.DefaultPerPage = cfg.Inventory.DefaultPerPage

	return svc
}
