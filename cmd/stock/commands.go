package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SGNL-ai/stockfile/pkg/config"
	"github.com/SGNL-ai/stockfile/pkg/database"
	"github.com/SGNL-ai/stockfile/pkg/stockservice"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:       "export items|sales",
	Short:     "Write items or sales history as CSV",
	ValidArgs: []string{"items", "sales"},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(ctx context.Context, svc *stockservice.Service) error {
			if exportOutput == "" || exportOutput == "-" {
				return runExport(ctx, svc, args[0], cmd.OutOrStdout())
			}

			return exportToFile(ctx, svc, args[0], exportOutput)
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import <csv>",
	Short: "Upsert items from a CSV file in the export format",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(ctx context.Context, svc *stockservice.Service) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("error opening %s: %w", args[0], err)
			}

			defer f.Close()

			result, err := svc.ImportItemsCSV(ctx, f)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")

			return enc.Encode(result)
		})
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot the active store into the backup directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(ctx context.Context, svc *stockservice.Service) error {
			path, err := svc.Backup(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), path)

			return nil
		})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply SQLite schema migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate(appConfig, logger)
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default stdout)")
}

func withService(fn func(ctx context.Context, svc *stockservice.Service) error) error {
	ctx := context.Background()

	repo, err := openRepository(ctx, appConfig, logger)
	if err != nil {
		return err
	}

	defer repo.Close()

	return fn(ctx, newService(appConfig, repo, nil, logger))
}

func runExport(ctx context.Context, svc *stockservice.Service, what string, w io.Writer) error {
	switch what {
	case "items":
		return svc.ExportItemsCSV(ctx, w)
	case "sales":
		return svc.ExportSalesCSV(ctx, w)
	}

	return fmt.Errorf("unknown export %q", what)
}

func exportToFile(ctx context.Context, svc *stockservice.Service, what, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", path, err)
	}

	if err := runExport(ctx, svc, what, f); err != nil {
		f.Close()

		return err
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("error closing %s: %w", path, err)
	}

	return nil
}

func runMigrate(cfg *config.AppConfig, logger *zap.Logger) error {
	db, err := database.InitializeDB(cfg.Storage.DBPath, logger)
	if err != nil {
		return err
	}

	return db.Close()
}
