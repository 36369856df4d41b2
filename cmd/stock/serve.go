package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	gorillaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SGNL-ai/stockfile/handlers/stockhandler"
	"github.com/SGNL-ai/stockfile/pkg/config"
	"github.com/SGNL-ai/stockfile/pkg/events"
	"github.com/SGNL-ai/stockfile/pkg/middleware"
	"github.com/SGNL-ai/stockfile/pkg/scheduler"
	"github.com/SGNL-ai/stockfile/pkg/stockservice"
)

type App struct {
	Router  *mux.Router
	Service *stockservice.Service
	Hub     *events.Hub
	Config  *config.AppConfig
	Logger  *zap.Logger
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(appConfig, logger)
	},
}

func newApp(cfg *config.AppConfig, repo stockservice.Repository, logger *zap.Logger) *App {
	hub := events.NewHub(cfg.CORS.AllowedOrigins, 0, logger)

	app := &App{
		Router:  mux.NewRouter(),
		Service: newService(cfg, repo, hub, logger),
		Hub:     hub,
		Config:  cfg,
		Logger:  logger,
	}

	app.initializeRoutes(stockhandler.NewHandlers(app.Service, logger))

	return app
}

func (a *App) initializeRoutes(handlers *stockhandler.Handlers) {
	a.Router.Use(middleware.GetMiddleware(a.Logger))

	if a.Config.Auth.Enabled() {
		a.Router.Use(middleware.JWTAuth([]byte(a.Config.Auth.JWTSecret), a.Config.Auth.Issuer, a.Logger))
	}

	a.Router.HandleFunc("/health", stockhandler.Health).Methods(http.MethodGet)
	a.Router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	a.Router.Handle("/api/events", a.Hub).Methods(http.MethodGet)

	handlers.Register(a.Router)
}

// Handler wraps the router with panic recovery and CORS.
func (a *App) Handler() http.Handler {
	cors := gorillaHandlers.CORS(
		gorillaHandlers.AllowedOrigins(a.Config.CORS.AllowedOrigins),
		gorillaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorillaHandlers.AllowedHeaders([]string{"Accept", "Authorization", "Content-Type", "X-Request-ID"}),
		gorillaHandlers.ExposedHeaders([]string{"Content-Disposition", "X-Request-ID"}),
	)

	recovery := gorillaHandlers.RecoveryHandler(
		gorillaHandlers.RecoveryLogger(zap.NewStdLog(a.Logger)),
		gorillaHandlers.PrintRecoveryStack(true),
	)

	return recovery(cors(a.Router))
}

func (a *App) startScheduler() (*scheduler.Scheduler, error) {
	s := scheduler.New(a.Logger)

	if a.Config.Backup.DisableSchedule {
		return s, nil
	}

	if a.Config.Backup.Schedule != "" {
		if err := s.AddJob(a.Config.Backup.Schedule, &scheduler.BackupJob{Store: a.Service, Logger: a.Logger}); err != nil {
			return nil, fmt.Errorf("error scheduling backup job: %w", err)
		}
	}

	if a.Config.Backup.LowStockReport != "" {
		job := &scheduler.LowStockReportJob{Lister: a.Service, Publisher: a.Hub, Logger: a.Logger}
		if err := s.AddJob(a.Config.Backup.LowStockReport, job); err != nil {
			return nil, fmt.Errorf("error scheduling low stock report: %w", err)
		}
	}

	s.Start()

	return s, nil
}

func setupSignalHandler(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigs
		cancel()
	}()
}

func startHTTPServer(srv *http.Server, logger *zap.Logger) error {
	logger.Info("Starting HTTP server...", zap.String("addr", srv.Addr))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Failed to start the http api server", zap.Error(err))

		return fmt.Errorf("failed to start the http api server: %w", err)
	}

	return nil
}

func runServe(cfg *config.AppConfig, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	setupSignalHandler(cancel)

	repo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		logger.Error("Cannot open stock store.", zap.String("driver", cfg.Storage.Driver), zap.Error(err))

		return err
	}

	defer repo.Close()

	app := newApp(cfg, repo, logger)

	sched, err := app.startScheduler()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:      app.Handler(),
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- startHTTPServer(srv, logger)
	}()

	var serveErr error

	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	logger.Info("Shutting down stock service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	app.Hub.Close()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed.", zap.Error(err))
	}

	sched.Stop()

	return serveErr
}
