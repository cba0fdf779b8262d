package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/giygas/herbolaria-api/config"
	"github.com/giygas/herbolaria-api/data"
	"github.com/giygas/herbolaria-api/handlers"
	"github.com/giygas/herbolaria-api/health"
	"github.com/giygas/herbolaria-api/herbs"
	"github.com/giygas/herbolaria-api/logging"
	"github.com/giygas/herbolaria-api/safety"
	"github.com/giygas/herbolaria-api/scheduler"
	"github.com/giygas/herbolaria-api/server"
	"github.com/giygas/herbolaria-api/storage"
	"github.com/giygas/herbolaria-api/validation"
)

// loadEnv reads .env from the working directory, then from the executable's
// directory. A missing file is fine, variables may come from the
// environment.
func loadEnv() {
	if err := godotenv.Load(); err == nil {
		return
	}

	ex, err := os.Executable()
	if err != nil {
		return
	}
	if err := godotenv.Load(filepath.Join(filepath.Dir(ex), ".env")); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found, using environment variables")
	}
}

func main() {
	loadEnv()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Configuration error:", err)
		os.Exit(1)
	}

	logging.InitLoggerWithConfig(cfg.LogDir, cfg.Env, cfg.LogLevel, cfg.LogRetentionWeeks, cfg.MaxLogFileSize)
	defer logging.Close()

	if err := run(cfg); err != nil {
		logging.Error("Server stopped with error", "error", err)
		logging.Close()
		os.Exit(1)
	}
}

// application holds the wired components of a running service
type application struct {
	server    *server.Server
	scheduler *scheduler.Scheduler
	records   *storage.SQLiteRepository
}

// newApplication opens the record store, loads the catalog and wires the
// HTTP stack
func newApplication(cfg *config.Config) (*application, error) {
	dataContainer := data.NewDataContainer()
	dataContainer.SetServerStartTime(time.Now())

	records, err := storage.NewSQLiteRepository(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}

	drafts := storage.NewDraftStore()
	validator := validation.NewDataValidator()
	reloadInterval := time.Duration(cfg.CatalogReloadMins) * time.Minute

	parser := herbs.NewCatalogParser(cfg.CatalogDir)
	rules := safety.NewSource(nil)

	sched := scheduler.NewScheduler(
		dataContainer,
		parser,
		validator,
		drafts,
		reloadInterval,
		time.Duration(cfg.DraftTTLHours)*time.Hour,
	).WithRules(parser, rules)
	if err := sched.Start(); err != nil {
		records.Close()
		return nil, fmt.Errorf("start scheduler: %w", err)
	}

	healthChecker := health.NewHealthChecker(dataContainer, records, drafts, reloadInterval, sched.NextReload)
	httpHandler := handlers.NewHTTPHandler(dataContainer, validator, rules, drafts, records, healthChecker)

	return &application{
		server:    server.NewServer(cfg, httpHandler),
		scheduler: sched,
		records:   records,
	}, nil
}

// close stops the background jobs and releases the record store
func (a *application) close() {
	a.scheduler.Stop()
	if err := a.records.Close(); err != nil {
		logging.Warn("Failed to close record store", "error", err)
	}
}

func run(cfg *config.Config) error {
	app, err := newApplication(cfg)
	if err != nil {
		return err
	}
	defer app.close()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := app.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case sig := <-quit:
		logging.Info("Received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server failed to start: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return app.server.Shutdown(ctx)
}
