/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the court roster HTTP server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (defaults, config.yaml, ROSTER_* env)
  2. Build the zap logger
  3. Open the configured store and create its schema
  4. Probe the deputy schema once and build the domain services
  5. Start the materialization scheduler
  6. Configure the HTTP router and serve

COMMAND-LINE FLAGS:
  -config  Path to a YAML config file (optional)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the database connection

EXAMPLES:
  # SQLite file database (default ./data/roster.db)
  ./server

  # PostgreSQL
  ROSTER_DB_DRIVER=postgres ROSTER_DB_HOST=db ROSTER_DB_PASSWORD=secret ./server

  # Different port, console logs
  ROSTER_SERVER_PORT=3000 ROSTER_LOG_FORMAT=console ./server

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: All configuration keys
  - store/store.go: Backend selection
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/court-roster/api"
	"github.com/warp/court-roster/assignment"
	"github.com/warp/court-roster/config"
	"github.com/warp/court-roster/directory"
	"github.com/warp/court-roster/export"
	"github.com/warp/court-roster/logger"
	"github.com/warp/court-roster/staffing"
	"github.com/warp/court-roster/store"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx := context.Background()

	// Initialize store
	st, err := store.Open(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer st.Close()

	// Domain services
	staffingLog := staffing.NewLog(st, log)
	assignments := assignment.NewService(st, log, cfg.Search.Limit)
	dir, err := directory.New(ctx, st, log)
	if err != nil {
		return err
	}
	exporter := export.New(staffingLog, assignments, log)

	scheduler := api.NewMaterializationScheduler(assignments, cfg.Scheduler, log)
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(staffingLog, assignments, dir, exporter, st, log)
	router := api.NewRouter(handler, cfg.Server)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serveErr := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.Int("port", cfg.Server.Port), zap.String("driver", cfg.Database.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		log.Info("shutting down server", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}
