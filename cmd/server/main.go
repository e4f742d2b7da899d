/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the archery club server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (flags, then environment, then defaults)
  2. Initialize the logger
  3. Open the store (SQLite or PostgreSQL) and migrate the schema
  4. Load reward rules (built-in, or a JSON rules file)
  5. Create the club service, API handler and router
  6. Start the weekly snapshot scheduler
  7. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the snapshot scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  # Run with file database
  ./server -db="./data/club.db"

  # Run with in-memory database and JSON logs
  ./server -db=":memory:" -log-format=json

  # Run against PostgreSQL
  DB_DRIVER=postgres DB_DSN="postgres://club@localhost/club?sslmode=disable" ./server

SEE ALSO:
  - config/config.go: Every setting and its environment variable
  - api/server.go: Router configuration
  - store/sqldb/sqldb.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/acamp/club-engine/api"
	"github.com/acamp/club-engine/club"
	"github.com/acamp/club-engine/config"
	"github.com/acamp/club-engine/factory"
	"github.com/acamp/club-engine/store/sqldb"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	// Logger
	zerolog.SetGlobalLevel(cfg.LogLevel)
	log.Logger = cfg.Logger(os.Stderr)

	// Initialize store
	store, err := sqldb.New(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("Failed to initialize database")
	}
	defer store.Close()

	// Reward rules
	opts := club.DefaultOptions()
	if cfg.RulesFile != "" {
		if opts, err = factory.NewRulesFactory().LoadFile(cfg.RulesFile); err != nil {
			log.Fatal().Err(err).Str("file", cfg.RulesFile).Msg("Failed to load reward rules")
		}
		log.Info().Str("file", cfg.RulesFile).Msg("Reward rules loaded")
	}

	svc := club.NewService(store, opts)
	handler := api.NewHandler(svc, cfg.Location, log.Logger)
	handler.DB = store
	router := api.NewRouter(handler, cfg.CORSOrigins)

	// Snapshot scheduler
	scheduler := api.NewSnapshotScheduler(svc, cfg.Location, log.Logger)
	scheduler.CheckInterval = cfg.SnapshotInterval
	scheduler.Start()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Int("port", cfg.Port).
			Str("driver", store.Driver()).
			Str("timezone", cfg.Timezone).
			Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
