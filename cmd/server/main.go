/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the folio ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load config (.env, environment, then flags)
  2. Initialize SQLite store
  3. Pick the folio locker (Redis when REDIS_ADDR is set)
  4. Build the ledger, handler, router and balance auditor
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS (override the environment):
  -port    HTTP server port (env PORT, default 8080)
  -db      SQLite database path (env DB_PATH, default folio.db)
           Use ":memory:" for in-memory database

ENVIRONMENT:
  PORT, DB_PATH, LOG_LEVEL, REDIS_ADDR, LOCK_TTL,
  TRANSFER_MAX_ATTEMPTS, AUDIT_INTERVAL, CORS_ORIGINS
  See config/config.go for defaults.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the balance auditor
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close Redis and database connections

EXAMPLES:
  ./server -db="./data/folio.db"
  REDIS_ADDR=localhost:6379 ./server -port=3000

SEE ALSO:
  - api/server.go: Router configuration
  - folio/ledger.go: Ledger service
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/folio-ledger/api"
	"github.com/warp/folio-ledger/config"
	"github.com/warp/folio-ledger/folio"
	"github.com/warp/folio-ledger/store/redislocker"
	"github.com/warp/folio-ledger/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}

	// Flags
	port := flag.String("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	logger := cfg.NewLogger()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	ledger := folio.NewLedger(store)
	ledger.Logger = logger
	ledger.TransferMaxAttempts = cfg.TransferMaxAttempts

	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rdb, err := redislocker.Dial(ctx, cfg.RedisAddr)
		cancel()
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to redis")
		}
		defer rdb.Close()
		ledger.Locker = redislocker.New(rdb, cfg.LockTTL, logger)
		logger.WithField("redis_addr", cfg.RedisAddr).Info("using redis folio locks")
	} else {
		logger.Info("using in-process folio locks")
	}

	handler := api.NewHandler(ledger, logger)
	handler.DB = store
	router := api.NewRouter(handler, cfg.CORSOrigins)

	auditor := api.NewBalanceAuditor(ledger, logger)
	auditor.Interval = cfg.AuditInterval
	auditor.Start()

	// Create server
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.WithFields(logrus.Fields{"port": *port, "db": *dbPath}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	auditor.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
		return
	}

	logger.Info("server stopped")
}
