/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the lending engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (viper: file, env, defaults)
  2. Build the structured logger (zap)
  3. Initialize SQLite store and ledger
  4. Create API handler and trigger scheduler
  5. Start server with graceful shutdown

CONFIGURATION:
  Keys (file lendingd.yaml in ., ./config, or /etc/lendingd; env prefix
  LENDINGD_):
    port                HTTP server port (default: 8080)
    db                  SQLite database path (default: lending.db,
                        ":memory:" for in-memory)
    log_level           zap level: debug, info, warn, error (default: info)
    scheduler.enabled   run the trigger scheduler (default: true)
    scheduler.interval  scheduler check interval (default: 1m)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./lendingd

  # Run with in-memory database
  LENDINGD_DB=":memory:" ./lendingd

  # Run on a different port
  LENDINGD_PORT=3000 ./lendingd

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Trigger scheduler
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/warp/lending-engine/api"
	"github.com/warp/lending-engine/engine"
	"github.com/warp/lending-engine/store/sqlite"
)

func main() {
	cfg := loadConfig()

	logger, err := buildLogger(cfg.GetString("log_level"))
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Initialize store and ledger
	store, err := sqlite.New(cfg.GetString("db"))
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()
	ledger := engine.NewLedger(store, store)

	// Initialize handler and scheduler
	handler := api.NewHandler(ledger, store, store, logger)
	scheduler := api.NewTriggerScheduler(handler, ledger, logger)
	scheduler.Enabled = cfg.GetBool("scheduler.enabled")
	scheduler.CheckInterval = cfg.GetDuration("scheduler.interval")
	scheduler.Start()
	defer scheduler.Stop()

	// Create router and server
	router := api.NewRouter(handler)
	port := cfg.GetInt("port")
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			zap.String("addr", fmt.Sprintf("http://localhost:%d", port)),
			zap.String("db", cfg.GetString("db")),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func loadConfig() *viper.Viper {
	v := viper.New()
	v.SetDefault("port", 8080)
	v.SetDefault("db", "lending.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", time.Minute)

	v.SetConfigName("lendingd")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/lendingd")
	v.SetEnvPrefix("lendingd")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional; defaults and env carry a dev setup.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatalf("Failed to read config: %v", err)
		}
	}
	return v
}

func buildLogger(level string) (*zap.Logger, error) {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsed)
	return cfg.Build()
}
