/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the request admission server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment), then apply flags
  2. Open the configured store
  3. Optionally seed demo reference data
  4. Build the engine, handler and router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: $PORT or 8080)
  -db      SQLite database path (default: $DATABASE_PATH or requests.db)
           Use ":memory:" for in-memory database
  -store   sqlite | gorm | memory (default: $STORE_DRIVER or sqlite)
  -demo    Seed demo roles, users and absence types and print their tokens

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  JWT_SECRET=... ./server -db="./data/requests.db"

  # Throwaway demo instance
  ./server -store=memory -demo

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go, store/gormstore/gorm.go: Persistence
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/warp/request-engine/admission"
	"github.com/warp/request-engine/admission/store"
	"github.com/warp/request-engine/api"
	"github.com/warp/request-engine/config"
	"github.com/warp/request-engine/store/gormstore"
	"github.com/warp/request-engine/store/sqlite"
)

// backend is what every store driver provides to the server.
type backend interface {
	admission.TxStore
	admission.Lister
	admission.CallerResolver
	seeder
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags override the environment
	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "SQLite database path")
	flag.StringVar(&cfg.StoreDriver, "store", cfg.StoreDriver, "Store driver: sqlite, gorm or memory")
	flag.BoolVar(&cfg.SeedDemo, "demo", cfg.SeedDemo, "Seed demo data and print tokens")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}

	log, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		logrus.Fatalf("Invalid logging configuration: %v", err)
	}

	// Initialize store
	db, err := openStore(cfg, log)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if c, ok := db.(io.Closer); ok {
		defer c.Close()
	}

	if cfg.SeedDemo {
		if err := seedDemo(context.Background(), db); err != nil {
			log.Fatalf("Failed to seed demo data: %v", err)
		}
		printDemoTokens(log, []byte(cfg.JWTSecret))
	}

	// Engine
	engine := admission.NewEngine(db)
	engine.ReviewPolicy = cfg.ReviewPolicy
	engine.Log = log
	if cfg.DeductOnReview {
		engine.Hooks = append(engine.Hooks, admission.DeductAllowanceOnApproval)
	}
	engine.Hooks = append(engine.Hooks, admission.LogDecisions(log))

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := api.NewMetrics(api.MetricsOptions{Registerer: registry})
	if err != nil {
		log.Fatalf("Failed to register metrics: %v", err)
	}

	handler := api.NewHandler(engine, db, log)
	handler.Metrics = metrics

	router := api.NewRouter(handler, api.RouterOptions{
		Auth: &api.Authenticator{
			Secret:   []byte(cfg.JWTSecret),
			Resolver: db,
			Log:      log,
		},
		AllowedOrigins: cfg.AllowedOrigins,
		Gatherer:       registry,
	})

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
		log.WithFields(logrus.Fields{
			"port":  cfg.Port,
			"store": cfg.StoreDriver,
		}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
		return
	}

	log.Info("server stopped")
}

func openStore(cfg *config.Config, log logrus.FieldLogger) (backend, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return store.NewMemory(), nil
	case config.DriverGorm:
		s, err := gormstore.New(cfg.DatabasePath, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		s, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
