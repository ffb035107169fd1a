package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"paper-trader-go/internal/config"
	"paper-trader-go/internal/database"
	"paper-trader-go/internal/ledger"
	"paper-trader-go/internal/logger"
	"paper-trader-go/internal/marketdata"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Select the price oracle
	oracle, err := newOracle(&cfg.MarketData, log)
	if err != nil {
		log.Fatal("Failed to initialize market data provider", zap.Error(err))
	}

	// Assemble the ledger and API
	book := ledger.New(db, oracle, &cfg.Ledger, log)
	apiHandler := NewAPIHandler(log, book, oracle)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      apiHandler.Router(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	go func() {
		log.Info("Starting API server", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal("API server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}

	log.Info("Server has been shut down.")
}

// newOracle builds the configured price oracle, wrapped in a quote
// cache when a TTL is set.
func newOracle(cfg *config.MarketData, log *zap.Logger) (marketdata.Oracle, error) {
	var oracle marketdata.Oracle
	switch cfg.Provider {
	case "static":
		log.Warn("Using static price table, no live market data")
		oracle = marketdata.NewStatic(cfg.StaticPrices)
	default:
		oracle = marketdata.NewClient(cfg, log)
	}

	if cfg.CacheTTL > 0 {
		return marketdata.NewCached(oracle, time.Duration(cfg.CacheTTL)*time.Second)
	}
	return oracle, nil
}
