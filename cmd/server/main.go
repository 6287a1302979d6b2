package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stockquest/rebalancer/internal/config"
	"github.com/stockquest/rebalancer/internal/database"
	"github.com/stockquest/rebalancer/internal/events"
	"github.com/stockquest/rebalancer/internal/modules/analytics"
	"github.com/stockquest/rebalancer/internal/modules/portfolio"
	"github.com/stockquest/rebalancer/internal/modules/rebalancing"
	"github.com/stockquest/rebalancer/internal/scheduler"
	"github.com/stockquest/rebalancer/internal/server"
	"github.com/stockquest/rebalancer/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting rebalancer")

	// Initialize database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Shared event manager
	eventManager := events.NewManager(log)

	// Portfolio module
	portfolioService := portfolio.NewService(
		portfolio.NewPositionRepository(db.Conn(), log),
		portfolio.NewSnapshotRepository(db.Conn(), log),
		eventManager,
		log,
	)
	portfolioHandlers := portfolio.NewHandlers(portfolioService, log)

	// Rebalancing module
	strategyRepo := rebalancing.NewStrategyRepository(db.Conn(), log)
	proposalRepo := rebalancing.NewProposalRepository(db.Conn(), log)
	rebalancingService := rebalancing.NewService(
		rebalancing.NewEngine(cfg.CostModel(), log),
		strategyRepo,
		proposalRepo,
		portfolioService,
		eventManager,
		log,
	)
	rebalancingHandlers := rebalancing.NewHandlers(rebalancingService, log)

	// Analytics module
	analyticsService := analytics.NewService(portfolioService, cfg.RiskFreeRate, log)
	analyticsHandlers := analytics.NewHandlers(analyticsService, log)

	// Initialize scheduler
	sched := scheduler.New(log)
	sched.Start()
	defer sched.Stop()

	driftCheck := rebalancing.NewDriftCheckJob(strategyRepo, proposalRepo, portfolioService, eventManager, log)
	if err := sched.AddJob(cfg.DriftCheckSchedule, driftCheck); err != nil {
		log.Fatal().Err(err).Msg("Failed to register drift check job")
	}

	// Initialize HTTP server
	srv := server.New(server.Config{
		Port:        cfg.Port,
		Log:         log,
		DB:          db,
		Config:      cfg,
		DevMode:     cfg.DevMode,
		Portfolio:   portfolioHandlers,
		Rebalancing: rebalancingHandlers,
		Analytics:   analyticsHandlers,
	})

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
