package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/priority1ahmad/p1lending-etl-sub000/internal/api"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/api/handler"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/config"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/logger"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/repository"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/service"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "etlsim",
	})
	logger.SetDefaultLogger(appLogger)

	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Support CONFIG_PATH environment variable for deployments
	path := *configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}

	cfg, err := config.Load(path)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	// Initialize job store
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	jobRepo := repository.NewJobRepository(db)

	// Push channel hub and simulated pipeline runner
	hub := api.NewSocketHub(appLogger)
	runner := service.NewRunner(jobRepo, hub, appLogger, &service.RunnerConfig{
		BatchSize:     cfg.Server.BatchSize,
		RowDelay:      cfg.Server.RowDelay,
		LitigatorRate: cfg.Server.LitigatorRate,
		DNCRate:       cfg.Server.DNCRate,
	})

	jobHandler := handler.NewJobHandler(jobRepo, runner, appLogger)
	router := api.SetupRouter(jobHandler, hub, &cfg.Server, appLogger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting simulator")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
