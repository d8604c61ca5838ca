// Package main is the entry point for the treasury custody engine. The
// engine holds a pooled balance as integer cents, splits deposits across
// allocation categories by policy, and releases funds only through the
// governed withdrawal, batch and pool workflows.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/treasury/internal/config"
	"github.com/aristath/treasury/internal/di"
	"github.com/aristath/treasury/internal/reliability"
	"github.com/aristath/treasury/internal/server"
	"github.com/aristath/treasury/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting treasury engine")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	// Background maintenance: daily integrity checks plus scheduled backups
	// when a bucket is configured.
	sched := reliability.NewScheduler(log)
	if err := sched.AddJob("30 2 * * *", reliability.NewDailyMaintenanceJob(container.Databases(), log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register maintenance job")
	}
	if container.BackupService != nil {
		if err := sched.AddJob(cfg.Backup.Schedule, reliability.NewBackupJob(container.BackupService, log)); err != nil {
			log.Fatal().Err(err).Msg("Failed to register backup job")
		}
	}
	sched.Start()

	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		Container: container,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
