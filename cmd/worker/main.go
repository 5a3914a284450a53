// Package main is the entry point for the fxbase background worker. The
// worker keeps the primary-currency projections of balances and holding
// snapshots up to date: on every scheduled run it reloads exchange rates,
// reconverts the source tables and carries balances forward to today. A
// daily maintenance job keeps the SQLite databases healthy.
//
// There is no request/response surface; everything runs off the scheduler.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mkarlsen/fxbase/internal/activities"
	"github.com/mkarlsen/fxbase/internal/balances"
	"github.com/mkarlsen/fxbase/internal/config"
	"github.com/mkarlsen/fxbase/internal/converter"
	"github.com/mkarlsen/fxbase/internal/database"
	"github.com/mkarlsen/fxbase/internal/fx"
	"github.com/mkarlsen/fxbase/internal/marketdata"
	"github.com/mkarlsen/fxbase/internal/portfolio"
	"github.com/mkarlsen/fxbase/internal/reliability"
	"github.com/mkarlsen/fxbase/internal/scheduler"
	"github.com/mkarlsen/fxbase/internal/settings"
	"github.com/mkarlsen/fxbase/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting fxbase worker")

	// Two-database layout: portfolio.db holds source rows, their
	// primary-currency projections and settings; history.db holds the FX
	// and instrument price time series.
	portfolioDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "portfolio.db"),
		Profile: database.ProfileStandard,
		Name:    "portfolio",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open portfolio database")
	}
	defer portfolioDB.Close()

	historyDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "history.db"),
		Profile: database.ProfileHistory,
		Name:    "history",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer historyDB.Close()

	for _, db := range []*database.DB{portfolioDB, historyDB} {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", db.Name()).Msg("Failed to migrate database")
		}
	}

	// Repositories
	portfolioRepo := portfolio.NewRepository(portfolioDB.Conn(), log)
	activityRepo := activities.NewRepository(portfolioDB.Conn(), log)
	settingsRepo := settings.NewRepository(portfolioDB.Conn(), log)
	marketRepo := marketdata.NewRepository(historyDB.Conn(), log)

	// Seed the primary currency from the environment on first start only;
	// after that the settings store is authoritative.
	if err := settingsRepo.Seed(settings.PrimaryCurrencyKey, cfg.PrimaryCurrency); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed primary currency setting")
	}

	// FX resolution pipeline
	rateCache := fx.NewRateCache(marketRepo, log)
	resolver := fx.NewResolver(nil, nil, rateCache, marketRepo, nil, log)
	reconstructor := balances.NewReconstructor(resolver, log)

	// Jobs
	convertJob := converter.NewConverter(portfolioRepo, activityRepo, reconstructor, settingsRepo, resolver, rateCache, log)
	maintenanceJob := reliability.NewMaintenanceJob(map[string]*database.DB{
		"portfolio": portfolioDB,
		"history":   historyDB,
	}, cfg.DataDir, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(ctx, log)
	if err := sched.AddJob(cfg.ConvertSchedule, convertJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register conversion job")
	}
	if err := sched.AddJob("@daily", maintenanceJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register maintenance job")
	}

	// Run one conversion immediately so a fresh deployment does not wait a
	// full schedule interval for its projections.
	if err := sched.RunNow(convertJob); err != nil {
		log.Error().Err(err).Msg("Initial conversion failed")
	}

	sched.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	cancel()
	sched.Stop()

	// Flush WAL files so the next start opens clean databases
	for _, db := range []*database.DB{portfolioDB, historyDB} {
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			log.Warn().Err(err).Str("database", db.Name()).Msg("Final WAL checkpoint failed")
		}
	}

	log.Info().Msg("Worker stopped")
}
