// Package main is the entry point for the AMS portfolio ledger backend.
// It tracks cash and asset transactions per account, maintains daily
// balance history, and computes valuations and money-weighted returns.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jakub-mrow/AMS-backend/internal/clientdata"
	"github.com/jakub-mrow/AMS-backend/internal/clients/eodhd"
	"github.com/jakub-mrow/AMS-backend/internal/config"
	"github.com/jakub-mrow/AMS-backend/internal/database"
	"github.com/jakub-mrow/AMS-backend/internal/events"
	"github.com/jakub-mrow/AMS-backend/internal/modules/accounts"
	accountshandlers "github.com/jakub-mrow/AMS-backend/internal/modules/accounts/handlers"
	"github.com/jakub-mrow/AMS-backend/internal/modules/assets"
	assetshandlers "github.com/jakub-mrow/AMS-backend/internal/modules/assets/handlers"
	"github.com/jakub-mrow/AMS-backend/internal/modules/history"
	historyhandlers "github.com/jakub-mrow/AMS-backend/internal/modules/history/handlers"
	"github.com/jakub-mrow/AMS-backend/internal/modules/importer"
	importerhandlers "github.com/jakub-mrow/AMS-backend/internal/modules/importer/handlers"
	"github.com/jakub-mrow/AMS-backend/internal/modules/ledger"
	ledgerhandlers "github.com/jakub-mrow/AMS-backend/internal/modules/ledger/handlers"
	"github.com/jakub-mrow/AMS-backend/internal/modules/positions"
	positionshandlers "github.com/jakub-mrow/AMS-backend/internal/modules/positions/handlers"
	"github.com/jakub-mrow/AMS-backend/internal/modules/valuation"
	valuationhandlers "github.com/jakub-mrow/AMS-backend/internal/modules/valuation/handlers"
	"github.com/jakub-mrow/AMS-backend/internal/scheduler"
	"github.com/jakub-mrow/AMS-backend/internal/server"
	"github.com/jakub-mrow/AMS-backend/pkg/logger"
	"github.com/rs/zerolog"
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

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting AMS backend")

	// Four-database layout: the transaction journal, current state, daily
	// history, and the market data cache.
	ledgerDB := mustOpen(log, cfg, "ledger", database.ProfileLedger)
	defer ledgerDB.Close()
	portfolioDB := mustOpen(log, cfg, "portfolio", database.ProfileStandard)
	defer portfolioDB.Close()
	historyDB := mustOpen(log, cfg, "history", database.ProfileStandard)
	defer historyDB.Close()
	clientDataDB := mustOpen(log, cfg, "client_data", database.ProfileCache)
	defer clientDataDB.Close()

	bus := events.NewBus(log)

	cacheRepo := clientdata.NewRepository(clientDataDB.Conn())
	rateCache := eodhd.NewDayRateCache(cacheRepo)
	gateway := eodhd.NewClient(cfg.EODHDBaseURL, cfg.EODHDToken, rateCache, log)

	accountRepo := accounts.NewRepository(portfolioDB.Conn(), log)
	accountSvc := accounts.NewService(accountRepo, bus, cfg.BaseCurrency, log)

	historyAccountRepo := history.NewAccountRepository(historyDB.Conn(), log)
	historyAssetRepo := history.NewAssetRepository(historyDB.Conn(), log)

	cashSvc := ledger.NewService(
		ledger.NewTransactionRepository(ledgerDB.Conn(), log),
		ledger.NewBalanceRepository(portfolioDB.Conn(), log),
		accountRepo,
		historyAccountRepo,
		bus,
		log,
	)

	assetSvc := assets.NewService(
		assets.NewAssetRepository(portfolioDB.Conn(), log),
		assets.NewExchangeRepository(portfolioDB.Conn(), log),
		gateway,
		log,
	)

	positionSvc := positions.NewService(
		positions.NewTransactionRepository(ledgerDB.Conn(), log),
		positions.NewBalanceRepository(portfolioDB.Conn(), log),
		assetSvc,
		cashSvc,
		historyAssetRepo,
		gateway,
		bus,
		log,
	)

	// Deleting an account cascades through every module that stores rows
	// keyed by account id.
	accountSvc.RegisterPurger(cashSvc)
	accountSvc.RegisterPurger(positionSvc)

	snapshotSvc := history.NewService(accountRepo, cashSvc, positionSvc, bus, log)
	valuationSvc := valuation.NewService(accountSvc, cashSvc, positionSvc, assetSvc, historyAccountRepo, gateway, log)
	importSvc := importer.NewService(positionSvc, assetSvc, log)

	// Background return recomputation on account changes and price updates.
	worker := valuation.NewWorker(valuationSvc, bus, log)
	worker.Start()

	sched := scheduler.New(log)
	if err := sched.AddJob(scheduler.SnapshotSchedule, scheduler.NewSnapshotJob(snapshotSvc)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register snapshot job")
	}
	if err := sched.AddJob(scheduler.PriceUpdateSchedule, scheduler.NewPriceUpdateJob(positionSvc)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register price update job")
	}
	sched.Start()

	srv := server.New(server.Config{
		Log:    log,
		Config: cfg,
		Handlers: server.Handlers{
			Accounts:  accountshandlers.NewHandler(accountSvc, log),
			Ledger:    ledgerhandlers.NewHandler(cashSvc, log),
			Positions: positionshandlers.NewHandler(positionSvc, log),
			History:   historyhandlers.NewHandler(historyAccountRepo, historyAssetRepo, log),
			Valuation: valuationhandlers.NewHandler(valuationSvc, log),
			Importer:  importerhandlers.NewHandler(importSvc, log),
			Assets:    assetshandlers.NewHandler(assetSvc, log),
		},
		Databases: []*database.DB{ledgerDB, portfolioDB, historyDB, clientDataDB},
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

// mustOpen opens one of the application databases and applies its schema.
func mustOpen(log zerolog.Logger, cfg *config.Config, name string, profile database.DatabaseProfile) *database.DB {
	db, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, name+".db"),
		Profile: profile,
		Name:    name,
	})
	if err != nil {
		log.Fatal().Err(err).Str("database", name).Msg("Failed to open database")
	}
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Str("database", name).Msg("Failed to migrate database")
	}
	return db
}
