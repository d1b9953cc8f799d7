// Package main is the entry point for the wallet server: the HTTP API, the
// payment poller and the optional admin bot.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"stream-wallet/internal/api"
	"stream-wallet/internal/bot"
	"stream-wallet/internal/config"
	"stream-wallet/internal/gateway"
	"stream-wallet/internal/pkg/db"
	"stream-wallet/internal/repository"
	"stream-wallet/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(&cfg.Log)
	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(cfg.Database.DSN()); err != nil {
			log.Fatal().Err(err).Msg("Failed to run database migrations")
		}
	}

	// Initialize repositories
	accountRepo := repository.NewAccountRepository(dbPool.Pool)
	ledgerRepo := repository.NewLedgerRepository(dbPool.Pool)
	walletRepo := repository.NewWalletRepository(dbPool.Pool)
	giftRepo := repository.NewGiftRepository(dbPool.Pool)
	paymentRepo := repository.NewPaymentRepository(dbPool.Pool)
	withdrawalRepo := repository.NewWithdrawalRepository(dbPool.Pool)
	battleRepo := repository.NewPKBattleRepository(dbPool.Pool)

	// Initialize services
	tz := cfg.Server.Location()
	ledgerService := service.NewLedgerService(dbPool.Pool, accountRepo, ledgerRepo, walletRepo)
	giftService := service.NewGiftService(dbPool.Pool, accountRepo, giftRepo, ledgerService)

	gw := gateway.NewClient(&cfg.Payment)
	paymentService := service.NewPaymentService(
		dbPool.Pool,
		paymentRepo,
		accountRepo,
		giftRepo,
		walletRepo,
		ledgerService,
		gw,
		service.PaymentOptions{
			PricePerDiamondMinor: cfg.Payment.PricePerDiamondMinor,
			MaxDiamondsPerOrder:  cfg.Payment.MaxDiamondsPerOrder,
			Currency:             cfg.Payment.Currency,
			RedirectURL:          cfg.Payment.RedirectURL,
			Timezone:             tz,
		},
	)
	poller := service.NewPaymentPoller(paymentService, gw, cfg.Payment.PollInterval, cfg.Payment.PollAttempts)
	defer poller.Stop()

	withdrawalService := service.NewWithdrawalService(dbPool.Pool, withdrawalRepo, accountRepo, ledgerService, cfg.Withdrawal)
	if err := withdrawalService.LoadPolicies(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to load withdrawal policies, using configured defaults")
	}
	pkService := service.NewPKBattleService(dbPool.Pool, battleRepo, accountRepo)
	reportService := service.NewReportService(ledgerRepo, tz)

	if _, err := poller.Resume(ctx, 500); err != nil {
		log.Error().Err(err).Msg("Failed to resume pending payment watchers")
	}

	handler := api.NewHandler(api.Services{
		Ledger:      ledgerService,
		Gifts:       giftService,
		Payments:    paymentService,
		Poller:      poller,
		Withdrawals: withdrawalService,
		PK:          pkService,
		Reports:     reportService,
		DB:          dbPool.Pool,
	}, cfg.Payment.WebhookUsername, cfg.Payment.WebhookPassword)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewRouter(handler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server is starting...")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// The admin bot is optional
	var adminBot *bot.Bot
	if cfg.Bot.Token != "" {
		adminBot, err = bot.New(&bot.Dependencies{
			Config:      cfg,
			Ledger:      ledgerService,
			Withdrawals: withdrawalService,
			Payments:    paymentService,
			PK:          pkService,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create bot")
		}
		go adminBot.Start()
	} else {
		log.Info().Msg("Bot token not set, admin bot disabled")
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	if adminBot != nil {
		adminBot.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped gracefully")
}

func setupLogger(cfg *config.LogConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
