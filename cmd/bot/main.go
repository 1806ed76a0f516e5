package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"late_report_bot/internal/app"
	"late_report_bot/internal/domain/latereport"
	"late_report_bot/internal/domain/stats"
	"late_report_bot/internal/infra/cache"
	"late_report_bot/internal/infra/config"
	idb "late_report_bot/internal/infra/database"
	"late_report_bot/internal/infra/httpapi"
	"late_report_bot/internal/infra/logger"
	"late_report_bot/internal/infra/scheduler"
	"late_report_bot/internal/infra/telegram"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.WithError(err).Fatal("Could not load application configuration")
	}
	logger.Init(cfg)
	mainLogger := logger.Component("main")

	mainLogger.WithFields(logrus.Fields{
		"environment":   cfg.Environment,
		"timezone":      cfg.Location.String(),
		"db_driver":     cfg.DatabaseDriver,
		"cache_backend": cfg.StatsCacheBackend,
	}).Info("Late report bot starting...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := idb.NewPostgresConnection(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not connect to database")
	}
	defer db.Close()
	if err := idb.EnsureSchema(ctx, db); err != nil {
		mainLogger.WithError(err).Fatal("Could not prepare database schema")
	}
	mainLogger.Info("Database connection established successfully.")

	// Repositories
	reportStore := idb.NewPostgresLateReportRepository(db)
	memberRepo := idb.NewPostgresMemberRepository(db)
	sessionRepo := idb.NewPostgresSessionRepository(db)
	systemStats := idb.NewPostgresSystemStatsRepository(db)

	var statsCache stats.Cache = idb.NewPostgresStatsCache(db)
	if cfg.StatsCacheBackend == "memory" {
		statsCache = cache.NewMemoryStore()
	}

	// Services
	statsService := app.NewStatsService(reportStore, statsCache, cfg.StatsCacheTTL, cfg.Location, logger.Component("stats"))
	reportRepo := latereport.WithCacheInvalidation(reportStore, statsService)

	vocab, err := config.LoadVocabulary(cfg.VocabularyFile)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not load late report vocabulary")
	}

	botLogger := logger.Component("telegram")
	bot, err := telebot.NewBot(telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) { // Global error handler
			entry := botLogger.WithError(err)
			if c != nil && c.Sender() != nil && c.Chat() != nil {
				entry = entry.WithFields(logrus.Fields{"sender_id": c.Sender().ID, "chat_id": c.Chat().ID})
			}
			entry.Error("Telebot error")
		},
	})
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not create Telegram bot")
	}

	lateReportService := app.NewLateReportServiceImpl(
		reportRepo,
		memberRepo,
		statsService,
		sessionRepo,
		telegram.NewTelebotAdapter(bot),
		vocab,
		cfg.ReasonRules,
		cfg.SessionTTL,
		cfg.Location,
		logger.Component("late_report"),
	)
	adminService := app.NewAdminService(reportRepo, memberRepo, statsService, systemStats,
		cfg.LateReportsListMax, cfg.Environment, cfg.Location)

	// Handlers; the member middleware must be installed before any Handle call.
	bot.Use(telegram.ResolveMembers(ctx, memberRepo, cfg.RoleGrants, botLogger))
	telegram.RegisterBotCommands(ctx, bot, lateReportService, statsService, cfg.Environment, cfg.Location, botLogger)
	telegram.RegisterAdminHandlers(ctx, bot, adminService, cfg.Location, botLogger)
	telegram.RegisterLateReportHandlers(ctx, bot, telegram.LateReportHandlerDeps{
		Service:    lateReportService,
		Vocabulary: vocab,
		Rules:      cfg.ReasonRules,
		Location:   cfg.Location,
	}, botLogger)
	mainLogger.Info("Telegram handlers registered.")

	// Scheduler
	maintenance := scheduler.NewMaintenanceScheduler(statsService, sessionRepo, cfg.Location, cfg.CronSpecCacheSweep, logger.Component("scheduler"))
	if err := maintenance.Start(); err != nil {
		mainLogger.WithError(err).Fatal("Could not start maintenance scheduler")
	}

	// HTTP stats API
	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           httpapi.NewRouter(statsService, adminService, db, logger.Component("http")).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		mainLogger.WithField("addr", server.Addr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			mainLogger.WithError(err).Error("HTTP server failed")
			stop()
		}
	}()

	// Start bot in a goroutine so it doesn't block graceful shutdown handling
	go bot.Start()
	mainLogger.Info("Application setup complete. Bot, scheduler and HTTP server are running.")

	<-ctx.Done()

	mainLogger.Info("Shutting down application...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		mainLogger.WithError(err).Warn("HTTP server did not shut down cleanly")
	}
	bot.Stop()
	maintenance.Stop()
	mainLogger.Info("Application shut down gracefully.")
}
