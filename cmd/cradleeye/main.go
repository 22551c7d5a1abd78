package main

import (
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cradleeye/internal/alert"
	"github.com/cradleeye/internal/api"
	"github.com/cradleeye/internal/auth"
	"github.com/cradleeye/internal/config"
	"github.com/cradleeye/internal/database"
	"github.com/cradleeye/internal/history"
	"github.com/cradleeye/internal/logging"
	"github.com/cradleeye/internal/monitor"
	"github.com/cradleeye/internal/notify"
	"github.com/cradleeye/internal/quality"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Dir)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer database.Close(db)

	authSvc := auth.NewService(cfg.Server.JWTSecret, db)
	adminPassword := os.Getenv("CRADLEEYE_ADMIN_PASSWORD")
	if adminPassword == "" {
		adminPassword = "cradleeye"
	}
	if err := authSvc.EnsureAdmin("admin", adminPassword); err != nil {
		logger.Fatal("failed to seed admin user", zap.Error(err))
	}

	dispatcher := notify.NewDispatcher(logger,
		notify.NewPushNotifier(cfg.Slack),
		notify.NewEmailNotifier(cfg.SMTP),
		notify.NewSMSNotifier(cfg.SMS),
		notify.NewWebhookNotifier(),
	)

	store := history.NewStore(db, logger)
	manager := alert.NewManager(cfg, alert.NewSuppressionPolicy(), dispatcher, logger)
	manager.AddListener(store)
	defer manager.Close()

	aggregator := quality.NewAggregator()
	engine := quality.NewEngine(cfg.Quality)
	controller := quality.NewController(cfg.Quality, aggregator, engine, logger)

	watcher := monitor.NewWatcher(cfg.Monitor, manager, dispatcher, logger)
	watcher.Start()
	defer watcher.Stop()

	if cfg.History.RetentionDays > 0 {
		retention := time.Duration(cfg.History.RetentionDays) * 24 * time.Hour
		go func() {
			ticker := time.NewTicker(24 * time.Hour)
			defer ticker.Stop()
			for range ticker.C {
				removed, err := store.Trim(retention)
				if err != nil {
					logger.Warn("history trim failed", zap.Error(err))
				} else if removed > 0 {
					logger.Info("history trimmed", zap.Int64("removed", removed))
				}
			}
		}()
	}

	server := api.NewServer(manager, dispatcher, controller, store, authSvc, logger)
	logger.Info("cradleeye listening", zap.Int("port", cfg.Server.Port))
	if err := server.Start(cfg.Server.Port); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
