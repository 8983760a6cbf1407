package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"persona_reminder_bot/internal/app"
	"persona_reminder_bot/internal/infra/config"
	idb "persona_reminder_bot/internal/infra/database"
	"persona_reminder_bot/internal/infra/logger"
	"persona_reminder_bot/internal/infra/push"
	"persona_reminder_bot/internal/infra/scheduler"
	"persona_reminder_bot/internal/infra/telegram"

	"github.com/benbjohnson/clock"
	"gopkg.in/telebot.v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: Could not load application configuration: %v", err)
	}

	logger.Init(cfg)
	mainLogger := logger.WithComponent("main")
	mainLogger.Infof("Configuration loaded. LogLevel: %s, Environment: %s, MaxActiveReminders: %d, ReplaceOnCreate: %t",
		cfg.LogLevel, cfg.Environment, cfg.MaxActiveReminders, cfg.ReplaceOnCreate)

	// Database
	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		mainLogger.Fatalf("FATAL: Could not connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := idb.Migrate(ctx, db); err != nil {
		mainLogger.Fatalf("FATAL: Could not migrate database schema: %v", err)
	}
	mainLogger.Info("Database connection established and schema migrated")

	reminderRepo := idb.NewPostgresReminderRepository(db)

	// Telegram bot
	pref := telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) {
			entry := logger.WithComponent("telebot").WithError(err)
			if c != nil && c.Sender() != nil {
				entry = entry.WithField("sender_id", c.Sender().ID)
			}
			entry.Error("Telegram handler error")
		},
	}
	bot, err := telebot.NewBot(pref)
	if err != nil {
		mainLogger.Fatalf("FATAL: Could not create Telegram bot: %v", err)
	}

	notifClient := telegram.NewTelebotNotifier(bot, cfg.RecipientChatID)
	notifClient.RegisterCallbacks(bot)

	// Scheduler and service
	wallClock := clock.New()
	notifScheduler := scheduler.NewTimerScheduler(
		reminderRepo,
		notifClient,
		wallClock,
		logger.WithComponent("scheduler"),
		time.Duration(cfg.SnoozeIntervalMinutes)*time.Minute,
		cfg.CronSpecRecurringCheck,
	)

	reminderService := app.NewReminderService(
		reminderRepo,
		notifScheduler,
		wallClock,
		logger.WithComponent("reminder_service"),
		cfg.MaxActiveReminders,
		cfg.ReplaceOnCreate,
	)

	if err := notifScheduler.Start(); err != nil {
		mainLogger.Fatalf("FATAL: Could not start scheduler: %v", err)
	}
	if err := reminderService.Rehydrate(ctx); err != nil {
		mainLogger.Fatalf("FATAL: Could not rehydrate reminders: %v", err)
	}

	telegram.RegisterBotCommands(ctx, bot, reminderService, notifClient, logger.WithComponent("commands"))
	mainLogger.Info("Command handlers registered")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Optional background push channel. SKIP_WAITING asks the process to step
	// aside for a replacement, so it feeds the same shutdown path.
	var pushChannel *push.Channel
	if cfg.PushListenAddr != "" {
		pushChannel = push.NewChannel(cfg.PushListenAddr, notifClient, logger.WithComponent("push"), func() {
			quit <- syscall.SIGTERM
		})
		if err := pushChannel.Install(); err != nil {
			mainLogger.Fatalf("FATAL: Could not install push channel: %v", err)
		}
		if err := pushChannel.Activate(); err != nil {
			mainLogger.Fatalf("FATAL: Could not activate push channel: %v", err)
		}
		go func() {
			if err := pushChannel.Start(); err != nil {
				mainLogger.Errorf("Push channel stopped: %v", err)
			}
		}()
	}

	go bot.Start()
	mainLogger.Info("Application setup complete. Bot and scheduler are running.")

	<-quit

	mainLogger.Info("Shutting down application...")
	notifScheduler.Stop()
	if pushChannel != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := pushChannel.Shutdown(shutdownCtx); err != nil {
			mainLogger.Errorf("Push channel shutdown failed: %v", err)
		}
		cancel()
	}
	bot.Stop()
	mainLogger.Info("Application shut down gracefully.")
}
