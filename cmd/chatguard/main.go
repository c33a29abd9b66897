package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/chatguard/internal/bot"
	"github.com/iamwavecut/chatguard/internal/config"
	"github.com/iamwavecut/chatguard/internal/db/sqlite"
	"github.com/iamwavecut/chatguard/internal/gateway/telegram"
	handlers "github.com/iamwavecut/chatguard/internal/handlers/chat"
	"github.com/iamwavecut/chatguard/internal/lifecycle"
	"github.com/iamwavecut/chatguard/internal/moderation"
	"github.com/iamwavecut/chatguard/internal/observability"
	"github.com/iamwavecut/chatguard/internal/protection"
	"github.com/iamwavecut/chatguard/internal/rates"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	log.SetFormatter(&config.NbFormatter{})
	log.SetOutput(os.Stdout)
	if err != nil {
		log.WithField("error", err.Error()).Fatalln("cant load config")
	}
	log.SetLevel(log.Level(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.WithField("error", err.Error()).Fatalln("guard stopped with error")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	botAPI, err := api.NewBotAPI(cfg.TelegramAPIToken)
	if err != nil {
		return err
	}
	if log.Level(cfg.LogLevel) == log.TraceLevel {
		botAPI.Debug = true
	}

	store, err := sqlite.NewSQLiteClient(ctx, cfg.DotPath, cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	audit, err := observability.NewAuditLogger(cfg.DotPath)
	if err != nil {
		return err
	}
	defer func() { _ = audit.Sync() }()

	gw := telegram.NewOperations(botAPI, nil)
	windows := protection.NewWindows(protection.RetentionFor(cfg.Protection))
	pipeline := protection.NewDefaultPipeline(cfg.Protection, windows)
	engine := moderation.NewEngine(store, gw, pipeline, cfg.Protection, botAPI.Self.ID, audit)

	limiter := rates.NewLimiter()
	guard := handlers.NewGuard(engine, gw, rates.NewPolicy(limiter, cfg.RateLimits), botAPI.Self.ID)
	service := bot.NewService(botAPI, bot.NewUpdateProcessor(guard))

	runtime := lifecycle.NewRuntime(
		lifecycle.Named("observability", observability.NewSetup(cfg.MetricsAddr)),
		lifecycle.Named("rate_janitor", limiter),
		lifecycle.Named("mute_sweeper", engine.Mutes()),
		lifecycle.Named("updates", service),
	)
	if err := runtime.Start(ctx); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"bot":     botAPI.Self.UserName,
		"db":      cfg.DBFile,
		"metrics": cfg.MetricsAddr,
	}).Info("guard started")

	<-ctx.Done()
	log.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return runtime.Stop(stopCtx)
}
