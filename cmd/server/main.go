package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"tapearn/bot"
	"tapearn/impl/auth"
	"tapearn/impl/core"
	"tapearn/internal/config"
	"tapearn/internal/database"
	"tapearn/internal/gameplay"
	"tapearn/internal/http-server/api"
	"tapearn/internal/jobs"
	"tapearn/internal/metrics"
	"tapearn/internal/referral"
	"tapearn/lib/logger"
	"tapearn/lib/sl"
	"tapearn/lib/tgauth"
	"time"
)

func main() {
	configPath := flag.String("conf", "config.yml", "path to config file")
	logPath := flag.String("log", "/var/log/", "path to log file directory")
	flag.Parse()

	conf := config.MustLoad(*configPath)
	lg := logger.SetupLogger(conf.Env, *logPath)
	lg.Info("starting tapearn", slog.String("config", *configPath), slog.String("env", conf.Env))

	if err := metrics.Setup(); err != nil {
		lg.Error("metrics setup", sl.Err(err))
	}

	var tgBot *bot.TgBot
	if conf.Telegram.Enabled {
		var err error
		tgBot, err = bot.NewTgBot(conf.Telegram.ApiKey, lg, bot.BotConfig{
			AdminIds:       conf.Telegram.AdminIds,
			DigestInterval: conf.Telegram.DigestInterval,
			WebAppUrl:      conf.Telegram.WebAppUrl,
		})
		if err != nil {
			lg.Error("telegram bot", sl.Err(err))
			tgBot = nil
		} else {
			level := logger.ParseLevel(conf.Telegram.AlertLevel)
			lg = slog.New(logger.NewTelegramHandler(lg.Handler(), tgBot, level))
			lg.Info("telegram alerts enabled", slog.String("level", level.String()))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	db, err := database.Connect(ctx, conf)
	if err == nil {
		err = db.EnsureIndexes(ctx)
	}
	cancel()
	if err != nil {
		lg.Error("mongo setup", sl.Err(err))
		os.Exit(1)
	}
	lg.Info("mongo connected", slog.String("database", conf.Mongo.Database))

	botUsername := conf.Telegram.BotUsername
	if botUsername == "" && tgBot != nil {
		botUsername = tgBot.Username()
	}

	refService := referral.NewService(db, referral.Config{
		BotUsername:  botUsername,
		MaxTier:      conf.Referral.MaxTier,
		ScanDepth:    conf.Referral.ScanDepth,
		CodeLength:   conf.Referral.CodeLength,
		CodeAttempts: conf.Referral.CodeAttempts,
		Retry: referral.RetryPolicy{
			MaxAttempts: conf.Referral.RetryAttempts,
			Backoff:     conf.Referral.RetryBackoff,
		},
	}, lg)
	game := gameplay.New(db, refService, lg)

	handler := core.New(refService, game, lg)
	handler.SetAuthService(auth.New(tgauth.NewVerifier(conf.Telegram.ApiKey, conf.Telegram.InitDataMaxAge), game))

	var scheduler *jobs.Scheduler
	if conf.Monitor.Enabled {
		scheduler, err = jobs.New(lg)
		if err == nil {
			var sink jobs.ReportSink
			if tgBot != nil {
				sink = tgBot
			}
			err = scheduler.ScheduleIntegrityCheck(conf.Monitor.Interval, handler, sink)
		}
		if err != nil {
			lg.Error("integrity monitor", sl.Err(err))
			scheduler = nil
		} else {
			scheduler.Start()
		}
	}

	if tgBot != nil {
		tgBot.SetCore(handler)
		go func() {
			if err := tgBot.Start(); err != nil {
				lg.Error("telegram bot", sl.Err(err))
			}
		}()
	}

	server := api.New(conf, lg, handler)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	stop, stopCancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopCancel()

	select {
	case <-stop.Done():
		lg.Info("shutdown signal received")
	case err = <-serverErr:
		if err != nil {
			lg.Error("api server", sl.Err(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err = server.Shutdown(shutdownCtx); err != nil {
		lg.Error("api server shutdown", sl.Err(err))
	}
	if scheduler != nil {
		if err = scheduler.Shutdown(); err != nil {
			lg.Error("scheduler shutdown", sl.Err(err))
		}
	}
	game.Wait()
	if tgBot != nil {
		tgBot.Stop()
	}
	if err = db.Disconnect(shutdownCtx); err != nil {
		lg.Error("mongo disconnect", sl.Err(err))
	}
	lg.Info("stopped")
}
