// Package bot implements the Telegram side of the game.
//
// Architecture overview:
//   - tgbot.go    : TgBot struct, lifecycle (Start/Stop), Core interface
//   - commands.go : Player commands: /start [code], /ref, /stats, /daily, /help
//   - admin.go    : Admin commands: /check
//   - callbacks.go: Inline keyboard builders and callback query handlers
//   - menus.go    : Command menus for players and admins via BotCommandScope
//   - messaging.go: Admin alerts from the slog handler and integrity reports
//   - digest.go   : DigestBuffer for batched admin notifications
//   - helpers.go  : Shared utilities: Sanitize, plainResponse, reportError, formatting
//
// Referral deep links have the form https://t.me/<bot>?start=<code>; opening
// one sends "/start <code>", which registers the player and applies the code.
//
// Admins are configured by telegram id. Error-level alerts are sent to them
// immediately, lower levels and clean integrity reports are buffered into a digest.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"tapearn/entity"
	"tapearn/internal/referral"
	"tapearn/lib/sl"
	"time"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers/filters/callbackquery"
)

const commandTimeout = 10 * time.Second

// BotConfig holds Telegram-specific configuration loaded from the YAML config file.
type BotConfig struct {
	AdminIds       []int64
	DigestInterval time.Duration
	WebAppUrl      string
}

// Core defines the game operations the bot depends on.
// Implemented by impl/core.
type Core interface {
	RegisterTelegramUser(ctx context.Context, profile *entity.TelegramProfile) (*entity.User, error)
	GenerateReferralCode(ctx context.Context, user *entity.User) (*entity.ReferralLink, error)
	ApplyReferralCode(ctx context.Context, user *entity.User, code string) (*entity.ApplyResult, error)
	ReferralStats(ctx context.Context, user *entity.User) (*entity.ReferralStats, error)
	DailyStatus(ctx context.Context, user *entity.User) (*entity.DailyStatus, error)
	CheckIntegrity(ctx context.Context) (*referral.Report, error)
}

type TgBot struct {
	log     *slog.Logger
	api     *tgbotapi.Bot
	core    Core
	updater *ext.Updater
	digest  *DigestBuffer
	send    func(chatId int64, text string)
	config  BotConfig
}

func NewTgBot(apiKey string, log *slog.Logger, cfg BotConfig) (*TgBot, error) {
	if cfg.DigestInterval <= 0 {
		cfg.DigestInterval = 5 * time.Minute
	}

	tgBot := &TgBot{
		log:    log.With(sl.Module("tgbot")),
		config: cfg,
	}
	tgBot.send = tgBot.plainResponse
	tgBot.digest = NewDigestBuffer(tgBot.send, cfg.DigestInterval)

	api, err := tgbotapi.NewBot(apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating api instance: %v", err)
	}
	tgBot.api = api

	return tgBot, nil
}

// SetCore connects the game services; the bot is created before them so that
// the services can log through it.
func (t *TgBot) SetCore(core Core) {
	t.core = core
}

func (t *TgBot) Username() string {
	if t.api == nil {
		return ""
	}
	return t.api.Username
}

func (t *TgBot) Start() error {
	t.digest.StartTicker()

	dispatcher := ext.NewDispatcher(&ext.DispatcherOpts{
		Error: func(b *tgbotapi.Bot, ctx *ext.Context, err error) ext.DispatcherAction {
			t.log.Error("handling update:", sl.Err(err))
			return ext.DispatcherActionNoop
		},
		MaxRoutines: ext.DefaultMaxRoutines,
	})
	t.updater = ext.NewUpdater(dispatcher, nil)

	// Player commands
	dispatcher.AddHandler(handlers.NewCommand("start", t.start))
	dispatcher.AddHandler(handlers.NewCommand("ref", t.ref))
	dispatcher.AddHandler(handlers.NewCommand("stats", t.stats))
	dispatcher.AddHandler(handlers.NewCommand("daily", t.daily))
	dispatcher.AddHandler(handlers.NewCommand("help", t.help))

	// Admin commands
	dispatcher.AddHandler(handlers.NewCommand("check", t.check))

	dispatcher.AddHandler(handlers.NewCallback(callbackquery.Prefix(cbReferral), t.onReferralCallback))

	t.setDefaultCommands()
	t.setAdminCommands()

	err := t.updater.StartPolling(t.api, &ext.PollingOpts{
		DropPendingUpdates: true,
		GetUpdatesOpts: &tgbotapi.GetUpdatesOpts{
			Timeout: 9,
			RequestOpts: &tgbotapi.RequestOpts{
				Timeout: time.Second * 10,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to start polling: %w", err)
	}

	t.updater.Idle()
	return nil
}

func (t *TgBot) Stop() {
	if t.updater != nil {
		t.log.Info("stopping telegram bot")
		t.updater.Stop()
	}
	if t.digest != nil {
		t.digest.Stop()
	}
}

func (t *TgBot) isAdmin(chatId int64) bool {
	return slices.Contains(t.config.AdminIds, chatId)
}

// player registers or refreshes the sender of an update.
func (t *TgBot) player(ctx context.Context, sender *tgbotapi.User) (*entity.User, error) {
	return t.core.RegisterTelegramUser(ctx, &entity.TelegramProfile{
		Id:           sender.Id,
		Username:     sender.Username,
		FirstName:    sender.FirstName,
		LastName:     sender.LastName,
		LanguageCode: sender.LanguageCode,
	})
}
