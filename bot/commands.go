package bot

import (
	"context"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
)

// start registers the sender; a deep link argument is applied as a referral code.
func (t *TgBot) start(_ *tgbotapi.Bot, ctx *ext.Context) error {
	if t.core == nil {
		return nil
	}
	chatId := ctx.EffectiveUser.Id
	c, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	user, err := t.player(c, ctx.EffectiveUser)
	if err != nil {
		t.reportError(chatId, "/start register", err)
		return nil
	}

	var sb strings.Builder
	sb.WriteString("*Welcome to TapEarn\\!* Tap to earn XP and invite friends to earn from their play\\.")

	if code := startCode(ctx.EffectiveMessage.Text); code != "" {
		result, err := t.core.ApplyReferralCode(c, user, code)
		if err != nil {
			msg, ok := userMessage(err)
			if !ok {
				t.reportError(chatId, "/start apply", err)
				return nil
			}
			t.log.With(
				slog.Int64("id", chatId),
				slog.String("code", code),
				slog.String("reason", err.Error()),
			).Debug("referral code not applied")
			sb.WriteString("\n\n" + msg)
		} else {
			sb.WriteString("\n\n" + formatApplyResult(result))
		}
	}

	t.sendWithKeyboard(chatId, sb.String(), t.mainKeyboard())
	return nil
}

func (t *TgBot) ref(_ *tgbotapi.Bot, ctx *ext.Context) error {
	if t.core == nil {
		return nil
	}
	chatId := ctx.EffectiveUser.Id
	c, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	text, err := t.referralLinkText(c, ctx.EffectiveUser)
	if err != nil {
		t.reportError(chatId, "/ref", err)
		return nil
	}
	t.send(chatId, text)
	return nil
}

func (t *TgBot) stats(_ *tgbotapi.Bot, ctx *ext.Context) error {
	if t.core == nil {
		return nil
	}
	chatId := ctx.EffectiveUser.Id
	c, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	text, err := t.statsText(c, ctx.EffectiveUser)
	if err != nil {
		t.reportError(chatId, "/stats", err)
		return nil
	}
	t.send(chatId, text)
	return nil
}

func (t *TgBot) daily(_ *tgbotapi.Bot, ctx *ext.Context) error {
	if t.core == nil {
		return nil
	}
	chatId := ctx.EffectiveUser.Id
	c, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	user, err := t.player(c, ctx.EffectiveUser)
	if err != nil {
		t.reportError(chatId, "/daily", err)
		return nil
	}
	status, err := t.core.DailyStatus(c, user)
	if err != nil {
		t.reportError(chatId, "/daily", err)
		return nil
	}
	t.send(chatId, formatDailyStatus(status, time.Now()))
	return nil
}

func (t *TgBot) help(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveUser.Id
	t.send(chatId, helpText(t.isAdmin(chatId)))
	return nil
}

func helpText(isAdmin bool) string {
	var sb strings.Builder
	sb.WriteString("*Available Commands*\n\n")

	sb.WriteString("`/start` \\- Register and open the game\n")
	sb.WriteString("`/ref` \\- Your referral code and link\n")
	sb.WriteString("`/stats` \\- Referral statistics\n")
	sb.WriteString("`/daily` \\- Daily reward status\n")
	sb.WriteString("`/help` \\- Show this help\n")

	if isAdmin {
		sb.WriteString("\n*Admin Commands:*\n")
		sb.WriteString("`/check` \\- Run the referral integrity check\n")
	}
	return sb.String()
}

func (t *TgBot) referralLinkText(c context.Context, sender *tgbotapi.User) (string, error) {
	user, err := t.player(c, sender)
	if err != nil {
		return "", err
	}
	link, err := t.core.GenerateReferralCode(c, user)
	if err != nil {
		return "", err
	}
	return formatReferralLink(link), nil
}

func (t *TgBot) statsText(c context.Context, sender *tgbotapi.User) (string, error) {
	user, err := t.player(c, sender)
	if err != nil {
		return "", err
	}
	stats, err := t.core.ReferralStats(c, user)
	if err != nil {
		return "", err
	}
	return formatStats(stats), nil
}
