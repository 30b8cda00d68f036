package bot

import (
	"context"
	"time"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
)

const checkTimeout = time.Minute

// check runs the referral integrity check on demand and replies with the full report.
func (t *TgBot) check(_ *tgbotapi.Bot, ctx *ext.Context) error {
	if t.core == nil {
		return nil
	}
	chatId := ctx.EffectiveUser.Id
	if !t.isAdmin(chatId) {
		t.send(chatId, "Admin access required\\.")
		return nil
	}

	c, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	report, err := t.core.CheckIntegrity(c)
	if err != nil {
		t.reportError(chatId, "/check", err)
		return nil
	}
	for _, part := range splitMessage(formatIntegrityReport(report), maxTelegramMessageLen) {
		t.send(chatId, part)
	}
	return nil
}
