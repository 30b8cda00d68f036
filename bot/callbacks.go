package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
)

// Callback data prefixes for inline keyboard buttons.
// Telegram limits callback data to 64 bytes, so prefixes are kept short.
const (
	cbReferral = "rf:" // rf:link, rf:stats

	cbReferralLink  = "link"
	cbReferralStats = "stats"
)

// mainKeyboard is attached to the welcome message: game button when the
// Mini App url is configured, then referral shortcuts.
func (t *TgBot) mainKeyboard() tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, 2)
	if t.config.WebAppUrl != "" {
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			{Text: "Play", WebApp: &tgbotapi.WebAppInfo{Url: t.config.WebAppUrl}},
		})
	}
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		{Text: "My referral link", CallbackData: cbReferral + cbReferralLink},
		{Text: "Referral stats", CallbackData: cbReferral + cbReferralStats},
	})
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func (t *TgBot) onReferralCallback(_ *tgbotapi.Bot, ctx *ext.Context) error {
	cq := ctx.CallbackQuery
	chatId := cq.From.Id

	if t.core == nil {
		_, _ = cq.Answer(t.api, &tgbotapi.AnswerCallbackQueryOpts{Text: "Not available", ShowAlert: true})
		return nil
	}

	c, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var text string
	var err error
	action := strings.TrimPrefix(cq.Data, cbReferral)
	switch action {
	case cbReferralLink:
		text, err = t.referralLinkText(c, &cq.From)
	case cbReferralStats:
		text, err = t.statsText(c, &cq.From)
	default:
		_, _ = cq.Answer(t.api, &tgbotapi.AnswerCallbackQueryOpts{Text: "Unknown action"})
		return nil
	}
	if err != nil {
		t.reportError(chatId, "callback:"+action, err)
		_, _ = cq.Answer(t.api, &tgbotapi.AnswerCallbackQueryOpts{Text: "Error occurred"})
		return nil
	}

	t.send(chatId, text)
	_, _ = cq.Answer(t.api, &tgbotapi.AnswerCallbackQueryOpts{})
	return nil
}
