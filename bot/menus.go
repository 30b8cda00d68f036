package bot

import (
	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
)

// Command lists for Telegram's menu button (the "/" icon in the chat input).
// Players get the default scope; each configured admin gets a chat-scoped list.

var commandsPlayer = []tgbotapi.BotCommand{
	{Command: "start", Description: "Register and open the game"},
	{Command: "ref", Description: "Your referral link"},
	{Command: "stats", Description: "Referral statistics"},
	{Command: "daily", Description: "Daily reward status"},
	{Command: "help", Description: "Show available commands"},
}

var commandsAdmin = append(append([]tgbotapi.BotCommand{}, commandsPlayer...),
	tgbotapi.BotCommand{Command: "check", Description: "Run referral integrity check"},
)

func (t *TgBot) setDefaultCommands() {
	_, err := t.api.SetMyCommands(commandsPlayer, &tgbotapi.SetMyCommandsOpts{
		Scope: tgbotapi.BotCommandScopeDefault{},
	})
	if err != nil {
		t.log.Warn("setting default commands", "error", err)
	}
}

func (t *TgBot) setAdminCommands() {
	for _, chatId := range t.config.AdminIds {
		_, err := t.api.SetMyCommands(commandsAdmin, &tgbotapi.SetMyCommandsOpts{
			Scope: tgbotapi.BotCommandScopeChat{ChatId: chatId},
		})
		if err != nil {
			t.log.Warn("setting admin commands", "chat_id", chatId, "error", err)
		}
	}
}
