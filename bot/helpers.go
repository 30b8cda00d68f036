package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"tapearn/entity"
	"tapearn/internal/referral"
	"tapearn/lib/clock"
	"tapearn/lib/sl"
	"time"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
)

func (t *TgBot) plainResponse(chatId int64, text string) {
	if text == "" {
		t.log.With("id", chatId).Debug("empty message")
		return
	}

	_, err := t.api.SendMessage(chatId, text, &tgbotapi.SendMessageOpts{
		ParseMode: "MarkdownV2",
	})
	if err != nil {
		t.log.With(slog.Int64("id", chatId)).Warn("sending message", sl.Err(err))
		_, err = t.api.SendMessage(chatId, text, &tgbotapi.SendMessageOpts{})
		if err != nil {
			t.log.With(slog.Int64("id", chatId)).Error("sending safe message", sl.Err(err))
		}
	}
}

func Sanitize(input string) string {
	reservedChars := "\\_{}#+-.!|()[]=*~`>"
	var sb strings.Builder
	for _, char := range input {
		if strings.ContainsRune(reservedChars, char) {
			sb.WriteRune('\\')
		}
		sb.WriteRune(char)
	}
	return sb.String()
}

func (t *TgBot) notifyAdmins(msg string) {
	for _, id := range t.config.AdminIds {
		t.send(id, msg)
	}
}

func splitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			parts = append(parts, text)
			break
		}
		// Try to split at newline
		cutAt := maxLen
		nlIdx := strings.LastIndex(text[:maxLen], "\n")
		if nlIdx > 0 {
			cutAt = nlIdx + 1
		}
		parts = append(parts, text[:cutAt])
		text = text[cutAt:]
	}
	return parts
}

func userDisplayName(user *entity.User) string {
	name := user.DisplayName()
	if name == fmt.Sprintf("%d", user.TelegramId) {
		return name
	}
	return fmt.Sprintf("%s (%d)", name, user.TelegramId)
}

// sendWithKeyboard sends a message with an inline keyboard attached.
func (t *TgBot) sendWithKeyboard(chatId int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	if text == "" {
		return
	}
	_, err := t.api.SendMessage(chatId, text, &tgbotapi.SendMessageOpts{
		ParseMode:   "MarkdownV2",
		ReplyMarkup: keyboard,
	})
	if err != nil {
		t.log.With(slog.Int64("id", chatId)).Warn("sending message with keyboard", sl.Err(err))
		_, err = t.api.SendMessage(chatId, text, &tgbotapi.SendMessageOpts{
			ReplyMarkup: keyboard,
		})
		if err != nil {
			t.log.With(slog.Int64("id", chatId)).Error("sending message with keyboard fallback", sl.Err(err))
		}
	}
}

// reportError logs the error, notifies admins with details, and sends a neutral message to the user.
func (t *TgBot) reportError(chatId int64, command string, err error) {
	t.log.Error("bot command failed",
		slog.String("command", command),
		slog.Int64("user_id", chatId),
		sl.Err(err),
	)
	t.notifyAdmins(fmt.Sprintf(
		"Command `%s` failed\nUser: `%d`\nError: `%s`",
		Sanitize(command), chatId, Sanitize(err.Error()),
	))
	t.send(chatId, "Something went wrong\\. Please try again later\\.")
}

// userMessage returns the text shown to a player for errors caused by the
// request itself; false means the error is internal.
func userMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, referral.ErrValidation):
		return "That referral code does not look right\\.", true
	case errors.Is(err, referral.ErrNotFound):
		return "Referral code not found\\.", true
	case errors.Is(err, referral.ErrConflict):
		return "You have already used a referral code\\.", true
	default:
		return "", false
	}
}

func startCode(text string) string {
	args := strings.Fields(text)
	if len(args) < 2 {
		return ""
	}
	return args[1]
}

func formatReferralLink(link *entity.ReferralLink) string {
	return fmt.Sprintf(
		"*Your referral code:* `%s`\n\nShare this link, you earn XP every time your friends play:\n%s",
		Sanitize(link.Code), Sanitize(link.Link),
	)
}

func formatApplyResult(result *entity.ApplyResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("You joined through *%s*\\!", Sanitize(result.Referrer.Username)))
	if len(result.Chain) > 1 {
		names := make([]string, 0, len(result.Chain))
		for _, member := range result.Chain {
			names = append(names, Sanitize(member.Username))
		}
		sb.WriteString("\nYour referral chain: " + strings.Join(names, " ← "))
	}
	return sb.String()
}

func formatStats(stats *entity.ReferralStats) string {
	var sb strings.Builder
	sb.WriteString("*Referral stats*\n")
	sb.WriteString(fmt.Sprintf("Referrals: `%d`\n", stats.TotalReferrals))
	sb.WriteString(fmt.Sprintf("Earned: `%d XP`\n", stats.TotalEarnings))
	for tier := 1; tier <= entity.MaxReferralTier; tier++ {
		ts := stats.Tiers[fmt.Sprintf("tier%d", tier)]
		sb.WriteString(fmt.Sprintf("Tier %d: `%d` users, `%d XP`\n", tier, ts.Count, ts.Earnings))
	}
	if len(stats.DirectReferrals) > 0 {
		sb.WriteString("\n*Latest referrals*\n")
		for i, d := range stats.DirectReferrals {
			if i == 10 {
				sb.WriteString(fmt.Sprintf("and %d more\n", len(stats.DirectReferrals)-10))
				break
			}
			sb.WriteString(fmt.Sprintf("%s \\- `%d XP`\n", Sanitize(d.Username), d.RewardsGenerated))
		}
	}
	if stats.Code != "" {
		sb.WriteString(fmt.Sprintf("\nYour code: `%s`", Sanitize(stats.Code)))
	} else {
		sb.WriteString("\nUse /ref to get your referral link\\.")
	}
	return sb.String()
}

func formatDailyStatus(status *entity.DailyStatus, now time.Time) string {
	if status.IsClaimable {
		return fmt.Sprintf("Daily reward is ready\\! Streak: `%d`", status.CheckInStreak)
	}
	return fmt.Sprintf("Next daily reward in %s\\. Streak: `%d`",
		Sanitize(clock.Remaining(now, status.NextClaimTime)), status.CheckInStreak)
}

func formatIntegrityReport(report *referral.Report) string {
	var sb strings.Builder
	if report.Clean() {
		sb.WriteString(fmt.Sprintf("Referral graph clean, `%d` edges", report.Edges))
		return sb.String()
	}
	sb.WriteString(fmt.Sprintf("*Referral integrity:* %d findings\n", len(report.Findings)))
	sb.WriteString(Sanitize(report.Summary()) + "\n")
	for i, f := range report.Findings {
		if i == 20 {
			sb.WriteString(fmt.Sprintf("and %d more", len(report.Findings)-20))
			break
		}
		sb.WriteString(fmt.Sprintf("`%s` %s\n", f.Kind, Sanitize(f.Detail)))
	}
	return sb.String()
}
