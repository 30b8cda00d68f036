package bot

import (
	"log/slog"
	"tapearn/internal/referral"
)

// SendMessageWithLevel delivers a log alert to the admins: errors and above
// immediately, anything lower through the digest.
func (t *TgBot) SendMessageWithLevel(msg string, level slog.Level) {
	if level >= slog.LevelError {
		t.notifyAdmins(msg)
		return
	}
	for _, id := range t.config.AdminIds {
		t.digest.Add(id, msg, topicAlert, level)
	}
}

// IntegrityReport receives scheduled integrity reports. Findings are sent at
// once, a clean result only goes into the digest.
func (t *TgBot) IntegrityReport(report *referral.Report) {
	if report == nil {
		return
	}
	text := formatIntegrityReport(report)
	if !report.Clean() {
		for _, part := range splitMessage(text, maxTelegramMessageLen) {
			t.notifyAdmins(part)
		}
		return
	}
	for _, id := range t.config.AdminIds {
		t.digest.Add(id, text, topicIntegrity, slog.LevelInfo)
	}
}
