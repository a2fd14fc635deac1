package bot

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// SendHeartbeat posts the alive message to the configured heartbeat chat
// and records the timestamp that /status and the dashboard report.
func (b *Bot) SendHeartbeat() {
	chatID := b.cfg.Telegram.HeartbeatChatID
	if chatID == 0 {
		b.logger.Debug("No heartbeat chat configured, skipping heartbeat")
		return
	}

	now := time.Now().Format("2006-01-02 15:04:05")
	b.mu.Lock()
	b.lastHeartbeat = now
	b.mu.Unlock()

	message := fmt.Sprintf("Heartbeat\nBot Status: Running ✅ \nTimestamp: %s", now)
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, message)); err != nil {
		b.logger.WithError(err).Errorf("Failed to send heartbeat message to recipient (%d)", chatID)
		return
	}
	b.logger.Infof("Sent heartbeat message to recipient (%d).", chatID)
}
