package notifier

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramNotifier mirrors operator notifications to a fixed chat, typically
// the bot owner.
type TelegramNotifier struct {
	API    *tgbotapi.BotAPI
	ChatID int64
}

func (t *TelegramNotifier) Notify(content string) error {
	if t.ChatID == 0 {
		return fmt.Errorf("notification chat ID is not set")
	}

	if _, err := t.API.Send(tgbotapi.NewMessage(t.ChatID, content)); err != nil {
		return fmt.Errorf("failed to send notification message: %w", err)
	}

	return nil
}
