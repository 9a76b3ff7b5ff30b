package notify

import (
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender delivers one rendered message to one target.
type Sender interface {
	Send(target, text string, atAll bool) error
}

// TelegramSender delivers over the Bot API. Targets are chat ids in
// decimal form, as stored by the subscription commands.
type TelegramSender struct {
	bot *tgbotapi.BotAPI
}

func NewTelegramSender(bot *tgbotapi.BotAPI) *TelegramSender {
	return &TelegramSender{bot: bot}
}

func (t *TelegramSender) Send(target, text string, atAll bool) error {
	chatID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return fmt.Errorf("bad target %q: %w", target, err)
	}
	if atAll {
		text = "@all\n" + text
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("send to %s: %w", target, err)
	}
	return nil
}
