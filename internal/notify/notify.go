package notify

import (
	"context"
	"errors"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"cuidarmed/m/internal/config"
)

// Notifier delivers a formatted message to the single configured recipient
// channel. Implementations do not retry.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Telegram sends messages to one fixed chat through the Telegram Bot API.
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram authenticates the bot token against the Telegram API.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{api: api, chatID: chatID}, nil
}

func (t *Telegram) Send(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := t.api.Send(msg)
	return err
}

// Disabled stands in when Telegram credentials are absent or invalid. Every
// send fails, which leaves one-shot notification flags unset so deliveries
// are retried once the channel is configured.
type Disabled struct {
	log *slog.Logger
}

func (d *Disabled) Send(ctx context.Context, text string) error {
	d.log.Warn("notification dropped, telegram channel not configured", "text", text)
	return errors.New("telegram notifications are not configured")
}

// FromConfig picks the Telegram notifier when credentials are present and
// falls back to the disabled one otherwise. A bad token is not fatal: the
// rest of the backend keeps working without notifications.
func FromConfig(cfg config.Config, log *slog.Logger) Notifier {
	if cfg.TelegramToken == "" || cfg.TelegramChatID == 0 {
		log.Warn("TELEGRAM_BOT_TOKEN or TELEGRAM_CHAT_ID not set, notifications disabled")
		return &Disabled{log: log}
	}
	tg, err := NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
	if err != nil {
		log.Error("telegram bot authentication failed, notifications disabled", "err", err)
		return &Disabled{log: log}
	}
	return tg
}
