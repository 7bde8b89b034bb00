package notifier

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramNotifier posts notifications to one Telegram chat.
type TelegramNotifier struct {
	Token       string
	ChatID      int64
	APIEndpoint string
	Client      *http.Client

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

// NewTelegramNotifier creates a Telegram notifier from TELEGRAM_BOT_TOKEN and
// TELEGRAM_CHAT_ID.
func NewTelegramNotifier() *TelegramNotifier {
	chatID, _ := strconv.ParseInt(os.Getenv("TELEGRAM_CHAT_ID"), 10, 64)
	return &TelegramNotifier{
		Token:       os.Getenv("TELEGRAM_BOT_TOKEN"),
		ChatID:      chatID,
		APIEndpoint: tgbotapi.APIEndpoint,
		Client:      http.DefaultClient,
	}
}

// Configured reports whether both the token and the chat are set.
func (t *TelegramNotifier) Configured() bool {
	return t.Token != "" && t.ChatID != 0
}

func (t *TelegramNotifier) Channel() string {
	return "telegram"
}

// botAPI connects on first use; NewBotAPIWithClient calls getMe.
func (t *TelegramNotifier) botAPI() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bot != nil {
		return t.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(t.Token, t.APIEndpoint, t.Client)
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	t.bot = bot
	return bot, nil
}

func (t *TelegramNotifier) Send(ctx context.Context, n *Notification) error {
	if !t.Configured() {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN or TELEGRAM_CHAT_ID not set")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	bot, err := t.botAPI()
	if err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(t.ChatID, "🏕 "+FormatText(n))
	msg.DisableWebPagePreview = true
	if _, err := bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
