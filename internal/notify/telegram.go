package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const telegramAPI = "https://api.telegram.org/bot%s/sendMessage"

// TelegramSender delivers desk alerts to a Telegram chat via the Bot API.
type TelegramSender struct {
	token  string
	chatID string
	client *http.Client
}

// NewTelegramSender creates a TelegramSender for the given bot token and
// chat ID.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts the alert via the sendMessage API, title in bold.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	payload := map[string]any{
		"chat_id":                  t.chatID,
		"text":                     fmt.Sprintf("*%s*\n%s", title, message),
		"parse_mode":               "Markdown",
		"disable_web_page_preview": true,
	}
	return postJSON(ctx, t.client, "telegram", fmt.Sprintf(telegramAPI, t.token), payload)
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
