package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// DiscordSender delivers desk alerts to a Discord channel webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts the alert to the webhook, title in bold. Discord answers
// 204 No Content on success.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	payload := map[string]any{
		"content": fmt.Sprintf("**%s**\n%s", title, message),
	}
	return postJSON(ctx, d.client, "discord", d.webhookURL, payload)
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}
