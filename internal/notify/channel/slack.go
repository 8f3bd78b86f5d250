package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rivetr/rivetr/internal/enum"
)

// SlackChannel delivers notifications through a Slack incoming webhook URL.
// Slack's incoming-webhook integration is a plain HTTP POST of a small JSON
// body — there is no SDK in the dependency pack for it, so this channel is
// built directly on net/http the same way WebhookChannel is.
type SlackChannel struct {
	webhookURL string
	client     *http.Client
}

func NewSlackChannel(webhookURL string) *SlackChannel {
	return &SlackChannel{webhookURL: webhookURL, client: &http.Client{Timeout: 10 * time.Second}}
}

func (c *SlackChannel) Type() enum.ChannelType { return enum.ChannelTypeSlack }

func (c *SlackChannel) Send(ctx context.Context, msg Message) error {
	if c.webhookURL == "" {
		return fmt.Errorf("slack channel has no webhook URL configured")
	}
	text := msg.Body
	if msg.Subject != "" {
		text = fmt.Sprintf("*%s*\n%s", msg.Subject, msg.Body)
	}
	payload, err := json.Marshal(struct {
		Text string `json:"text"`
	}{Text: text})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}
	return retryingPost(ctx, c.client, c.webhookURL, payload)
}

func (c *SlackChannel) Test(ctx context.Context, _ string) error {
	return c.Send(ctx, Message{Subject: "Rivetr", Body: "This Slack channel is configured correctly."})
}
