package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rivetr/rivetr/internal/enum"
)

// discordMaxContent is Discord's hard limit on a message's content field.
const discordMaxContent = 2000

// DiscordChannel delivers notifications through a Discord incoming webhook
// URL, same shape as SlackChannel with Discord's own field name and length
// limit.
type DiscordChannel struct {
	webhookURL string
	client     *http.Client
}

func NewDiscordChannel(webhookURL string) *DiscordChannel {
	return &DiscordChannel{webhookURL: webhookURL, client: &http.Client{Timeout: 10 * time.Second}}
}

func (c *DiscordChannel) Type() enum.ChannelType { return enum.ChannelTypeDiscord }

func (c *DiscordChannel) Send(ctx context.Context, msg Message) error {
	if c.webhookURL == "" {
		return fmt.Errorf("discord channel has no webhook URL configured")
	}
	content := msg.Body
	if msg.Subject != "" {
		content = fmt.Sprintf("**%s**\n%s", msg.Subject, msg.Body)
	}
	if len(content) > discordMaxContent {
		content = content[:discordMaxContent]
	}
	payload, err := json.Marshal(struct {
		Content string `json:"content"`
	}{Content: content})
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}
	return retryingPost(ctx, c.client, c.webhookURL, payload)
}

func (c *DiscordChannel) Test(ctx context.Context, _ string) error {
	return c.Send(ctx, Message{Subject: "Rivetr", Body: "This Discord channel is configured correctly."})
}
