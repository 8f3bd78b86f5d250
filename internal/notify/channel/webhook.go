package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rivetr/rivetr/internal/enum"
)

// retryingPost delivers a JSON body with up to 3 retries on transient
// (network or 5xx) failures, backing off 1s then 2s then 4s between
// attempts. A 4xx response is treated as permanent — retrying a rejected
// payload never helps.
func retryingPost(ctx context.Context, client *http.Client, url string, body []byte) error {
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("delivery endpoint returned status %d", resp.StatusCode)
		case resp.StatusCode >= 400:
			return backoff.Permanent(fmt.Errorf("delivery endpoint rejected payload: status %d", resp.StatusCode))
		default:
			return nil
		}
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = time.Second
	eb.Multiplier = 2
	eb.MaxInterval = 4 * time.Second
	eb.RandomizationFactor = 0

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(eb, 3), ctx))
}

// WebhookChannel POSTs a generic JSON payload to an arbitrary URL.
type WebhookChannel struct {
	url    string
	client *http.Client
}

func NewWebhookChannel(url string) *WebhookChannel {
	return &WebhookChannel{url: url, client: &http.Client{Timeout: 10 * time.Second}}
}

func (c *WebhookChannel) Type() enum.ChannelType { return enum.ChannelTypeWebhook }

type webhookPayload struct {
	Subject  string         `json:"subject"`
	Body     string         `json:"body"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (c *WebhookChannel) Send(ctx context.Context, msg Message) error {
	if c.url == "" {
		return fmt.Errorf("webhook channel has no URL configured")
	}
	payload, err := json.Marshal(webhookPayload{Subject: msg.Subject, Body: msg.Body, Metadata: msg.Metadata})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	return retryingPost(ctx, c.client, c.url, payload)
}

func (c *WebhookChannel) Test(ctx context.Context, _ string) error {
	return c.Send(ctx, Message{Subject: "Rivetr webhook test", Body: "This webhook channel is configured correctly."})
}
