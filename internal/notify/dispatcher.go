// Package notify implements the notification dispatcher (spec.md §4.9): a
// bounded producer/consumer queue that fans a Message out to every enabled
// NotificationChannel, the Go-channel equivalent of the original's bounded
// tokio mpsc queue. A full queue drops the notification rather than
// blocking its producer — a slow or down channel must never stall the
// evaluator or backup scheduler that enqueued it.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rivetr/rivetr/internal/enum"
	"github.com/rivetr/rivetr/internal/logger"
	"github.com/rivetr/rivetr/internal/notify/channel"
	"github.com/rivetr/rivetr/internal/store"
	"github.com/rivetr/rivetr/internal/store/jsonblob"
	"go.uber.org/zap"
)

type job struct {
	msg channel.Message
}

// Dispatcher owns the bounded notification queue and the single consumer
// goroutine that drains it.
type Dispatcher struct {
	store *store.Store
	queue chan job
	email channel.Channel // nil if no SendGrid credentials are configured
}

// New constructs a Dispatcher. emailChannel may be nil, in which case any
// enabled email NotificationChannel row is skipped with a logged warning.
func New(st *store.Store, emailChannel channel.Channel, capacity int) *Dispatcher {
	return &Dispatcher{
		store: st,
		queue: make(chan job, capacity),
		email: emailChannel,
	}
}

// Enqueue submits a Message for fan-out delivery. It never blocks: if the
// queue is full the notification is logged and discarded.
func (d *Dispatcher) Enqueue(ctx context.Context, msg channel.Message) {
	select {
	case d.queue <- job{msg: msg}:
	default:
		logger.GetLogger(ctx).Error("notification queue full, dropping notification",
			zap.String("subject", msg.Subject))
	}
}

// Run drains the queue until ctx is cancelled. Exactly one consumer should
// run per Dispatcher.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-d.queue:
			d.deliver(ctx, j.msg)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, msg channel.Message) {
	log := logger.GetLogger(ctx).With(zap.String("component", "notify"))

	channels, err := d.store.EnabledNotificationChannels(ctx)
	if err != nil {
		log.Error("list enabled notification channels", zap.Error(err))
		return
	}

	for _, c := range channels {
		ch, err := d.build(c)
		if err != nil {
			log.Warn("skipping notification channel", zap.String("channel_id", c.ID), zap.Error(err))
			continue
		}
		out := msg
		if c.ChannelType == enum.ChannelTypeEmail && len(out.Recipients) == 0 {
			var cfg struct {
				Recipients []string `json:"recipients"`
			}
			if err := json.Unmarshal([]byte(c.Config), &cfg); err == nil {
				out.Recipients = cfg.Recipients
			}
		}
		if err := ch.Send(ctx, out); err != nil {
			log.Error("notification delivery failed",
				zap.String("channel_id", c.ID), zap.String("channel_type", string(c.ChannelType)), zap.Error(err))
		}
	}
}

func (d *Dispatcher) build(c store.NotificationChannel) (channel.Channel, error) {
	if err := jsonblob.ValidateChannelConfig(string(c.ChannelType), c.Config); err != nil {
		return nil, fmt.Errorf("validate channel config: %w", err)
	}

	switch c.ChannelType {
	case enum.ChannelTypeSlack:
		var cfg struct {
			WebhookURL string `json:"webhook_url"`
		}
		if err := json.Unmarshal([]byte(c.Config), &cfg); err != nil {
			return nil, fmt.Errorf("decode slack config: %w", err)
		}
		return channel.NewSlackChannel(cfg.WebhookURL), nil

	case enum.ChannelTypeDiscord:
		var cfg struct {
			WebhookURL string `json:"webhook_url"`
		}
		if err := json.Unmarshal([]byte(c.Config), &cfg); err != nil {
			return nil, fmt.Errorf("decode discord config: %w", err)
		}
		return channel.NewDiscordChannel(cfg.WebhookURL), nil

	case enum.ChannelTypeWebhook:
		var cfg struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal([]byte(c.Config), &cfg); err != nil {
			return nil, fmt.Errorf("decode webhook config: %w", err)
		}
		return channel.NewWebhookChannel(cfg.URL), nil

	case enum.ChannelTypeEmail:
		if d.email == nil {
			return nil, fmt.Errorf("no SendGrid credentials configured")
		}
		return d.email, nil

	default:
		return nil, fmt.Errorf("unknown channel type %q", c.ChannelType)
	}
}
