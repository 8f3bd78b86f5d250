// Package channel implements delivery backends for outbound notifications:
// firing/resolved alerts and other operational events the control plane
// surfaces to a human. Each channel is driven by an enabled
// store.NotificationChannel row whose opaque Config JSON only the
// constructor for that channel type understands.
package channel

import (
	"context"

	"github.com/rivetr/rivetr/internal/enum"
)

// Message is a channel-agnostic notification ready for delivery.
type Message struct {
	Subject    string
	Body       string
	HTMLBody   string
	Recipients []string
	Metadata   map[string]any
}

// Channel delivers a Message through one transport.
type Channel interface {
	Type() enum.ChannelType
	Send(ctx context.Context, msg Message) error
	// Test delivers a small confirmation message to validate the channel's
	// configuration, the same check a "send test notification" UI action
	// would trigger.
	Test(ctx context.Context, recipient string) error
}
