package channel

import (
	"context"
	"sync"

	"github.com/rivetr/rivetr/internal/enum"
)

// MockChannel is a test double recording every Message it receives.
type MockChannel struct {
	ChannelType enum.ChannelType
	SendFunc    func(ctx context.Context, msg Message) error

	mu   sync.Mutex
	sent []Message
}

var _ Channel = (*MockChannel)(nil)

func (m *MockChannel) Type() enum.ChannelType { return m.ChannelType }

func (m *MockChannel) Send(ctx context.Context, msg Message) error {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	if m.SendFunc != nil {
		return m.SendFunc(ctx, msg)
	}
	return nil
}

func (m *MockChannel) Test(ctx context.Context, recipient string) error {
	return m.Send(ctx, Message{Subject: "test", Recipients: []string{recipient}})
}

func (m *MockChannel) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}
