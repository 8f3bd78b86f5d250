package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rivetr/rivetr/internal/enum"
	"github.com/rivetr/rivetr/internal/notify/channel"
	"github.com/rivetr/rivetr/internal/store"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func insertChannel(t *testing.T, st *store.Store, id string, chType enum.ChannelType, cfg string) {
	t.Helper()
	_, err := st.DB.Exec(`INSERT INTO notification_channels (id, name, channel_type, config, enabled) VALUES (?, ?, ?, ?, 1)`,
		id, id+"-name", string(chType), cfg)
	require.NoError(t, err)
}

func TestDispatcherDeliversToWebhookChannel(t *testing.T) {
	var received []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		received = buf
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	st := newTestStore(t)
	cfg, err := json.Marshal(map[string]string{"url": srv.URL})
	require.NoError(t, err)
	insertChannel(t, st, "ch1", enum.ChannelTypeWebhook, string(cfg))

	d := New(st, nil, 8)
	d.deliver(context.Background(), channel.Message{Subject: "hello", Body: "world"})

	require.Contains(t, string(received), "hello")
}

func TestDispatcherSkipsEmailWithoutCredentials(t *testing.T) {
	st := newTestStore(t)
	insertChannel(t, st, "ch1", enum.ChannelTypeEmail, `{"recipients":["ops@example.com"]}`)

	d := New(st, nil, 8)
	// Should not panic; the channel is skipped with a logged warning.
	d.deliver(context.Background(), channel.Message{Subject: "hello"})
}

func TestDispatcherUsesConfiguredEmailChannel(t *testing.T) {
	st := newTestStore(t)
	insertChannel(t, st, "ch1", enum.ChannelTypeEmail, `{"recipients":["ops@example.com"]}`)

	mock := &channel.MockChannel{ChannelType: enum.ChannelTypeEmail}
	d := New(st, mock, 8)
	d.deliver(context.Background(), channel.Message{Subject: "hello"})

	require.Len(t, mock.Sent(), 1)
	require.Equal(t, "hello", mock.Sent()[0].Subject)
}

func TestDispatcherEnqueueDropsWhenQueueFull(t *testing.T) {
	st := newTestStore(t)
	d := New(st, nil, 1)

	ctx := context.Background()
	d.Enqueue(ctx, channel.Message{Subject: "first"})
	// Queue capacity is 1 and nothing is draining it, so the second
	// enqueue must be dropped rather than block.
	done := make(chan struct{})
	go func() {
		d.Enqueue(ctx, channel.Message{Subject: "second"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
}

func TestDispatcherRunDrainsQueue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	st := newTestStore(t)
	cfg, _ := json.Marshal(map[string]string{"url": srv.URL})
	insertChannel(t, st, "ch1", enum.ChannelTypeWebhook, string(cfg))

	d := New(st, nil, 8)
	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	defer cancel()

	d.Enqueue(ctx, channel.Message{Subject: "queued"})
	time.Sleep(100 * time.Millisecond)
}
