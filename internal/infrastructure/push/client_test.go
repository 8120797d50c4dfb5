package push

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-events-sync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	mu   sync.Mutex
	msgs []domain.ChannelMessage
}

func (r *received) add(m domain.ChannelMessage) {
	r.mu.Lock()
	r.msgs = append(r.msgs, m)
	r.mu.Unlock()
}

func (r *received) list() []domain.ChannelMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ChannelMessage(nil), r.msgs...)
}

func runClient(t *testing.T, c *Client) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestClient_ReceivesMutationsInOrder(t *testing.T) {
	hub, url := newTestHub(t)
	c := NewClient(ClientOptions{URL: url, ReconnectDelay: 10 * time.Millisecond})
	var got received
	c.Subscribe(got.add)
	runClient(t, c)
	require.Eventually(t, func() bool { return hub.Connections() == 1 && c.Connected() }, time.Second, 5*time.Millisecond)

	ev := domain.Event{EventID: "e1", Revision: 1}
	require.NoError(t, hub.Emit(domain.NewCreated(ev, "")))
	ev.Revision = 2
	require.NoError(t, hub.Emit(domain.NewUpdated(ev, "")))
	require.NoError(t, hub.Emit(domain.NewDeleted("e1", 3, "")))
	require.NoError(t, hub.Broadcast("unrelated", nil))

	require.Eventually(t, func() bool { return len(got.list()) == 3 }, time.Second, 5*time.Millisecond)
	msgs := got.list()
	assert.Equal(t, domain.KindCreated, msgs[0].Kind())
	assert.Equal(t, domain.KindUpdated, msgs[1].Kind())
	assert.Equal(t, domain.KindDeleted, msgs[2].Kind())
	assert.Equal(t, int64(3), msgs[2].Rev())
}

func TestClient_ReconnectsAndReportsStatus(t *testing.T) {
	hub, url := newTestHub(t)
	c := NewClient(ClientOptions{URL: url, ReconnectDelay: 10 * time.Millisecond})

	var mu sync.Mutex
	var states []bool
	c.OnStatus(func(v bool) {
		mu.Lock()
		states = append(states, v)
		mu.Unlock()
	})
	runClient(t, c)
	require.Eventually(t, func() bool { return hub.Connections() == 1 }, time.Second, 5*time.Millisecond)

	hub.Close()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) >= 3
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return hub.Connections() == 1 }, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false, true}, states[:3])
}

func TestClient_JoinsRoomsOnConnect(t *testing.T) {
	hub, url := newTestHub(t)
	c := NewClient(ClientOptions{
		URL:            url,
		Rooms:          []Join{{Room: domain.RoomAdmin, Token: "admin-token"}},
		ReconnectDelay: 10 * time.Millisecond,
	})
	var got received
	c.Subscribe(got.add)
	runClient(t, c)

	require.Eventually(t, func() bool {
		_ = hub.BroadcastRoom(domain.RoomAdmin, domain.PushEventDeleted, domain.PushData{EventID: "e1", Revision: 1})
		return len(got.list()) > 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestClient_SendWhileDisconnected(t *testing.T) {
	c := NewClient(ClientOptions{URL: "ws://127.0.0.1:1/api/socket"})
	assert.False(t, c.Connected())
	assert.ErrorIs(t, c.Send("ping", nil), ErrDisconnected)
}

func TestSocketURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8080":       "ws://localhost:8080/api/socket",
		"https://events.example.com/": "wss://events.example.com/api/socket",
	}
	for in, want := range cases {
		got, err := SocketURL(in, "/api/socket")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := SocketURL("ftp://x", "/api/socket")
	assert.Error(t, err)
}
