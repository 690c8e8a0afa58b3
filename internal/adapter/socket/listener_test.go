package socket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/H0onnn/InvokeAI/internal/domain"
)

// wsBackend serves one websocket endpoint that writes the given frames to
// every client, then holds the connection open.
func wsBackend(t *testing.T, frames []string) string {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}

		// Keep the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestListener_DeliversCompletionEvents(t *testing.T) {
	url := wsBackend(t, []string{
		`{"event":"invocation_complete","data":{"queue_batch_id":"b1","source_node_id":"n1","result":{"type":"image_output","image":{"image_name":"out.png"}}}}`,
	})

	listener := NewListener(url, clockwork.NewRealClock())
	events, stop := listener.SubscribeInvocationComplete(4)
	defer stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go listener.Run(ctx)

	select {
	case ev := <-events:
		assert.Equal(t, "b1", ev.QueueBatchID)
		assert.Equal(t, "n1", ev.SourceNodeID)
		assert.Equal(t, domain.ResultTypeImage, ev.Result.Type)
		require.NotNil(t, ev.Result.Image)
		assert.Equal(t, "out.png", ev.Result.Image.ImageName)
	case <-time.After(5 * time.Second):
		t.Fatal("completion event not delivered")
	}
}

func TestListener_IgnoresOtherEvents(t *testing.T) {
	url := wsBackend(t, []string{
		`{"event":"invocation_started","data":{"queue_batch_id":"b1"}}`,
		`{"event":"queue_item_status_changed","data":{}}`,
		`not even json`,
		`{"event":"invocation_complete","data":{"queue_batch_id":"b2","source_node_id":"n2","result":{"type":"image_output","image":{"image_name":"out.png"}}}}`,
	})

	listener := NewListener(url, clockwork.NewRealClock())
	events, stop := listener.SubscribeInvocationComplete(4)
	defer stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go listener.Run(ctx)

	select {
	case ev := <-events:
		// Only the completion frame comes through.
		assert.Equal(t, "b2", ev.QueueBatchID)
	case <-time.After(5 * time.Second):
		t.Fatal("completion event not delivered")
	}

	select {
	case ev := <-events:
		t.Fatalf("unexpected extra event: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestListener_SubscriberStopClosesChannel(t *testing.T) {
	listener := NewListener("ws://irrelevant", clockwork.NewRealClock())

	events, stop := listener.SubscribeInvocationComplete(1)
	stop()

	_, open := <-events
	assert.False(t, open)

	// Double stop must not panic.
	stop()
}

func TestListener_FanOutDropsWhenSubscriberFull(t *testing.T) {
	listener := NewListener("ws://irrelevant", clockwork.NewRealClock())

	events, stop := listener.SubscribeInvocationComplete(1)
	defer stop()

	listener.fanOut(domain.InvocationCompleteEvent{QueueBatchID: "b1"})
	listener.fanOut(domain.InvocationCompleteEvent{QueueBatchID: "b2"})

	ev := <-events
	assert.Equal(t, "b1", ev.QueueBatchID)

	select {
	case ev := <-events:
		t.Fatalf("expected drop, got %+v", ev)
	default:
	}
}

func TestListener_ReconnectRunsHooks(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping reconnect test in short mode")
	}

	upgrader := websocket.Upgrader{}
	connCount := make(chan int, 8)
	conns := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns++
		connCount <- conns
		if conns == 1 {
			// Drop the first connection immediately to force a reconnect.
			conn.Close()
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	listener := NewListener(url, clockwork.NewRealClock())

	hookCalls := make(chan struct{}, 8)
	listener.OnReconnect(func() { hookCalls <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go listener.Run(ctx)

	// First connection established, then dropped by the server. A broken
	// established connection redials immediately, no backoff.
	select {
	case <-connCount:
	case <-time.After(5 * time.Second):
		t.Fatal("first connection never arrived")
	}

	select {
	case <-hookCalls:
	case <-time.After(5 * time.Second):
		t.Fatal("reconnect hook never ran")
	}
}
