// Package socket maintains the websocket connection to the backend's event
// stream and fans out invocation completion events to in-process subscribers.
package socket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/H0onnn/InvokeAI/internal/domain"
	"github.com/H0onnn/InvokeAI/internal/metrics"
)

const (
	eventInvocationComplete = "invocation_complete"

	handshakeTimeout = 10 * time.Second

	initialReconnectDelay = time.Second
	maxReconnectDelay     = 30 * time.Second
)

// envelope is the backend's event frame: a type discriminator plus payload.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Listener connects to the backend event stream, reconnecting with
// exponential backoff, and implements the completion source the effect
// waits on. Reconnect hooks fire after every re-established connection so
// callers can refresh state that may have drifted during the gap.
type Listener struct {
	url    string
	dialer *websocket.Dialer
	clock  clockwork.Clock

	mu     sync.Mutex
	subs   map[int]chan domain.InvocationCompleteEvent
	nextID int

	hookMu sync.Mutex
	hooks  []func()
}

var _ domain.CompletionSource = (*Listener)(nil)

func NewListener(url string, clock clockwork.Clock) *Listener {
	return &Listener{
		url:    url,
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		clock:  clock,
		subs:   make(map[int]chan domain.InvocationCompleteEvent),
	}
}

// OnReconnect registers a hook invoked after each re-established connection
// (not the first one). Hooks run synchronously before reading resumes.
func (l *Listener) OnReconnect(hook func()) {
	l.hookMu.Lock()
	defer l.hookMu.Unlock()
	l.hooks = append(l.hooks, hook)
}

// SubscribeInvocationComplete registers a subscriber channel. The stop
// function unregisters and closes it.
func (l *Listener) SubscribeInvocationComplete(buffer int) (<-chan domain.InvocationCompleteEvent, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	l.nextID++
	ch := make(chan domain.InvocationCompleteEvent, buffer)
	l.subs[id] = ch

	stop := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if sub, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(sub)
		}
	}
	return ch, stop
}

// Run connects and reads until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) {
	connected := false
	delay := initialReconnectDelay

	for {
		if ctx.Err() != nil {
			slog.Info("Push channel listener stopped")
			return
		}

		conn, _, err := l.dialer.DialContext(ctx, l.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("Push channel listener stopped")
				return
			}
			slog.Warn("Push channel connection failed", "url", l.url, "retry_in", delay, "error", err)
			select {
			case <-ctx.Done():
				slog.Info("Push channel listener stopped")
				return
			case <-l.clock.After(delay):
			}
			delay = min(delay*2, maxReconnectDelay)
			continue
		}

		delay = initialReconnectDelay
		if connected {
			metrics.SocketReconnectsTotal.Inc()
			slog.Info("Push channel reconnected", "url", l.url)
			l.runHooks()
		} else {
			connected = true
			slog.Info("Push channel connected", "url", l.url)
		}

		l.readLoop(ctx, conn)
	}
}

// readLoop reads frames until the connection breaks or ctx is cancelled.
func (l *Listener) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("Push channel read failed", "error", err)
			}
			return
		}
		l.handleMessage(message)
	}
}

func (l *Listener) handleMessage(message []byte) {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		slog.Warn("Malformed push channel frame", "error", err)
		return
	}

	metrics.SocketEventsTotal.WithLabelValues(env.Event).Inc()

	// Only completion events matter here; everything else is for other
	// consumers of the stream.
	if env.Event != eventInvocationComplete {
		return
	}

	var ev domain.InvocationCompleteEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		slog.Warn("Malformed invocation completion payload", "error", err)
		return
	}

	l.fanOut(ev)
}

func (l *Listener) fanOut(ev domain.InvocationCompleteEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, sub := range l.subs {
		select {
		case sub <- ev:
		default:
			metrics.SocketDroppedEventsTotal.Inc()
			slog.Warn("Dropped completion event for slow subscriber",
				"batch_id", ev.QueueBatchID,
				"node_id", ev.SourceNodeID,
			)
		}
	}
}

func (l *Listener) runHooks() {
	l.hookMu.Lock()
	hooks := make([]func(), len(l.hooks))
	copy(hooks, l.hooks)
	l.hookMu.Unlock()

	for _, hook := range hooks {
		hook()
	}
}
