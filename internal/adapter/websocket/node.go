// Package websocket pushes layer updates and toast notifications to UI
// clients over centrifuge channels.
package websocket

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/centrifugal/centrifuge"

	"github.com/H0onnn/InvokeAI/internal/metrics"
)

const (
	// ChannelLayers carries reconciled layer state.
	ChannelLayers = "layers"
	// ChannelToasts carries user-facing notifications.
	ChannelToasts = "toasts"
)

func NewNode(logLevel string) (*centrifuge.Node, error) {
	conf := centrifuge.Config{LogLevel: parseCentrifugeLogLevel(logLevel), LogHandler: slogHandler}
	node, err := centrifuge.New(conf)
	if err != nil {
		return nil, fmt.Errorf("create centrifuge node: %w", err)
	}

	node.OnConnecting(onConnecting)
	node.OnConnect(onConnect)

	return node, nil
}

// onConnecting subscribes every UI client to both push channels. The gateway
// sits on a trusted network edge; channel-level authorization is the outer
// proxy's job.
func onConnecting(ctx context.Context, e centrifuge.ConnectEvent) (centrifuge.ConnectReply, error) {
	reply := centrifuge.ConnectReply{
		Subscriptions: map[string]centrifuge.SubscribeOptions{
			ChannelLayers: {},
			ChannelToasts: {},
		},
	}
	return reply, nil
}

func onConnect(client *centrifuge.Client) {
	slog.Debug("UI client connected", "client_id", client.ID())
	metrics.UIConnectionsActive.Inc()

	client.OnSubscribe(func(e centrifuge.SubscribeEvent, cb centrifuge.SubscribeCallback) {
		cb(centrifuge.SubscribeReply{}, nil)
	})

	client.OnDisconnect(func(e centrifuge.DisconnectEvent) {
		slog.Debug("UI client disconnected", "client_id", client.ID(), "reason", e.Reason)
		metrics.UIConnectionsActive.Dec()
	})
}

func slogHandler(entry centrifuge.LogEntry) {
	attrs := make([]any, 0, len(entry.Fields)*2)
	for k, v := range entry.Fields {
		attrs = append(attrs, k, v)
	}
	switch entry.Level {
	case centrifuge.LogLevelDebug:
		slog.Debug(entry.Message, attrs...)
	case centrifuge.LogLevelInfo:
		slog.Info(entry.Message, attrs...)
	case centrifuge.LogLevelWarn:
		slog.Warn(entry.Message, attrs...)
	case centrifuge.LogLevelError:
		slog.Error(entry.Message, attrs...)
	case centrifuge.LogLevelTrace:
		slog.Debug(entry.Message, attrs...)
	case centrifuge.LogLevelNone:
		// EMPTY
	}
}

func parseCentrifugeLogLevel(level string) centrifuge.LogLevel {
	switch level {
	case "debug":
		return centrifuge.LogLevelDebug
	case "warn":
		return centrifuge.LogLevelWarn
	case "error":
		return centrifuge.LogLevelError
	default:
		return centrifuge.LogLevelInfo
	}
}
