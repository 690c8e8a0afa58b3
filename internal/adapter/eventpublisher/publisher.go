// Package eventpublisher bridges store events to UI push channels.
package eventpublisher

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/H0onnn/InvokeAI/internal/domain"
)

const eventBuffer = 64

// LayerSource is the slice of the store the bridge reads from.
type LayerSource interface {
	Subscribe(buffer int) (<-chan domain.Event, func())
	Layer(id uuid.UUID) (domain.ControlLayer, bool)
}

// Bridge subscribes to store events and republishes the UI-relevant ones:
// layer state changes become layer updates, toast requests become toasts.
// Publish failures are logged and dropped; UI push is best-effort.
type Bridge struct {
	source    LayerSource
	publisher domain.LayerPublisher
}

func New(source LayerSource, publisher domain.LayerPublisher) *Bridge {
	return &Bridge{source: source, publisher: publisher}
}

// Run consumes store events until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) {
	events, stop := b.source.Subscribe(eventBuffer)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("UI event bridge stopped")
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			b.handle(ctx, e)
		}
	}
}

func (b *Bridge) handle(ctx context.Context, e domain.Event) {
	switch ev := e.(type) {
	case domain.ToastRequested:
		if err := b.publisher.PublishToast(ctx, ev.Level, ev.Message); err != nil {
			slog.Warn("Failed to publish toast", "error", err)
		}

	case domain.LayerAdded:
		b.publishLayer(ctx, ev.Layer.ID)
	case domain.LayerImageChanged:
		b.publishLayer(ctx, ev.LayerID)
	case domain.ProcessorConfigChanged:
		b.publishLayer(ctx, ev.LayerID)
	case domain.ModelChanged:
		b.publishLayer(ctx, ev.LayerID)
	case domain.LayerRecalled:
		b.publishLayer(ctx, ev.Layer.ID)
	case domain.ProcessedImageChanged:
		b.publishLayer(ctx, ev.LayerID)
	case domain.PendingBatchChanged:
		b.publishLayer(ctx, ev.LayerID)
	}
}

func (b *Bridge) publishLayer(ctx context.Context, layerID uuid.UUID) {
	layer, ok := b.source.Layer(layerID)
	if !ok {
		return
	}
	if err := b.publisher.PublishLayerUpdated(ctx, layer); err != nil {
		slog.Warn("Failed to publish layer update", "layer_id", layerID.String(), "error", err)
	}
}
