package websocket

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/centrifugal/centrifuge"

	"github.com/H0onnn/InvokeAI/internal/domain"
	"github.com/H0onnn/InvokeAI/internal/metrics"
)

type layerUpdate struct {
	ID             string           `json:"id"`
	Model          string           `json:"model,omitempty"`
	Image          *domain.ImageRef `json:"image,omitempty"`
	ProcessedImage *domain.ImageDTO `json:"processedImage,omitempty"`
	PendingBatchID string           `json:"pendingBatchId,omitempty"`
}

type toast struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

type Publisher struct {
	node *centrifuge.Node
}

var _ domain.LayerPublisher = (*Publisher)(nil)

func NewPublisher(node *centrifuge.Node) *Publisher {
	return &Publisher{node: node}
}

// PublishLayerUpdated broadcasts the layer snapshot to all UI clients.
// node.Publish is non-blocking, so ctx is accepted for interface symmetry
// but not consumed.
func (p *Publisher) PublishLayerUpdated(_ context.Context, layer domain.ControlLayer) error {
	update := layerUpdate{
		ID:             layer.ID.String(),
		Model:          layer.Model,
		Image:          layer.Image,
		ProcessedImage: layer.ProcessedImage,
		PendingBatchID: layer.PendingBatchID,
	}
	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal layer update: %w", err)
	}

	if _, err := p.node.Publish(ChannelLayers, data); err != nil {
		return fmt.Errorf("publish to channel %s: %w", ChannelLayers, err)
	}

	metrics.UIMessagesPublished.WithLabelValues(ChannelLayers).Inc()
	return nil
}

func (p *Publisher) PublishToast(_ context.Context, level domain.ToastLevel, message string) error {
	data, err := json.Marshal(toast{Level: string(level), Message: message})
	if err != nil {
		return fmt.Errorf("marshal toast: %w", err)
	}

	if _, err := p.node.Publish(ChannelToasts, data); err != nil {
		return fmt.Errorf("publish to channel %s: %w", ChannelToasts, err)
	}

	metrics.UIMessagesPublished.WithLabelValues(ChannelToasts).Inc()
	return nil
}
