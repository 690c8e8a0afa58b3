package domain

import (
	"context"

	"github.com/google/uuid"
)

// QueueClient talks to the backend job queue.
type QueueClient interface {
	// EnqueueBatch submits a single batch. prepend puts it at the front of
	// the execution queue.
	EnqueueBatch(ctx context.Context, batch Batch, prepend bool) (EnqueueResult, error)
	// CancelByBatchIDs cancels all queue items belonging to the given
	// batches. Callers treat failures as best-effort: the batch may
	// legitimately no longer exist.
	CancelByBatchIDs(ctx context.Context, batchIDs []string) error
}

// ImageClient resolves image descriptors from the backend images API.
type ImageClient interface {
	GetImageDTO(ctx context.Context, imageName string) (*ImageDTO, error)
}

// CompletionSource fans out invocation-complete events from the backend
// push channel. The returned stop function releases the subscription.
type CompletionSource interface {
	SubscribeInvocationComplete(buffer int) (<-chan InvocationCompleteEvent, func())
}

// LayerPublisher pushes reconciled layer state out to UI clients.
type LayerPublisher interface {
	PublishLayerUpdated(ctx context.Context, layer ControlLayer) error
	PublishToast(ctx context.Context, level ToastLevel, message string) error
}

// PresetRepository persists recallable layer presets.
type PresetRepository interface {
	Save(ctx context.Context, preset LayerPreset) error
	Get(ctx context.Context, id uuid.UUID) (*LayerPreset, error)
	List(ctx context.Context) ([]LayerPreset, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
