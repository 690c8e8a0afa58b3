package domain

import "github.com/google/uuid"

// Event is a state-change event dispatched through the store. The store's
// reducer is the only writer of layer state; every mutation is one of these.
type Event interface{ isEvent() }

type baseEvent struct{}

func (baseEvent) isEvent() {}

// LayerAdded introduces a new control layer.
type LayerAdded struct {
	baseEvent
	Layer ControlLayer
}

// LayerRemoved deletes a layer and everything recorded against it.
type LayerRemoved struct {
	baseEvent
	LayerID uuid.UUID
}

// LayerImageChanged sets or clears a layer's source image. A nil image
// clears it; the effect reacts by clearing the processed output too.
type LayerImageChanged struct {
	baseEvent
	LayerID uuid.UUID
	Image   *ImageRef
}

// ProcessorConfigChanged sets or clears a layer's processor configuration.
type ProcessorConfigChanged struct {
	baseEvent
	LayerID uuid.UUID
	Config  ProcessorConfig
}

// ModelChanged sets a layer's control model.
type ModelChanged struct {
	baseEvent
	LayerID uuid.UUID
	Model   string
}

// LayerRecalled restores a layer from a saved preset (bulk restore fires one
// per recalled layer).
type LayerRecalled struct {
	baseEvent
	Layer ControlLayer
}

// ProcessedImageChanged records (or clears) the effect's output for a layer.
// Dispatched only by the auto-preprocess effect.
type ProcessedImageChanged struct {
	baseEvent
	LayerID uuid.UUID
	Image   *ImageDTO
}

// PendingBatchChanged records (or clears) the in-flight batch id for a
// layer. Dispatched only by the auto-preprocess effect.
type PendingBatchChanged struct {
	baseEvent
	LayerID uuid.UUID
	BatchID string
}

// ToastRequested surfaces a user-visible notification.
type ToastRequested struct {
	baseEvent
	Level   ToastLevel
	Message string
}

type ToastLevel string

const (
	ToastInfo  ToastLevel = "info"
	ToastError ToastLevel = "error"
)

// PreprocessTrigger extracts the layer a trigger event refers to. It returns
// false for events that do not trigger the auto-preprocess effect.
func PreprocessTrigger(e Event) (uuid.UUID, bool) {
	switch ev := e.(type) {
	case LayerImageChanged:
		return ev.LayerID, true
	case ProcessorConfigChanged:
		return ev.LayerID, true
	case ModelChanged:
		return ev.LayerID, true
	case LayerRecalled:
		return ev.Layer.ID, true
	default:
		return uuid.Nil, false
	}
}
