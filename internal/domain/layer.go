package domain

import (
	"time"

	"github.com/google/uuid"
)

// ImageRef is a by-name reference to an image held by the backend.
type ImageRef struct {
	ImageName string `json:"image_name"`
}

// ImageDTO is the full image descriptor resolved from the backend images API.
type ImageDTO struct {
	ImageName      string    `json:"image_name"`
	ImageURL       string    `json:"image_url"`
	ThumbnailURL   string    `json:"thumbnail_url"`
	Width          int       `json:"width"`
	Height         int       `json:"height"`
	IsIntermediate bool      `json:"is_intermediate"`
	SessionID      string    `json:"session_id,omitempty"`
	NodeID         string    `json:"node_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ControlLayer is a control-adapter layer on the canvas.
//
// ProcessedImage and PendingBatchID are owned by the auto-preprocess effect:
// only events originated by the effect may set or clear them. At most one
// pending batch id exists per layer at any time; a new submission must first
// cancel the existing one.
type ControlLayer struct {
	ID             uuid.UUID       `json:"id"`
	Model          string          `json:"model,omitempty"`
	Image          *ImageRef       `json:"image,omitempty"`
	Processor      ProcessorConfig `json:"-"`
	ProcessedImage *ImageDTO       `json:"processed_image,omitempty"`
	PendingBatchID string          `json:"pending_batch_id,omitempty"`
}

// LayerPreset is a persisted snapshot of a layer's recallable settings.
type LayerPreset struct {
	ID        uuid.UUID
	Name      string
	Model     string
	Image     *ImageRef
	Processor ProcessorConfig
	CreatedAt time.Time
	UpdatedAt time.Time
}
