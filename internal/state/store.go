// Package state holds the gateway's canvas state. All mutation flows through
// Dispatch; readers get copies of the current snapshot. Subscribers observe
// the event stream, never the map itself.
package state

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/H0onnn/InvokeAI/internal/domain"
	"github.com/H0onnn/InvokeAI/internal/metrics"
)

type Store struct {
	mu     sync.RWMutex
	layers map[uuid.UUID]domain.ControlLayer

	subMu  sync.Mutex
	subs   map[int]chan domain.Event
	nextID int
}

func NewStore() *Store {
	return &Store{
		layers: make(map[uuid.UUID]domain.ControlLayer),
		subs:   make(map[int]chan domain.Event),
	}
}

// Dispatch applies the event to the state atomically, then notifies
// subscribers. Subscriber channels are buffered; a full buffer drops the
// event for that subscriber rather than blocking the dispatcher.
func (s *Store) Dispatch(e domain.Event) {
	s.mu.Lock()
	s.apply(e)
	s.mu.Unlock()

	metrics.StoreEventsTotal.WithLabelValues(EventName(e)).Inc()

	s.subMu.Lock()
	for id, ch := range s.subs {
		select {
		case ch <- e:
		default:
			slog.Warn("Store subscriber buffer full, dropping event", "subscriber", id, "event", EventName(e))
			metrics.StoreDroppedEventsTotal.Inc()
		}
	}
	s.subMu.Unlock()
}

// Subscribe returns a channel receiving every subsequently dispatched event
// and a stop function releasing the subscription.
func (s *Store) Subscribe(buffer int) (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, buffer)

	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	metrics.StoreSubscribers.Set(float64(len(s.subs)))
	s.subMu.Unlock()

	stop := func() {
		s.subMu.Lock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
		metrics.StoreSubscribers.Set(float64(len(s.subs)))
		s.subMu.Unlock()
	}
	return ch, stop
}

// Layer returns a snapshot copy of one layer. Pointer fields are shared but
// treated as immutable: mutation replaces the pointer via an event.
func (s *Store) Layer(id uuid.UUID) (domain.ControlLayer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	layer, ok := s.layers[id]
	return layer, ok
}

// Layers returns a snapshot of all layers.
func (s *Store) Layers() []domain.ControlLayer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ControlLayer, 0, len(s.layers))
	for _, layer := range s.layers {
		out = append(out, layer)
	}
	return out
}

// apply is the reducer. Caller holds the write lock.
func (s *Store) apply(e domain.Event) {
	switch ev := e.(type) {
	case domain.LayerAdded:
		s.layers[ev.Layer.ID] = ev.Layer

	case domain.LayerRemoved:
		delete(s.layers, ev.LayerID)

	case domain.LayerImageChanged:
		if layer, ok := s.layers[ev.LayerID]; ok {
			layer.Image = ev.Image
			s.layers[ev.LayerID] = layer
		}

	case domain.ProcessorConfigChanged:
		if layer, ok := s.layers[ev.LayerID]; ok {
			layer.Processor = ev.Config
			s.layers[ev.LayerID] = layer
		}

	case domain.ModelChanged:
		if layer, ok := s.layers[ev.LayerID]; ok {
			layer.Model = ev.Model
			s.layers[ev.LayerID] = layer
		}

	case domain.LayerRecalled:
		s.layers[ev.Layer.ID] = ev.Layer

	case domain.ProcessedImageChanged:
		if layer, ok := s.layers[ev.LayerID]; ok {
			layer.ProcessedImage = ev.Image
			s.layers[ev.LayerID] = layer
		}

	case domain.PendingBatchChanged:
		if layer, ok := s.layers[ev.LayerID]; ok {
			layer.PendingBatchID = ev.BatchID
			s.layers[ev.LayerID] = layer
		}

	case domain.ToastRequested:
		// Notification only, no layer state.

	default:
		slog.Warn("Store received unknown event type", "event", EventName(e))
	}
}

// EventName returns a stable label for metrics and logs.
func EventName(e domain.Event) string {
	switch e.(type) {
	case domain.LayerAdded:
		return "layer_added"
	case domain.LayerRemoved:
		return "layer_removed"
	case domain.LayerImageChanged:
		return "layer_image_changed"
	case domain.ProcessorConfigChanged:
		return "processor_config_changed"
	case domain.ModelChanged:
		return "model_changed"
	case domain.LayerRecalled:
		return "layer_recalled"
	case domain.ProcessedImageChanged:
		return "processed_image_changed"
	case domain.PendingBatchChanged:
		return "pending_batch_changed"
	case domain.ToastRequested:
		return "toast_requested"
	default:
		return "unknown"
	}
}
