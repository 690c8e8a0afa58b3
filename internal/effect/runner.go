package effect

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/H0onnn/InvokeAI/internal/domain"
	"github.com/H0onnn/InvokeAI/internal/metrics"
	"github.com/H0onnn/InvokeAI/internal/platform/correlation"
)

const triggerBuffer = 64

// EventSource is the store-side subscription the runner listens on.
type EventSource interface {
	Subscribe(buffer int) (<-chan domain.Event, func())
}

// Effect is one debounced preprocess run.
type Effect interface {
	Run(ctx context.Context, layerID uuid.UUID)
}

// Runner gives the auto-preprocess effect take-latest semantics: any
// matching trigger cancels the previous in-flight instance and starts a new
// one. Supersession is global across layers, not per layer: editing layer A
// while layer B's preprocessing is in flight cancels B's. That matches the
// observed product behavior and is pinned by a test.
type Runner struct {
	events EventSource
	effect Effect

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRunner(events EventSource, effect Effect) *Runner {
	return &Runner{events: events, effect: effect}
}

// Run consumes trigger events until ctx is cancelled. On exit it cancels the
// in-flight instance and waits for its compensation to finish.
func (r *Runner) Run(ctx context.Context) {
	events, stop := r.events.Subscribe(triggerBuffer)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			r.mu.Lock()
			if r.cancel != nil {
				r.cancel()
			}
			r.mu.Unlock()
			r.wg.Wait()
			slog.Info("Preprocess runner stopped")
			return

		case e, ok := <-events:
			if !ok {
				return
			}
			layerID, matches := domain.PreprocessTrigger(e)
			if !matches {
				continue
			}
			r.start(ctx, layerID)
		}
	}
}

func (r *Runner) start(parent context.Context, layerID uuid.UUID) {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
		metrics.EffectSupersededTotal.Inc()
	}
	runCtx, cancel := context.WithCancel(parent)
	r.cancel = cancel
	r.mu.Unlock()

	runCtx = correlation.WithID(runCtx, correlation.NewID())

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.effect.Run(runCtx, layerID)
	}()
}
