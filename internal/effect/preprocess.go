// Package effect implements the reactive auto-preprocess behavior: whenever
// a control layer's image, processor config, or model changes, a single
// debounced instance submits a one-node preprocess graph to the backend
// queue, awaits its completion event, and reconciles the layer's processed
// output.
package effect

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/H0onnn/InvokeAI/internal/domain"
	"github.com/H0onnn/InvokeAI/internal/graph"
	"github.com/H0onnn/InvokeAI/internal/metrics"
)

const (
	// cancelTimeout bounds best-effort batch cancellations, which run on a
	// background context because the run context may already be cancelled.
	cancelTimeout = 5 * time.Second

	completionBuffer = 16
)

type outcome string

const (
	outcomeDone     outcome = "done"
	outcomeCanceled outcome = "canceled"
	outcomeFailed   outcome = "failed"
	outcomeSkipped  outcome = "skipped"
)

// Store is the slice of the state store the effect needs.
type Store interface {
	Dispatch(e domain.Event)
	Layer(id uuid.UUID) (domain.ControlLayer, bool)
}

// Config tunes the effect.
type Config struct {
	// QuietPeriod coalesces rapid successive edits before any work starts.
	QuietPeriod time.Duration
	// CompletionTimeout bounds the wait for the completion event. Zero
	// disables it, matching the observed product behavior; enabling it is
	// a hardening option (a backend that never emits completion would
	// otherwise leak the instance until the next trigger).
	CompletionTimeout time.Duration
}

// Preprocessor runs one effect instance per trigger.
type Preprocessor struct {
	store       Store
	queue       domain.QueueClient
	images      domain.ImageClient
	completions domain.CompletionSource
	clock       clockwork.Clock
	cfg         Config
}

func NewPreprocessor(store Store, queue domain.QueueClient, images domain.ImageClient, completions domain.CompletionSource, clock clockwork.Clock, cfg Config) *Preprocessor {
	return &Preprocessor{
		store:       store,
		queue:       queue,
		images:      images,
		completions: completions,
		clock:       clock,
		cfg:         cfg,
	}
}

// Run executes one instance: Debouncing → Submitting → AwaitingCompletion →
// Reconciling. Cancellation at any suspension point runs compensation and
// terminates silently.
func (p *Preprocessor) Run(ctx context.Context, layerID uuid.UUID) {
	log := slog.With("layer_id", layerID.String())
	start := p.clock.Now()

	result := p.run(ctx, log, layerID)

	metrics.EffectRunsTotal.WithLabelValues(string(result)).Inc()
	if result == outcomeDone {
		metrics.EffectDuration.Observe(p.clock.Since(start).Seconds())
	}
}

func (p *Preprocessor) run(ctx context.Context, log *slog.Logger, layerID uuid.UUID) outcome {
	// Debouncing: wait out the quiet period. Superseded here means zero
	// side effects.
	quiet := p.clock.NewTimer(p.cfg.QuietPeriod)
	defer quiet.Stop()
	select {
	case <-ctx.Done():
		return outcomeCanceled
	case <-quiet.Chan():
	}

	// State may have changed during the wait; re-read it.
	layer, ok := p.store.Layer(layerID)
	if !ok {
		return outcomeSkipped
	}

	if layer.Image == nil || layer.Processor == nil {
		if layer.ProcessedImage != nil {
			p.store.Dispatch(domain.ProcessedImageChanged{LayerID: layerID, Image: nil})
		}
		return outcomeSkipped
	}

	// One pending batch per layer: cancel the previous one first.
	if layer.PendingBatchID != "" {
		p.cancelBatch(log, layer.PendingBatchID)
		p.store.Dispatch(domain.PendingBatchChanged{LayerID: layerID, BatchID: ""})
	}

	g, node, err := graph.BuildPreprocessGraph(layer.Processor, *layer.Image)
	if err != nil {
		return p.fail(ctx, log, layerID, err)
	}

	// Subscribe before submitting so the completion event cannot race past us.
	completions, stopCompletions := p.completions.SubscribeInvocationComplete(completionBuffer)
	defer stopCompletions()

	res, err := p.queue.EnqueueBatch(ctx, domain.Batch{Graph: g, Runs: 1}, true)
	if err != nil {
		return p.fail(ctx, log, layerID, err)
	}
	if res.BatchID == "" {
		return p.fail(ctx, log, layerID, &domain.ContractViolationError{
			Kind:   "missing_batch_id",
			Detail: "enqueue succeeded but returned no batch id",
		})
	}

	p.store.Dispatch(domain.PendingBatchChanged{LayerID: layerID, BatchID: res.BatchID})
	log.Debug("Preprocess batch submitted", "batch_id", res.BatchID, "node_id", node.ID)

	return p.awaitCompletion(ctx, log, layerID, res.BatchID, node.ID, completions)
}

func (p *Preprocessor) awaitCompletion(ctx context.Context, log *slog.Logger, layerID uuid.UUID, batchID, nodeID string, completions <-chan domain.InvocationCompleteEvent) outcome {
	var timeoutCh <-chan time.Time
	if p.cfg.CompletionTimeout > 0 {
		timeout := p.clock.NewTimer(p.cfg.CompletionTimeout)
		defer timeout.Stop()
		timeoutCh = timeout.Chan()
	}

	for {
		select {
		case <-ctx.Done():
			p.compensate(log, layerID)
			return outcomeCanceled

		case <-timeoutCh:
			p.compensate(log, layerID)
			p.store.Dispatch(domain.PendingBatchChanged{LayerID: layerID, BatchID: ""})
			return p.fail(ctx, log, layerID, domain.ErrCompletionTimeout)

		case ev, ok := <-completions:
			if !ok {
				return p.fail(ctx, log, layerID, errors.New("completion stream closed"))
			}
			if ev.QueueBatchID != batchID || ev.SourceNodeID != nodeID {
				continue
			}
			return p.reconcile(ctx, log, layerID, ev)
		}
	}
}

func (p *Preprocessor) reconcile(ctx context.Context, log *slog.Logger, layerID uuid.UUID, ev domain.InvocationCompleteEvent) outcome {
	if ev.Result.Type != domain.ResultTypeImage || ev.Result.Image == nil {
		return p.fail(ctx, log, layerID, &domain.ContractViolationError{
			Kind:   "non_image_result",
			Detail: "completion result is not image-typed: " + ev.Result.Type,
		})
	}

	dto, err := p.images.GetImageDTO(ctx, ev.Result.Image.ImageName)
	if err != nil {
		return p.fail(ctx, log, layerID, err)
	}
	if dto == nil {
		return p.fail(ctx, log, layerID, &domain.ContractViolationError{
			Kind:   "missing_descriptor",
			Detail: "no descriptor for image " + ev.Result.Image.ImageName,
		})
	}

	p.store.Dispatch(domain.ProcessedImageChanged{LayerID: layerID, Image: dto})
	p.store.Dispatch(domain.PendingBatchChanged{LayerID: layerID, BatchID: ""})
	log.Debug("Processed image reconciled", "image_name", dto.ImageName)
	return outcomeDone
}

// fail routes a failure through the error taxonomy: cancellation compensates
// silently, forbidden clears the source image (resource gone), contract
// violations surface loudly, everything else becomes a toast with layer
// state left intact so the user can retry.
func (p *Preprocessor) fail(ctx context.Context, log *slog.Logger, layerID uuid.UUID, err error) outcome {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		p.compensate(log, layerID)
		return outcomeCanceled
	}

	if errors.Is(err, domain.ErrForbidden) {
		log.Warn("Backend denied access to layer image, clearing it", "error", err)
		p.store.Dispatch(domain.LayerImageChanged{LayerID: layerID, Image: nil})
		return outcomeFailed
	}

	var cv *domain.ContractViolationError
	if errors.As(err, &cv) {
		log.Error("Queue contract violation", "kind", cv.Kind, "detail", cv.Detail)
		metrics.ContractViolationsTotal.WithLabelValues(cv.Kind).Inc()
		p.store.Dispatch(domain.ToastRequested{Level: domain.ToastError, Message: "Image processing returned an unexpected result"})
		return outcomeFailed
	}

	log.Error("Auto-preprocess failed", "error", err)
	p.store.Dispatch(domain.ToastRequested{Level: domain.ToastError, Message: "Failed to process control image"})
	return outcomeFailed
}

// compensate cancels whatever batch is pending for the layer *now*. It may
// differ from the one this instance submitted if state moved concurrently.
func (p *Preprocessor) compensate(log *slog.Logger, layerID uuid.UUID) {
	layer, ok := p.store.Layer(layerID)
	if !ok || layer.PendingBatchID == "" {
		return
	}
	p.cancelBatch(log, layer.PendingBatchID)
}

// cancelBatch is fire-and-forget: the batch may legitimately no longer exist.
func (p *Preprocessor) cancelBatch(log *slog.Logger, batchID string) {
	ctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
	defer cancel()

	if err := p.queue.CancelByBatchIDs(ctx, []string{batchID}); err != nil {
		log.Debug("Batch cancellation failed (ignored)", "batch_id", batchID, "error", err)
	}
}
