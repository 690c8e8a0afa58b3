// Package queueapi is the HTTP client for the backend job queue and images
// API.
package queueapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"

	"github.com/H0onnn/InvokeAI/internal/domain"
	"github.com/H0onnn/InvokeAI/internal/metrics"
	"github.com/H0onnn/InvokeAI/internal/platform/retry"
)

const (
	httpCallTimeout = 10 * time.Second

	breakerMinRequests      = 5
	breakerFailureThreshold = 0.6
	breakerOpenDuration     = 30 * time.Second
)

type Client struct {
	baseURL string
	queueID string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	clock   clockwork.Clock
}

var _ domain.QueueClient = (*Client)(nil)
var _ domain.ImageClient = (*Client)(nil)

func New(baseURL, queueID string, clock clockwork.Clock) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "queue-api",
		Timeout: breakerOpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= breakerMinRequests &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= breakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &Client{
		baseURL: baseURL,
		queueID: queueID,
		http:    &http.Client{Timeout: httpCallTimeout},
		breaker: breaker,
		clock:   clock,
	}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

type enqueueRequest struct {
	Batch   domain.Batch `json:"batch"`
	Prepend bool         `json:"prepend"`
}

type enqueueResponse struct {
	Batch struct {
		BatchID string `json:"batch_id"`
	} `json:"batch"`
	Enqueued int `json:"enqueued"`
}

// EnqueueBatch submits one batch; prepend puts it at the queue front.
func (c *Client) EnqueueBatch(ctx context.Context, batch domain.Batch, prepend bool) (domain.EnqueueResult, error) {
	start := c.clock.Now()
	defer func() {
		metrics.QueueRequestDuration.WithLabelValues("enqueue_batch").Observe(c.clock.Since(start).Seconds())
	}()

	path := fmt.Sprintf("api/v1/queue/%s/enqueue_batch", url.PathEscape(c.queueID))
	body, status, err := c.do(ctx, http.MethodPost, path, enqueueRequest{Batch: batch, Prepend: prepend})
	if err != nil {
		metrics.QueueSubmissionsTotal.WithLabelValues("error").Inc()
		return domain.EnqueueResult{}, fmt.Errorf("enqueue batch: %w", err)
	}

	switch status {
	case http.StatusOK, http.StatusCreated:
	case http.StatusForbidden:
		metrics.QueueSubmissionsTotal.WithLabelValues("forbidden").Inc()
		return domain.EnqueueResult{}, fmt.Errorf("enqueue batch: %w", domain.ErrForbidden)
	default:
		metrics.QueueSubmissionsTotal.WithLabelValues("error").Inc()
		return domain.EnqueueResult{}, fmt.Errorf("enqueue batch: backend returned status %d", status)
	}

	var resp enqueueResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		metrics.QueueSubmissionsTotal.WithLabelValues("error").Inc()
		return domain.EnqueueResult{}, fmt.Errorf("decode enqueue response: %w", err)
	}

	metrics.QueueSubmissionsTotal.WithLabelValues("ok").Inc()
	return domain.EnqueueResult{BatchID: resp.Batch.BatchID, Enqueued: resp.Enqueued}, nil
}

type cancelRequest struct {
	BatchIDs []string `json:"batch_ids"`
}

// CancelByBatchIDs cancels all queue items for the given batches. Callers
// treat errors as best-effort; the batch may already be gone.
func (c *Client) CancelByBatchIDs(ctx context.Context, batchIDs []string) error {
	start := c.clock.Now()
	defer func() {
		metrics.QueueRequestDuration.WithLabelValues("cancel_by_batch_ids").Observe(c.clock.Since(start).Seconds())
	}()

	path := fmt.Sprintf("api/v1/queue/%s/cancel_by_batch_ids", url.PathEscape(c.queueID))
	_, status, err := c.do(ctx, http.MethodPut, path, cancelRequest{BatchIDs: batchIDs})
	if err != nil {
		metrics.QueueCancellationsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("cancel batches: %w", err)
	}
	if status != http.StatusOK {
		metrics.QueueCancellationsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("cancel batches: backend returned status %d", status)
	}

	metrics.QueueCancellationsTotal.WithLabelValues("ok").Inc()
	return nil
}

// GetImageDTO resolves the full descriptor for an image name. Transient
// failures are retried; 4xx responses are permanent.
func (c *Client) GetImageDTO(ctx context.Context, imageName string) (*domain.ImageDTO, error) {
	start := c.clock.Now()
	defer func() {
		metrics.QueueRequestDuration.WithLabelValues("get_image_dto").Observe(c.clock.Since(start).Seconds())
	}()

	policy := retry.Policy{
		MaxAttempts:    3,
		InitialBackoff: 250 * time.Millisecond,
		Clock:          c.clock,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.Debug("Retrying image descriptor fetch", "image_name", imageName, "attempt", attempt, "backoff", backoff, "error", err)
		},
	}

	classify := func(err error) retry.Action {
		var se *statusError
		if ok := asStatusError(err, &se); ok && se.status >= 400 && se.status < 500 {
			return retry.Stop
		}
		return retry.Retry
	}

	dto, err := retry.Do(ctx, policy, classify, func() (*domain.ImageDTO, error) {
		return c.fetchImageDTO(ctx, imageName)
	})
	if err != nil {
		return nil, fmt.Errorf("get image dto %q: %w", imageName, err)
	}
	return dto, nil
}

func (c *Client) fetchImageDTO(ctx context.Context, imageName string) (*domain.ImageDTO, error) {
	path := "api/v1/images/i/" + url.PathEscape(imageName)
	body, status, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
	case http.StatusForbidden:
		return nil, &statusError{status: status, err: domain.ErrForbidden}
	default:
		return nil, &statusError{status: status, err: fmt.Errorf("backend returned status %d", status)}
	}

	var dto domain.ImageDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, fmt.Errorf("decode image dto: %w", err)
	}
	return &dto, nil
}

// do performs one request through the circuit breaker. Only transport errors
// and 5xx responses count as breaker failures; 4xx responses are valid
// backend answers.
func (c *Client) do(ctx context.Context, method, path string, reqBody any) ([]byte, int, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return nil, 0, fmt.Errorf("encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+path, bodyReader)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	result, err := c.breaker.Execute(func() (any, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		if resp.StatusCode >= 500 {
			return nil, &statusError{status: resp.StatusCode, err: fmt.Errorf("backend returned status %d", resp.StatusCode)}
		}
		return httpResult{status: resp.StatusCode, body: body}, nil
	})
	if err != nil {
		return nil, 0, err
	}

	r := result.(httpResult)
	return r.body, r.status, nil
}

type httpResult struct {
	status int
	body   []byte
}

type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

func asStatusError(err error, target **statusError) bool {
	for err != nil {
		if se, ok := err.(*statusError); ok {
			*target = se
			return true
		}
		err = unwrap(err)
	}
	return false
}

func unwrap(err error) error {
	u, ok := err.(interface{ Unwrap() error })
	if !ok {
		return nil
	}
	return u.Unwrap()
}
