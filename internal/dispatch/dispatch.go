// Package dispatch bounds and paces calls to the LLM backend. A weighted
// semaphore caps the number of in-flight generation calls, an outbound rate
// limiter smooths the call rate to the provider, and every call carries a
// hard deadline. Slow or failing generation surfaces as an error for the
// caller to degrade on — the dispatcher itself never blocks indefinitely.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrTimeout is returned when generation does not complete within the
// configured deadline.
var ErrTimeout = errors.New("dispatch: generation timed out")

// Config holds the dispatcher tunables.
type Config struct {
	// Workers caps the number of concurrent in-flight generation calls.
	Workers int

	// Timeout is the per-call generation deadline.
	Timeout time.Duration

	// OutboundRPS paces calls to the provider (requests/second).
	// Zero disables pacing.
	OutboundRPS float64

	// OutboundBurst is the pacer burst size. Defaults to Workers.
	OutboundBurst int
}

// Dispatcher serializes access to the chat model. It is safe for
// concurrent use.
type Dispatcher struct {
	model   model.BaseChatModel
	sem     *semaphore.Weighted
	pacer   *rate.Limiter
	timeout time.Duration
	log     *slog.Logger
}

// New constructs a Dispatcher wrapping the given chat model.
func New(m model.BaseChatModel, cfg Config, log *slog.Logger) (*Dispatcher, error) {
	if m == nil {
		return nil, fmt.Errorf("dispatch: chat model must not be nil")
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("dispatch: workers must be >= 1, got %d", cfg.Workers)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("dispatch: timeout must be positive, got %s", cfg.Timeout)
	}

	limit := rate.Inf
	burst := cfg.Workers
	if cfg.OutboundRPS > 0 {
		limit = rate.Limit(cfg.OutboundRPS)
		if cfg.OutboundBurst > 0 {
			burst = cfg.OutboundBurst
		}
	}

	return &Dispatcher{
		model:   m,
		sem:     semaphore.NewWeighted(int64(cfg.Workers)),
		pacer:   rate.NewLimiter(limit, burst),
		timeout: cfg.Timeout,
		log:     log,
	}, nil
}

// Generate sends the prompt to the model and returns the answer text.
// The call waits for a worker slot and an outbound pacing token, both
// honoring ctx cancellation, then runs under the configured deadline.
// A deadline miss returns ErrTimeout; other failures are wrapped verbatim.
func (d *Dispatcher) Generate(ctx context.Context, prompt string) (string, error) {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("dispatch: waiting for worker slot: %w", err)
	}
	defer d.sem.Release(1)

	if err := d.pacer.Wait(ctx); err != nil {
		return "", fmt.Errorf("dispatch: waiting for pacer: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	resp, err := d.model.Generate(callCtx, []*schema.Message{schema.UserMessage(prompt)})
	elapsed := time.Since(start)

	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			d.log.Warn("generation timed out",
				slog.Duration("elapsed", elapsed),
				slog.Duration("timeout", d.timeout),
			)
			return "", ErrTimeout
		}
		return "", fmt.Errorf("dispatch: generation failed: %w", err)
	}
	if resp == nil || resp.Content == "" {
		return "", fmt.Errorf("dispatch: model returned empty response")
	}

	d.log.Debug("generation completed",
		slog.Duration("elapsed", elapsed),
		slog.Int("answer_chars", len(resp.Content)),
	)
	return resp.Content, nil
}
