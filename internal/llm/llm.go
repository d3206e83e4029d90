// Package llm defines the completion interface shared by the model clients
// and a bounded retry wrapper around it.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrUnavailable marks transient provider failures: transport errors,
// rate limiting and 5xx responses. Only these are retried.
var ErrUnavailable = errors.New("llm unavailable")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer returns the text completion for a system prompt and messages.
type Completer interface {
	Complete(ctx context.Context, system string, messages []Message, maxTokens int) (string, error)
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded)
}

const (
	defaultBackoff    = 250 * time.Millisecond
	defaultMaxBackoff = 2 * time.Second
)

// Retrying bounds every attempt with a timeout and retries transient
// failures with exponential backoff.
type Retrying struct {
	next       Completer
	attempts   int
	timeout    time.Duration
	backoff    time.Duration
	maxBackoff time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *slog.Logger
}

func NewRetrying(next Completer, attempts int, timeout time.Duration, logger *slog.Logger) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	return &Retrying{
		next:       next,
		attempts:   attempts,
		timeout:    timeout,
		backoff:    defaultBackoff,
		maxBackoff: defaultMaxBackoff,
		sleep:      sleepCtx,
		logger:     logger,
	}
}

func (r *Retrying) Complete(ctx context.Context, system string, messages []Message, maxTokens int) (string, error) {
	return r.run(ctx, func(ctx context.Context) (string, error) {
		return r.next.Complete(ctx, system, messages, maxTokens)
	})
}

type jsonCompleter interface {
	CompleteJSON(ctx context.Context, system string, messages []Message, maxTokens int) (string, error)
}

// CompleteJSON retries the wrapped client's JSON mode, falling back to
// Complete when the client has none.
func (r *Retrying) CompleteJSON(ctx context.Context, system string, messages []Message, maxTokens int) (string, error) {
	jc, ok := r.next.(jsonCompleter)
	if !ok {
		return r.Complete(ctx, system, messages, maxTokens)
	}
	return r.run(ctx, func(ctx context.Context) (string, error) {
		return jc.CompleteJSON(ctx, system, messages, maxTokens)
	})
}

func (r *Retrying) run(ctx context.Context, call func(context.Context) (string, error)) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		out, err := r.attempt(ctx, call)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !Retryable(err) || attempt == r.attempts {
			break
		}
		wait := r.backoff << (attempt - 1)
		if wait > r.maxBackoff {
			wait = r.maxBackoff
		}
		r.logger.Warn("llm call failed, retrying", "attempt", attempt, "wait", wait, "error", err)
		if err := r.sleep(ctx, wait); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("llm call failed: %w", lastErr)
}

func (r *Retrying) attempt(ctx context.Context, call func(context.Context) (string, error)) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return call(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// StatusError wraps an HTTP error from a provider. 429 and 5xx unwrap to
// ErrUnavailable.
type StatusError struct {
	Provider string
	Code     int
	Message  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s api error %d: %s", e.Provider, e.Code, e.Message)
}

func (e *StatusError) Unwrap() error {
	if e.Code == 429 || e.Code >= 500 {
		return ErrUnavailable
	}
	return nil
}
