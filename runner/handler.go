// Package runner runs a unit of work with retries, backoff and run limits.
// The state synchronizer uses it to resend SynchronizeState.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
)

const (
	ErrCodeRunFailed       = "RUN_FAILED"
	ErrCodeRunInterrupted  = "RUN_INTERRUPTED"
	ErrCodeRunLimitReached = "RUN_LIMIT_REACHED"
)

type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type Handler struct {
	mu sync.Mutex

	logger        Logger
	errorHandler  func(error)
	doneHandler   func(r *Handler)
	retryStrategy RetryStrategy

	runs           int
	successfulRuns int

	maxRuns     int
	maxRetries  int
	timeout     time.Duration
	deadline    time.Time
	runOnce     bool
	exitOnError bool
}

// NewHandler constructs a Handler from options, applying defaults if unset.
func NewHandler(opts ...Option) *Handler {
	r := &Handler{
		errorHandler:  func(err error) {},
		doneHandler:   func(r *Handler) {},
		retryStrategy: NoDelayStrategy{},
	}
	for _, o := range opts {
		if o != nil {
			o(r)
		}
	}
	return r
}

// Run calls fn, retrying failures as the strategy allows. Waiting between
// attempts ends early when ctx is done. It returns the last error, or nil.
func (h *Handler) Run(ctx context.Context, fn func(context.Context) error) error {
	h.mu.Lock()
	if h.runOnce && h.successfulRuns >= 1 {
		h.mu.Unlock()
		return nil
	}
	if h.maxRuns > 0 && h.successfulRuns >= h.maxRuns {
		h.mu.Unlock()
		return errors.New("run limit reached", errors.CategoryConflict).
			WithTextCode(ErrCodeRunLimitReached).
			WithMetadata(map[string]any{"max_runs": h.maxRuns})
	}
	maxRetries := h.maxRetries
	strategy := h.retryStrategy
	exitOnError := h.exitOnError
	h.mu.Unlock()

	ctx, cancel := h.contextWithSettings(ctx)
	defer cancel()

	var err error
	interrupted := false
	attempt := 0
	for {
		err = fn(ctx)
		if err == nil {
			break
		}

		if ctx.Err() != nil || exitOnError || (maxRetries >= 0 && attempt >= maxRetries) {
			break
		}

		decision := DecideRetry(strategy, attempt, err)
		if !decision.ShouldRetry {
			break
		}

		h.handleError(errors.Wrap(err, errors.CategoryExternal, "run attempt failed").
			WithTextCode(ErrCodeRunFailed).
			WithMetadata(map[string]any{
				"attempt":     attempt + 1,
				"max_retries": maxRetries,
				"retry_in":    decision.Delay.String(),
			}))
		h.logInfo("retrying in %s after attempt %d: %v", decision.Delay, attempt+1, err)

		if !sleep(ctx, decision.Delay) {
			err = errors.Wrap(ctx.Err(), errors.CategoryExternal, "run interrupted while waiting to retry").
				WithTextCode(ErrCodeRunInterrupted).
				WithMetadata(map[string]any{"attempt": attempt + 1})
			interrupted = true
			break
		}
		attempt++
	}

	h.mu.Lock()
	h.runs++
	if err == nil {
		h.successfulRuns++
	}
	reachedMax := h.maxRuns > 0 && h.successfulRuns >= h.maxRuns
	h.mu.Unlock()

	if err != nil {
		if !interrupted {
			err = errors.Wrap(err, errors.CategoryExternal, fmt.Sprintf("run failed after %d attempts", attempt+1)).
				WithTextCode(ErrCodeRunFailed)
		}
		h.handleError(err)
		h.logError("run failed: %v", err)
	}

	if reachedMax {
		h.doneHandler(h)
	}
	return err
}

// ShouldStopOnErr reports whether the handler was configured to give up on
// the first failure.
func (h *Handler) ShouldStopOnErr() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitOnError
}

// Runs returns the number of completed runs, successful or not.
func (h *Handler) Runs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runs
}

// SuccessfulRuns returns the number of runs that ended without error.
func (h *Handler) SuccessfulRuns() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.successfulRuns
}

func (h *Handler) handleError(err error) {
	h.errorHandler(err)
}

func (h *Handler) logError(format string, args ...any) {
	if h.logger != nil {
		h.logger.Error(format, args...)
	}
}

func (h *Handler) logInfo(format string, args ...any) {
	if h.logger != nil {
		h.logger.Info(format, args...)
	}
}

func (h *Handler) contextWithSettings(parent context.Context) (context.Context, context.CancelFunc) {
	switch {
	case h.timeout != 0 && !h.deadline.IsZero():
		ctx, cancelTimeout := context.WithTimeout(parent, h.timeout)
		ctxDeadline, cancelDeadline := context.WithDeadline(ctx, h.deadline)
		return ctxDeadline, func() {
			cancelDeadline()
			cancelTimeout()
		}
	case h.timeout != 0:
		return context.WithTimeout(parent, h.timeout)
	case !h.deadline.IsZero():
		return context.WithDeadline(parent, h.deadline)
	default:
		return parent, func() {}
	}
}

// sleep waits d or until ctx is done. It reports whether the full delay
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
