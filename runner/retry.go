package runner

import (
	"math"
	"time"
)

// RetryStrategy encapsulates the decision and delay between retries.
type RetryStrategy interface {
	// SleepDuration returns how long to wait before the next retry attempt.
	// The attempt index starts at 0, incrementing after each failure.
	SleepDuration(attempt int, err error) time.Duration
}

// RetryDecision is the outcome of asking a strategy whether to retry.
type RetryDecision struct {
	ShouldRetry bool
	Delay       time.Duration
	Metadata    map[string]any
}

// RetryDecider is implemented by strategies that may decline to retry.
type RetryDecider interface {
	DecideRetry(attempt int, err error) RetryDecision
}

// DecideRetry asks strategy for a decision. Strategies that only implement
// RetryStrategy always retry after their SleepDuration.
func DecideRetry(strategy RetryStrategy, attempt int, err error) RetryDecision {
	if strategy == nil {
		return RetryDecision{ShouldRetry: true}
	}
	if decider, ok := strategy.(RetryDecider); ok {
		return decider.DecideRetry(attempt, err)
	}
	return RetryDecision{
		ShouldRetry: true,
		Delay:       strategy.SleepDuration(attempt, err),
	}
}

// NoDelayStrategy is a simple retry strategy that performs all retries
// immediately without waiting.
type NoDelayStrategy struct{}

// SleepDuration always returns zero, causing immediate retries.
func (n NoDelayStrategy) SleepDuration(_ int, _ error) time.Duration {
	return 0
}

// ExponentialBackoffStrategy implements a backoff strategy.
// Usage example:
//
//	WithRetryStrategy(ExponentialBackoffStrategy{
//	    Base:   100 * time.Millisecond,
//	    Factor: 2,
//	    Max:    5 * time.Second,
//	})
type ExponentialBackoffStrategy struct {
	// Base is the starting delay (e.g., 100ms)
	Base time.Duration
	// Factor is multiplied each iteration (e.g., 2 => 100ms, 200ms, 400ms, ...)
	Factor float64
	// Max is the maximum delay allowed (caps the exponential growth)
	Max time.Duration
}

// SleepDuration implements an exponential backoff with a cap at Max.
func (e ExponentialBackoffStrategy) SleepDuration(attempt int, _ error) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(e.Base) * math.Pow(e.Factor, float64(attempt))
	if time.Duration(delay) > e.Max && e.Max > 0 {
		return e.Max
	}
	return time.Duration(delay)
}

// DefaultRetryTable is the backoff used when resending device state: one
// minute, then growing to an hour.
var DefaultRetryTable = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	20 * time.Minute,
	30 * time.Minute,
	60 * time.Minute,
}

// TableStrategy picks the delay for attempt n from Table, repeating the last
// entry once the table is exhausted. Each delay is randomized by up to
// Jitter in either direction, a fraction in [0, 1].
type TableStrategy struct {
	Table  []time.Duration
	Jitter float64
	// Rand returns a value in [0, 1). Defaults to no randomization.
	Rand func() float64
}

// NewTableStrategy returns a TableStrategy over table, or DefaultRetryTable
// when table is empty.
func NewTableStrategy(table ...time.Duration) TableStrategy {
	if len(table) == 0 {
		table = DefaultRetryTable
	}
	return TableStrategy{Table: append([]time.Duration(nil), table...)}
}

func (t TableStrategy) SleepDuration(attempt int, _ error) time.Duration {
	if len(t.Table) == 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(t.Table) {
		attempt = len(t.Table) - 1
	}
	delay := t.Table[attempt]

	if t.Jitter <= 0 || t.Rand == nil {
		return delay
	}
	jitter := math.Min(t.Jitter, 1)
	// scale into [1-jitter, 1+jitter)
	factor := 1 - jitter + 2*jitter*t.Rand()
	return time.Duration(float64(delay) * factor)
}
