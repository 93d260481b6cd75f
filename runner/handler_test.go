package runner

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_NoError_NoRetries(t *testing.T) {
	h := NewHandler()

	cf := countingFunc{failUntil: 0}
	require.NoError(t, h.Run(context.Background(), cf.fn))

	assert.Equal(t, int32(1), cf.calls.Load())
	assert.Equal(t, 1, h.Runs())
	assert.Equal(t, 1, h.SuccessfulRuns())
}

func TestHandler_SuccessOnSecondAttempt(t *testing.T) {
	h := NewHandler(WithMaxRetries(3))

	cf := countingFunc{failUntil: 1}
	require.NoError(t, h.Run(context.Background(), cf.fn))

	assert.Equal(t, int32(2), cf.calls.Load())
	assert.Equal(t, 1, h.Runs())
	assert.Equal(t, 1, h.SuccessfulRuns())
}

func TestHandler_AllAttemptsFail(t *testing.T) {
	var reported []error
	h := NewHandler(
		WithMaxRetries(2),
		WithErrorHandler(func(err error) { reported = append(reported, err) }),
	)

	cf := countingFunc{failUntil: 5}
	err := h.Run(context.Background(), cf.fn)
	require.Error(t, err)

	assert.Equal(t, int32(3), cf.calls.Load(), "1 initial + 2 retries")
	assert.Equal(t, 0, h.SuccessfulRuns())
	assert.Equal(t, 1, h.Runs())

	var richErr *goerrors.Error
	require.True(t, stderrors.As(err, &richErr))
	assert.Equal(t, ErrCodeRunFailed, richErr.TextCode)

	// two retry notices plus the final failure
	assert.Len(t, reported, 3)
}

func TestHandler_UnlimitedRetriesUntilSuccess(t *testing.T) {
	h := NewHandler(WithMaxRetries(-1))

	cf := countingFunc{failUntil: 7}
	require.NoError(t, h.Run(context.Background(), cf.fn))
	assert.Equal(t, int32(8), cf.calls.Load())
}

func TestHandler_ExitOnError(t *testing.T) {
	h := NewHandler(WithMaxRetries(5), WithExitOnError(true))

	cf := countingFunc{failUntil: 5}
	require.Error(t, h.Run(context.Background(), cf.fn))
	assert.Equal(t, int32(1), cf.calls.Load())
	assert.True(t, h.ShouldStopOnErr())
}

func TestHandler_RunOnce(t *testing.T) {
	h := NewHandler(WithRunOnce(true))

	cf := countingFunc{}
	require.NoError(t, h.Run(context.Background(), cf.fn))
	require.NoError(t, h.Run(context.Background(), cf.fn))

	assert.Equal(t, int32(1), cf.calls.Load(), "second run is skipped")
	assert.Equal(t, 1, h.SuccessfulRuns())
}

func TestHandler_MaxRuns(t *testing.T) {
	var doneCalls int
	h := NewHandler(
		WithMaxRuns(2),
		WithMaxRetries(0),
		WithDoneHandler(func(*Handler) { doneCalls++ }),
	)

	cf := countingFunc{}
	require.NoError(t, h.Run(context.Background(), cf.fn))
	require.NoError(t, h.Run(context.Background(), cf.fn))

	err := h.Run(context.Background(), cf.fn)
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, stderrors.As(err, &richErr))
	assert.Equal(t, ErrCodeRunLimitReached, richErr.TextCode)

	assert.Equal(t, int32(2), cf.calls.Load())
	assert.Equal(t, 2, h.SuccessfulRuns())
	assert.Equal(t, 1, doneCalls)
}

func TestHandler_Timeout(t *testing.T) {
	h := NewHandler(
		WithTimeout(50*time.Millisecond),
		WithMaxRetries(0),
	)

	start := time.Now()
	err := h.Run(context.Background(), func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
			return nil
		}
	})

	require.Error(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, 0, h.SuccessfulRuns())
}

func TestHandler_Deadline(t *testing.T) {
	h := NewHandler(WithDeadline(time.Now().Add(50 * time.Millisecond)))

	start := time.Now()
	err := h.Run(context.Background(), func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
			return nil
		}
	})

	require.Error(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, 0, h.SuccessfulRuns())
}

func TestHandler_CancelInterruptsBackoff(t *testing.T) {
	h := NewHandler(
		WithMaxRetries(-1),
		WithRetryStrategy(NewTableStrategy(time.Hour)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cf := countingFunc{failUntil: 100}

	result := make(chan error, 1)
	go func() {
		result <- h.Run(ctx, cf.fn)
	}()

	assert.Eventually(t, func() bool { return cf.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-result:
		require.Error(t, err)
		var richErr *goerrors.Error
		require.True(t, stderrors.As(err, &richErr))
		assert.Equal(t, ErrCodeRunInterrupted, richErr.TextCode)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, int32(1), cf.calls.Load())
}

func TestHandler_StrategyCanDeclineRetry(t *testing.T) {
	h := NewHandler(
		WithMaxRetries(10),
		WithRetryStrategy(fixedDecisionStrategy{decision: RetryDecision{ShouldRetry: false}}),
	)

	cf := countingFunc{failUntil: 5}
	require.Error(t, h.Run(context.Background(), cf.fn))
	assert.Equal(t, int32(1), cf.calls.Load())
}

func TestHandler_Concurrency(t *testing.T) {
	h := NewHandler(WithMaxRetries(1))
	wg := sync.WaitGroup{}
	const goroutines = 10

	cf := &countingFunc{failUntil: 1}

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Run(context.Background(), cf.fn)
		}()
	}
	wg.Wait()

	assert.Equal(t, goroutines, h.Runs())
	assert.Equal(t, goroutines, h.SuccessfulRuns())
	assert.GreaterOrEqual(t, int(cf.calls.Load()), goroutines)
}

func TestHandler_Logger(t *testing.T) {
	ml := &mockLogger{}
	h := NewHandler(
		WithLogger(ml),
		WithMaxRetries(1),
	)

	cf := countingFunc{failUntil: 2}
	require.Error(t, h.Run(context.Background(), cf.fn))

	assert.NotEmpty(t, ml.infoMessages)
	assert.NotEmpty(t, ml.errorMessages)
}

type mockLogger struct {
	mu            sync.Mutex
	infoMessages  []string
	errorMessages []string
}

func (m *mockLogger) Info(msg string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMessages = append(m.infoMessages, fmt.Sprintf(msg, args...))
}

func (m *mockLogger) Error(msg string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMessages = append(m.errorMessages, fmt.Sprintf(msg, args...))
}

type countingFunc struct {
	calls     atomic.Int32
	failUntil int32 // fail this many times, then succeed
}

func (cf *countingFunc) fn(_ context.Context) error {
	n := cf.calls.Add(1)
	if n <= cf.failUntil {
		return fmt.Errorf("forced error attempt %d", n)
	}
	return nil
}

type fixedDecisionStrategy struct {
	decision RetryDecision
}

func (f fixedDecisionStrategy) SleepDuration(int, error) time.Duration {
	return f.decision.Delay
}

func (f fixedDecisionStrategy) DecideRetry(int, error) RetryDecision {
	return f.decision
}
