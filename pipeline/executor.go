package pipeline

import (
	"sync"
	"sync/atomic"

	"github.com/goliatone/go-directive"
	"github.com/goliatone/go-directive/dialog"
	"github.com/goliatone/go-directive/registry"
)

// Item is a prepared directive waiting for execution.
// Generation is the turn generation the directive arrived in.
type Item struct {
	Directive  *directive.Directive
	Entry      registry.Entry
	Outcome    *directive.Outcome
	Generation uint64
}

// Executor is the handle stage: one worker, arrival order, turn-gated.
//
// A stale item (its turn was superseded after it arrived) is canceled
// instead of handled. A BLOCKING item suspends the worker until its outcome
// is reported or its turn is superseded, even if the same id is made current
// again right after. There is no timeout: a blocking directive
// that never reports, in a turn that never changes, stalls the stage.
type Executor struct {
	opts    options
	tracker *dialog.Tracker
	queue   *fifo[Item]

	stop     chan struct{}
	done     chan struct{}
	started  atomic.Bool
	stopped  atomic.Bool
	startMu  sync.Mutex
	workerID atomic.Uint64

	blockedMu sync.RWMutex
	blocked   string
}

func NewExecutor(tracker *dialog.Tracker, opts ...Option) *Executor {
	return &Executor{
		opts:    buildOptions(opts),
		tracker: tracker,
		queue:   newFIFO[Item](),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the worker. Calling it again is a no-op.
func (e *Executor) Start() {
	e.startMu.Lock()
	defer e.startMu.Unlock()
	if e.started.Load() || e.stopped.Load() {
		return
	}
	e.started.Store(true)
	go e.run()
}

// Submit queues a prepared item. It returns false once the stage is stopped.
func (e *Executor) Submit(item Item) bool {
	depth := e.queue.push(item)
	if depth < 0 {
		return false
	}
	e.opts.metrics.RecordState(item.Directive.Type(), directive.StateQueued)
	e.opts.metrics.RecordQueueDepth(StageHandle, depth)
	return true
}

// Pending returns the number of queued, not yet dispatched items.
func (e *Executor) Pending() int {
	return e.queue.len()
}

// Blocked returns the message id the worker is suspended on, if any.
func (e *Executor) Blocked() (string, bool) {
	e.blockedMu.RLock()
	defer e.blockedMu.RUnlock()
	return e.blocked, e.blocked != ""
}

// Stop halts the worker and cancels every item still queued, in order. It
// releases a suspended worker without waiting for the outcome.
func (e *Executor) Stop() {
	e.startMu.Lock()
	if e.stopped.Load() {
		e.startMu.Unlock()
		return
	}
	e.stopped.Store(true)
	started := e.started.Load()
	e.startMu.Unlock()

	rest := e.queue.close()
	close(e.stop)

	if started && directive.GetGoroutineID() != e.workerID.Load() {
		<-e.done
	}

	for _, item := range rest {
		e.cancel(item, "shutdown")
	}
	e.opts.metrics.RecordQueueDepth(StageHandle, 0)
}

func (e *Executor) run() {
	defer close(e.done)
	e.workerID.Store(directive.GetGoroutineID())
	e.opts.logger.Debug("handle stage started")
	defer e.opts.logger.Debug("handle stage stopped")

	for {
		item, ok := e.queue.pop(e.stop)
		if !ok {
			return
		}
		e.opts.metrics.RecordQueueDepth(StageHandle, e.queue.len())
		e.process(item)
	}
}

func (e *Executor) process(item Item) {
	d := item.Directive
	logger := directive.WithLoggerFields(e.opts.logger, directiveFields(d))

	if !e.tracker.IsLive(d.DialogRequestID(), item.Generation) {
		e.cancel(item, "stale dialog request id")
		return
	}

	if reported, failed, reason := item.Outcome.Result(); reported {
		logger.Debug("directive finished before handling failed=%t reason=%s", failed, reason)
		return
	}

	e.opts.metrics.RecordState(d.Type(), directive.StateExecuting)

	accepted := false
	panicked := directive.Guard(e.opts.panicLogger, "Handle", directiveFields(d), func() {
		accepted = item.Entry.Handler.Handle(d.MessageID())
	})

	if panicked {
		item.Outcome.ReportFailure(directive.ErrHandlerPanic.Message + ": Handle")
		return
	}

	if !accepted {
		if item.Outcome.Abandon() {
			logger.Warn("handler refused directive")
			e.opts.metrics.RecordState(d.Type(), directive.StateRejected)
		}
		return
	}

	if item.Entry.Policy != directive.Blocking {
		return
	}

	e.await(item, logger)
}

func (e *Executor) await(item Item, logger directive.Logger) {
	d := item.Directive
	e.setBlocked(d.MessageID())
	defer e.setBlocked("")

	logger.Debug("waiting on blocking directive")

	for {
		changed := e.tracker.Changed()
		if !e.tracker.IsLive(d.DialogRequestID(), item.Generation) {
			if item.Outcome.Abandon() {
				logger.Info("dialog request changed, releasing blocking directive")
			}
			return
		}

		select {
		case <-item.Outcome.Done():
			return
		case <-changed:
		case <-e.stop:
			item.Outcome.Abandon()
			return
		}
	}
}

func (e *Executor) cancel(item Item, reason string) {
	d := item.Directive
	item.Outcome.Abandon()

	directive.WithLoggerFields(e.opts.logger, directiveFields(d)).Debug("canceling directive: %s", reason)

	directive.Guard(e.opts.panicLogger, "Cancel", directiveFields(d), func() {
		item.Entry.Handler.Cancel(d.MessageID())
	})
	e.opts.metrics.RecordState(d.Type(), directive.StateCanceled)
}

func (e *Executor) setBlocked(messageID string) {
	e.blockedMu.Lock()
	e.blocked = messageID
	e.blockedMu.Unlock()
}
