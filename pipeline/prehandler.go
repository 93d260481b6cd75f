package pipeline

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/goliatone/go-directive"
	"github.com/goliatone/go-directive/dialog"
	"github.com/goliatone/go-directive/registry"
)

// Submitter accepts prepared items. *Executor is the production implementation.
type Submitter interface {
	Submit(item Item) bool
}

// PreHandler is the pre-handle stage: one worker, arrival order, independent
// of dialog turns. Each directive is routed through the registry, prepared by
// its handler and forwarded to the next stage. Unroutable directives are
// reported and dropped without affecting their siblings.
type PreHandler struct {
	opts     options
	registry *registry.Registry
	tracker  *dialog.Tracker
	next     Submitter
	queue    *fifo[arrival]

	stop     chan struct{}
	done     chan struct{}
	started  atomic.Bool
	stopped  atomic.Bool
	startMu  sync.Mutex
	workerID atomic.Uint64
}

func NewPreHandler(reg *registry.Registry, tracker *dialog.Tracker, next Submitter, opts ...Option) *PreHandler {
	return &PreHandler{
		opts:     buildOptions(opts),
		registry: reg,
		tracker:  tracker,
		next:     next,
		queue:    newFIFO[arrival](),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (p *PreHandler) Start() {
	p.startMu.Lock()
	defer p.startMu.Unlock()
	if p.started.Load() || p.stopped.Load() {
		return
	}
	p.started.Store(true)
	go p.run()
}

// arrival is a directive stamped with the turn generation it arrived in.
type arrival struct {
	directive  *directive.Directive
	generation uint64
}

// Submit queues d. It returns false once the stage is stopped.
func (p *PreHandler) Submit(d *directive.Directive) bool {
	depth := p.queue.push(arrival{directive: d, generation: p.tracker.Generation()})
	if depth < 0 {
		return false
	}
	p.opts.metrics.RecordQueueDepth(StagePreHandle, depth)
	return true
}

func (p *PreHandler) Pending() int {
	return p.queue.len()
}

// Stop halts the worker and drops directives that were never prepared. They
// were never seen by a handler, so no cancel is issued for them.
func (p *PreHandler) Stop() int {
	p.startMu.Lock()
	if p.stopped.Load() {
		p.startMu.Unlock()
		return 0
	}
	p.stopped.Store(true)
	started := p.started.Load()
	p.startMu.Unlock()

	rest := p.queue.close()
	close(p.stop)

	if started && directive.GetGoroutineID() != p.workerID.Load() {
		<-p.done
	}

	for _, a := range rest {
		p.opts.metrics.RecordState(a.directive.Type(), directive.StateDropped)
	}
	p.opts.metrics.RecordQueueDepth(StagePreHandle, 0)
	return len(rest)
}

func (p *PreHandler) run() {
	defer close(p.done)
	p.workerID.Store(directive.GetGoroutineID())
	p.opts.logger.Debug("pre-handle stage started")
	defer p.opts.logger.Debug("pre-handle stage stopped")

	for {
		a, ok := p.queue.pop(p.stop)
		if !ok {
			return
		}
		p.opts.metrics.RecordQueueDepth(StagePreHandle, p.queue.len())
		p.process(a)
	}
}

func (p *PreHandler) process(a arrival) {
	d := a.directive
	logger := directive.WithLoggerFields(p.opts.logger, directiveFields(d))

	entry, ok := p.registry.Lookup(d.Type())
	if !ok {
		reason := fmt.Sprintf("%s: %s", directive.ErrUnhandledDirective.Message, d.Type())
		logger.Warn("dropping directive: %s", reason)
		directive.Guard(p.opts.panicLogger, "ReportException", directiveFields(d), func() {
			p.opts.reporter.ReportException(d.Type(), d.MessageID(), reason)
		})
		p.opts.metrics.RecordState(d.Type(), directive.StateDropped)
		return
	}

	outcome := p.newOutcome(a, logger)
	p.opts.metrics.RecordState(d.Type(), directive.StatePreparing)

	panicked := directive.Guard(p.opts.panicLogger, "PreHandle", directiveFields(d), func() {
		entry.Handler.PreHandle(d, outcome)
	})
	if panicked {
		outcome.ReportFailure(directive.ErrHandlerPanic.Message + ": PreHandle")
		return
	}
	p.opts.metrics.RecordState(d.Type(), directive.StatePrepared)

	if !p.next.Submit(Item{Directive: d, Entry: entry, Outcome: outcome, Generation: a.generation}) {
		outcome.Abandon()
		logger.Debug("handle stage stopped, canceling prepared directive")
		directive.Guard(p.opts.panicLogger, "Cancel", directiveFields(d), func() {
			entry.Handler.Cancel(d.MessageID())
		})
		p.opts.metrics.RecordState(d.Type(), directive.StateCanceled)
	}
}

func (p *PreHandler) newOutcome(a arrival, logger directive.Logger) *directive.Outcome {
	d := a.directive
	turn := d.DialogRequestID()
	typ := d.Type()
	metrics := p.opts.metrics

	return directive.NewOutcome(d.MessageID(),
		directive.WithLiveness(func() bool {
			return p.tracker.IsLive(turn, a.generation)
		}),
		directive.WithReportHook(func(o *directive.Outcome) {
			_, failed, reason := o.Result()
			if failed {
				logger.Warn("directive failed: %s", reason)
				metrics.RecordState(typ, directive.StateFailed)
				return
			}
			logger.Debug("directive completed")
			metrics.RecordState(typ, directive.StateCompleted)
		}),
		directive.WithIgnoreHook(func(_ *directive.Outcome, failed bool, reason string) {
			logger.Debug("ignoring late result failed=%t reason=%s", failed, reason)
		}),
	)
}
