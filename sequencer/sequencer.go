// Package sequencer wires the handler registry, the dialog tracker and the
// two pipeline stages into the public directive sequencer.
package sequencer

import (
	"sync"

	"github.com/goliatone/go-directive"
	"github.com/goliatone/go-directive/dialog"
	"github.com/goliatone/go-directive/metrics"
	"github.com/goliatone/go-directive/pipeline"
	"github.com/goliatone/go-directive/registry"
)

// Sequencer receives directives, routes each to the handler registered for
// its type and runs them in arrival order, one turn at a time.
type Sequencer struct {
	logger        directive.Logger
	reporter      directive.ExceptionReporter
	metrics       directive.Metrics
	panicLogger   directive.PanicLogger
	turnObservers []dialog.ChangeFunc

	registry *registry.Registry
	tracker  *dialog.Tracker
	counter  *metrics.Counter
	executor *pipeline.Executor
	pre      *pipeline.PreHandler

	mu            sync.RWMutex
	shutdown      bool
	subscriptions []dialog.Subscription
}

func New(opts ...Option) *Sequencer {
	s := &Sequencer{
		registry: registry.New(),
		tracker:  dialog.NewTracker(),
		counter:  metrics.NewCounter(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	s.logger = directive.WithLoggerFields(directive.NormalizeLogger(s.logger), map[string]any{
		"component": "sequencer",
	})

	stageOpts := []pipeline.Option{
		pipeline.WithLogger(s.logger),
		pipeline.WithMetrics(metrics.Tee(s.counter, s.metrics)),
		pipeline.WithExceptionReporter(s.reporter),
	}
	if s.panicLogger != nil {
		stageOpts = append(stageOpts, pipeline.WithPanicLogger(s.panicLogger))
	}

	s.executor = pipeline.NewExecutor(s.tracker, stageOpts...)
	s.pre = pipeline.NewPreHandler(s.registry, s.tracker, s.executor, stageOpts...)

	for _, fn := range s.turnObservers {
		s.subscriptions = append(s.subscriptions, s.tracker.Subscribe(fn))
	}

	s.executor.Start()
	s.pre.Start()
	return s
}

// AddHandler registers h for every type in its configuration. It fails
// wholesale if any type is owned by another handler.
func (s *Sequencer) AddHandler(h directive.Handler) bool {
	if err := s.addHandler(h); err != nil {
		s.logger.Error("add handler failed: %s", err)
		return false
	}
	return true
}

func (s *Sequencer) addHandler(h directive.Handler) error {
	if s.isShutdown() {
		return directive.ErrSequencerShutdown
	}
	// Register calls h.Configuration, so no sequencer lock is held here.
	if err := s.registry.Register(h); err != nil {
		return err
	}
	if s.isShutdown() {
		s.registry.Deregister(h)
		return directive.ErrSequencerShutdown
	}
	return nil
}

func (s *Sequencer) isShutdown() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shutdown
}

// RemoveHandler releases every type owned by h.
func (s *Sequencer) RemoveHandler(h directive.Handler) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.shutdown {
		return false
	}
	return s.registry.Deregister(h)
}

// SetCurrentTurn makes id the current dialog request id. Queued directives of
// any other turn are canceled when they reach the handle stage, and a blocking
// directive of the previous turn stops holding the stage.
func (s *Sequencer) SetCurrentTurn(id string) {
	previous := s.tracker.Set(id)
	if previous != id {
		s.logger.Debug("dialog request id changed from=%q to=%q", previous, id)
	}
}

func (s *Sequencer) CurrentTurn() string {
	return s.tracker.Current()
}

// OnDirective accepts d for processing. It returns false for nil or invalid
// directives and after Shutdown.
func (s *Sequencer) OnDirective(d *directive.Directive) bool {
	if d == nil {
		s.logger.Warn("ignoring nil directive")
		return false
	}
	if err := d.Validate(); err != nil {
		s.logger.Warn("ignoring directive: %s", err)
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.shutdown {
		s.logger.Warn("%s: dropping %s", directive.ErrSequencerShutdown.Message, d)
		return false
	}
	return s.pre.Submit(d)
}

// Shutdown stops both stages, cancels every prepared directive still
// queued and releases all handlers. It is safe to call more than once.
func (s *Sequencer) Shutdown() {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	s.shutdown = true
	subs := s.subscriptions
	s.subscriptions = nil
	s.mu.Unlock()

	dropped := s.pre.Stop()
	s.executor.Stop()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	s.registry.Clear()

	s.logger.Info("sequencer shut down, dropped %d unprepared directives", dropped)
}

// Stats returns lifecycle counters since New.
func (s *Sequencer) Stats() metrics.Stats {
	return s.counter.Snapshot()
}

// Handlers returns the distinct registered handlers.
func (s *Sequencer) Handlers() []directive.Handler {
	return s.registry.Handlers()
}
