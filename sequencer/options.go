package sequencer

import (
	"github.com/goliatone/go-directive"
	"github.com/goliatone/go-directive/dialog"
)

type Option func(*Sequencer)

func WithLogger(l directive.Logger) Option {
	return func(s *Sequencer) {
		s.logger = l
	}
}

// WithExceptionReporter receives every directive no handler is registered for.
func WithExceptionReporter(r directive.ExceptionReporter) Option {
	return func(s *Sequencer) {
		s.reporter = r
	}
}

// WithMetrics adds a sink next to the in-memory counter behind Stats.
func WithMetrics(m directive.Metrics) Option {
	return func(s *Sequencer) {
		s.metrics = m
	}
}

func WithPanicLogger(p directive.PanicLogger) Option {
	return func(s *Sequencer) {
		s.panicLogger = p
	}
}

// WithTurnObserver is notified after every current turn change. Observers
// are released on Shutdown.
func WithTurnObserver(fn dialog.ChangeFunc) Option {
	return func(s *Sequencer) {
		if fn != nil {
			s.turnObservers = append(s.turnObservers, fn)
		}
	}
}
