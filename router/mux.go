// Package router fans exception reports out to reporters subscribed by
// directive type pattern.
package router

import (
	"sync"

	"github.com/goliatone/go-directive"
)

type Subscription interface {
	Unsubscribe()
}

type Option func(m *Mux)

// WithMatcher replaces the default pattern matcher.
func WithMatcher(match func(pattern, topic string) bool) Option {
	return func(m *Mux) {
		if match != nil {
			m.match = match
		}
	}
}

// Mux is a directive.ExceptionReporter. Every subscriber whose pattern
// matches the reported type is called, in subscription order.
type Mux struct {
	mu     sync.RWMutex
	routes []*route
	match  func(pattern, topic string) bool
}

type route struct {
	mux      *Mux
	pattern  string
	reporter directive.ExceptionReporter
}

func (r *route) Unsubscribe() {
	m := r.mux
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.routes[:0:0]
	for _, x := range m.routes {
		if x != r {
			kept = append(kept, x)
		}
	}
	m.routes = kept
}

func NewMux(opts ...Option) *Mux {
	m := &Mux{match: NewMatcher()}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Subscribe routes exceptions for types matching pattern to reporter.
// A nil reporter is ignored and yields a no-op subscription.
func (m *Mux) Subscribe(pattern string, reporter directive.ExceptionReporter) Subscription {
	r := &route{mux: m, pattern: pattern, reporter: reporter}
	if directive.IsNil(reporter) {
		return r
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = append(m.routes, r)
	return r
}

// Match returns the patterns that would receive an exception for t.
func (m *Mux) Match(t directive.NamespaceAndName) []string {
	var out []string
	for _, r := range m.matching(t) {
		out = append(out, r.pattern)
	}
	return out
}

func (m *Mux) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.routes)
}

func (m *Mux) ReportException(t directive.NamespaceAndName, messageID, reason string) {
	// reporters run outside the lock so they may unsubscribe themselves
	for _, r := range m.matching(t) {
		r.reporter.ReportException(t, messageID, reason)
	}
}

func (m *Mux) matching(t directive.NamespaceAndName) []*route {
	topic := t.String()

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*route
	for _, r := range m.routes {
		if m.match(r.pattern, topic) {
			out = append(out, r)
		}
	}
	return out
}
