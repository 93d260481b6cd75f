// Package metrics provides sinks for directive lifecycle transitions: an
// in-memory Counter backing Sequencer.Stats and a Prometheus exporter.
package metrics

import (
	"sync"

	"github.com/goliatone/go-directive"
)

// Stats is a point-in-time copy of a Counter.
type Stats struct {
	States     map[directive.State]uint64
	ByType     map[directive.NamespaceAndName]map[directive.State]uint64
	QueueDepth map[string]int
}

// Count returns how many directives entered s.
func (s Stats) Count(state directive.State) uint64 {
	return s.States[state]
}

// CountFor returns how many directives of type t entered s.
func (s Stats) CountFor(t directive.NamespaceAndName, state directive.State) uint64 {
	return s.ByType[t][state]
}

// Counter keeps transition totals in memory.
type Counter struct {
	mu     sync.Mutex
	states map[directive.State]uint64
	byType map[directive.NamespaceAndName]map[directive.State]uint64
	depth  map[string]int
}

func NewCounter() *Counter {
	c := &Counter{}
	c.Reset()
	return c
}

func (c *Counter) RecordState(t directive.NamespaceAndName, s directive.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[s]++
	perType, ok := c.byType[t]
	if !ok {
		perType = make(map[directive.State]uint64)
		c.byType[t] = perType
	}
	perType[s]++
}

func (c *Counter) RecordQueueDepth(stage string, depth int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.depth[stage] = depth
}

func (c *Counter) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := Stats{
		States:     make(map[directive.State]uint64, len(c.states)),
		ByType:     make(map[directive.NamespaceAndName]map[directive.State]uint64, len(c.byType)),
		QueueDepth: make(map[string]int, len(c.depth)),
	}
	for s, n := range c.states {
		out.States[s] = n
	}
	for t, perType := range c.byType {
		cp := make(map[directive.State]uint64, len(perType))
		for s, n := range perType {
			cp[s] = n
		}
		out.ByType[t] = cp
	}
	for stage, d := range c.depth {
		out.QueueDepth[stage] = d
	}
	return out
}

func (c *Counter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states = make(map[directive.State]uint64)
	c.byType = make(map[directive.NamespaceAndName]map[directive.State]uint64)
	c.depth = make(map[string]int)
}

type tee []directive.Metrics

// Tee fans every record out to each non-nil sink in order.
func Tee(sinks ...directive.Metrics) directive.Metrics {
	out := make(tee, 0, len(sinks))
	for _, s := range sinks {
		if directive.IsNil(s) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (t tee) RecordState(typ directive.NamespaceAndName, s directive.State) {
	for _, sink := range t {
		sink.RecordState(typ, s)
	}
}

func (t tee) RecordQueueDepth(stage string, depth int) {
	for _, sink := range t {
		sink.RecordQueueDepth(stage, depth)
	}
}
