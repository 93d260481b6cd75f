package directive

// State is a point in a directive's lifecycle.
type State int

const (
	StateDropped State = iota
	StatePreparing
	StatePrepared
	StateQueued
	StateExecuting
	StateCompleted
	StateFailed
	StateCanceled
	// StateRejected marks a directive whose handler refused to handle it.
	StateRejected
)

var stateNames = map[State]string{
	StateDropped:   "dropped",
	StatePreparing: "preparing",
	StatePrepared:  "prepared",
	StateQueued:    "queued",
	StateExecuting: "executing",
	StateCompleted: "completed",
	StateFailed:    "failed",
	StateCanceled:  "canceled",
	StateRejected:  "rejected",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	switch s {
	case StateDropped, StateCompleted, StateFailed, StateCanceled, StateRejected:
		return true
	}
	return false
}

// States lists every lifecycle state in declaration order.
func States() []State {
	return []State{
		StateDropped,
		StatePreparing,
		StatePrepared,
		StateQueued,
		StateExecuting,
		StateCompleted,
		StateFailed,
		StateCanceled,
		StateRejected,
	}
}

// Metrics receives lifecycle observations. Implementations must not block.
type Metrics interface {
	RecordState(t NamespaceAndName, s State)
	RecordQueueDepth(stage string, depth int)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordState(NamespaceAndName, State) {}
func (NopMetrics) RecordQueueDepth(string, int)        {}
