// Package directivetest provides a recording Handler for exercising the
// sequencer in tests and simulations.
package directivetest

import (
	"sync"
	"time"

	"github.com/goliatone/go-directive"
)

// Kind is the handler callback an Event was recorded for.
type Kind int

const (
	KindPreHandle Kind = iota
	KindHandle
	KindCancel
)

func (k Kind) String() string {
	switch k {
	case KindPreHandle:
		return "prehandle"
	case KindHandle:
		return "handle"
	case KindCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Event is one recorded callback.
type Event struct {
	Kind      Kind
	Directive *directive.Directive
	Result    directive.ResultHandle
	At        time.Time
	Seq       int
}

func (e Event) MessageID() string {
	if e.Directive == nil {
		return ""
	}
	return e.Directive.MessageID()
}

// HandleHook runs inside Handle after the event is recorded. Its return
// value is what Handle returns.
type HandleHook func(h *RecordingHandler, ev Event) bool

// RecordingHandler records every callback in order.
type RecordingHandler struct {
	config directive.HandlerConfiguration
	hook   HandleHook

	mu         sync.Mutex
	directives map[string]*directive.Directive
	results    map[string]directive.ResultHandle
	events     []Event
	cursor     int
	notify     chan struct{}
}

// Option configures a RecordingHandler.
type Option func(*RecordingHandler)

func WithHandleHook(hook HandleHook) Option {
	return func(h *RecordingHandler) {
		h.hook = hook
	}
}

// AutoComplete reports success from inside Handle.
func AutoComplete() Option {
	return WithHandleHook(func(h *RecordingHandler, ev Event) bool {
		if ev.Result != nil {
			ev.Result.ReportSuccess()
		}
		return true
	})
}

func NewRecordingHandler(config directive.HandlerConfiguration, opts ...Option) *RecordingHandler {
	h := &RecordingHandler{
		config:     config,
		directives: make(map[string]*directive.Directive),
		results:    make(map[string]directive.ResultHandle),
		notify:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

func (h *RecordingHandler) Configuration() directive.HandlerConfiguration {
	return h.config
}

func (h *RecordingHandler) PreHandle(d *directive.Directive, result directive.ResultHandle) {
	h.mu.Lock()
	h.directives[d.MessageID()] = d
	h.results[d.MessageID()] = result
	h.mu.Unlock()
	h.record(KindPreHandle, d, result)
}

func (h *RecordingHandler) Handle(messageID string) bool {
	h.mu.Lock()
	d, ok := h.directives[messageID]
	result := h.results[messageID]
	h.mu.Unlock()
	if !ok {
		return false
	}

	ev := h.record(KindHandle, d, result)
	if h.hook != nil {
		return h.hook(h, ev)
	}
	return true
}

func (h *RecordingHandler) Cancel(messageID string) {
	h.mu.Lock()
	d, ok := h.directives[messageID]
	result := h.results[messageID]
	delete(h.directives, messageID)
	delete(h.results, messageID)
	h.mu.Unlock()
	if !ok {
		return
	}
	h.record(KindCancel, d, result)
}

// Complete reports success for messageID.
func (h *RecordingHandler) Complete(messageID string) bool {
	result, ok := h.Result(messageID)
	if !ok {
		return false
	}
	result.ReportSuccess()
	return true
}

// Fail reports failure for messageID.
func (h *RecordingHandler) Fail(messageID, reason string) bool {
	result, ok := h.Result(messageID)
	if !ok {
		return false
	}
	result.ReportFailure(reason)
	return true
}

func (h *RecordingHandler) Result(messageID string) (directive.ResultHandle, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.results[messageID]
	return r, ok
}

// Events returns a copy of everything recorded so far.
func (h *RecordingHandler) Events() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Event(nil), h.events...)
}

// Count returns how many events of kind were recorded.
func (h *RecordingHandler) Count(kind Kind) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, ev := range h.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// WaitForNext returns the next event not yet consumed by WaitForNext, or
// false on timeout.
func (h *RecordingHandler) WaitForNext(timeout time.Duration) (Event, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		h.mu.Lock()
		if h.cursor < len(h.events) {
			ev := h.events[h.cursor]
			h.cursor++
			h.mu.Unlock()
			return ev, true
		}
		h.mu.Unlock()

		select {
		case <-h.notify:
		case <-timer.C:
			return Event{}, false
		}
	}
}

// WaitFor consumes events until one matches kind and messageID.
func (h *RecordingHandler) WaitFor(kind Kind, messageID string, timeout time.Duration) (Event, bool) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Event{}, false
		}
		ev, ok := h.WaitForNext(remaining)
		if !ok {
			return Event{}, false
		}
		if ev.Kind == kind && ev.MessageID() == messageID {
			return ev, true
		}
	}
}

func (h *RecordingHandler) record(kind Kind, d *directive.Directive, result directive.ResultHandle) Event {
	h.mu.Lock()
	ev := Event{
		Kind:      kind,
		Directive: d,
		Result:    result,
		At:        time.Now(),
		Seq:       len(h.events),
	}
	h.events = append(h.events, ev)
	h.mu.Unlock()

	select {
	case h.notify <- struct{}{}:
	default:
	}
	return ev
}
