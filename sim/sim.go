package sim

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-directive"
	"github.com/goliatone/go-directive/directivetest"
	"github.com/goliatone/go-directive/metrics"
	"github.com/goliatone/go-directive/router"
	"github.com/goliatone/go-directive/sequencer"
)

// DefaultSettle is used when a script does not set one.
const DefaultSettle = 100 * time.Millisecond

// TraceEntry is one observable event of a run.
type TraceEntry struct {
	Seq       int    `yaml:"seq" json:"seq"`
	Event     string `yaml:"event" json:"event"`
	Handler   string `yaml:"handler,omitempty" json:"handler,omitempty"`
	Type      string `yaml:"type,omitempty" json:"type,omitempty"`
	MessageID string `yaml:"message_id,omitempty" json:"message_id,omitempty"`
	Turn      string `yaml:"turn,omitempty" json:"turn,omitempty"`
	Detail    string `yaml:"detail,omitempty" json:"detail,omitempty"`
}

// Report is the result of a run.
type Report struct {
	Script        string            `yaml:"script" json:"script"`
	Trace         []TraceEntry      `yaml:"trace" json:"trace"`
	Rejected      []string          `yaml:"rejected_handlers,omitempty" json:"rejected_handlers,omitempty"`
	Counts        map[string]uint64 `yaml:"counts" json:"counts"`
	Stats         metrics.Stats     `yaml:"-" json:"-"`
	UnknownReport []string          `yaml:"unknown_reports,omitempty" json:"unknown_reports,omitempty"`
}

// Events returns the trace entries of the given event kind, in order.
func (r *Report) Events(event string) []TraceEntry {
	var out []TraceEntry
	for _, e := range r.Trace {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

type Option func(*config)

type config struct {
	logger  directive.Logger
	metrics directive.Metrics
	routes  []exceptionRoute
}

type exceptionRoute struct {
	pattern  string
	reporter directive.ExceptionReporter
}

func WithLogger(l directive.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithMetrics adds a sink, e.g. a metrics.Prometheus, to the sequencer.
func WithMetrics(m directive.Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// WithExceptionRoute forwards exceptions for directive types matching
// pattern (see router.NewMatcher) to reporter, in addition to the trace.
func WithExceptionRoute(pattern string, reporter directive.ExceptionReporter) Option {
	return func(c *config) {
		c.routes = append(c.routes, exceptionRoute{pattern: pattern, reporter: reporter})
	}
}

type trace struct {
	mu      sync.Mutex
	entries []TraceEntry
}

func (t *trace) add(e TraceEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e.Seq = len(t.entries)
	t.entries = append(t.entries, e)
}

func (t *trace) all() []TraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TraceEntry(nil), t.entries...)
}

// Run plays script against a fresh Sequencer and returns what happened.
func Run(ctx context.Context, script *Script, opts ...Option) (*Report, error) {
	if err := script.Validate(); err != nil {
		return nil, err
	}

	cfg := &config{}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	logger := directive.NormalizeLogger(cfg.logger)

	tr := &trace{}
	report := &Report{Script: script.Name}

	exceptions := router.NewMux()
	exceptions.Subscribe("#", directive.ExceptionReporterFunc(
		func(t directive.NamespaceAndName, messageID, reason string) {
			tr.add(TraceEntry{Event: "exception", Type: t.String(), MessageID: messageID, Detail: reason})
		},
	))
	for _, r := range cfg.routes {
		exceptions.Subscribe(r.pattern, r.reporter)
	}

	seq := sequencer.New(
		sequencer.WithLogger(logger),
		sequencer.WithMetrics(cfg.metrics),
		sequencer.WithExceptionReporter(exceptions),
		sequencer.WithTurnObserver(func(previous, current string) {
			tr.add(TraceEntry{Event: "turn", Turn: current, Detail: previous})
		}),
	)

	var timers timerSet
	defer timers.stopAll()

	handlers := make([]*simHandler, 0, len(script.Handlers))
	for _, spec := range script.Handlers {
		h := newSimHandler(spec, tr, &timers)
		if !seq.AddHandler(h) {
			report.Rejected = append(report.Rejected, spec.Name)
			continue
		}
		handlers = append(handlers, h)
	}

	err := play(ctx, seq, script.Steps, handlers, report, logger)

	settle := script.Settle
	if settle <= 0 {
		settle = DefaultSettle
	}
	if err == nil {
		err = wait(ctx, settle)
	}

	seq.Shutdown()
	timers.stopAll()

	report.Trace = tr.all()
	report.Stats = seq.Stats()
	report.Counts = make(map[string]uint64, len(report.Stats.States))
	for state, n := range report.Stats.States {
		report.Counts[state.String()] = n
	}
	return report, err
}

func play(ctx context.Context, seq *sequencer.Sequencer, steps []Step, handlers []*simHandler, report *Report, logger directive.Logger) error {
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch step.kind() {
		case "turn":
			seq.SetCurrentTurn(*step.Turn)
		case "directive":
			d := step.Directive
			messageID := d.MessageID
			if messageID == "" {
				messageID = uuid.NewString()
			}
			seq.OnDirective(directive.New(d.Namespace, d.Name, messageID,
				directive.WithDialogRequestID(d.DialogRequestID),
				directive.WithPayload([]byte(d.Payload)),
			))
		case "report":
			r := step.Report
			if !reportOutcome(handlers, r) {
				logger.Warn("report for unknown message id %s", r.MessageID)
				report.UnknownReport = append(report.UnknownReport, r.MessageID)
			}
		case "wait":
			if err := wait(ctx, step.Wait); err != nil {
				return err
			}
		}
	}
	return nil
}

func reportOutcome(handlers []*simHandler, r *ReportSpec) bool {
	for _, h := range handlers {
		if r.Outcome == OutcomeFailure {
			if h.Fail(r.MessageID, r.Reason) {
				return true
			}
			continue
		}
		if h.Complete(r.MessageID) {
			return true
		}
	}
	return false
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// simHandler records to the shared trace and finishes directives with the
// outcome its HandlerSpec names.
type simHandler struct {
	*directivetest.RecordingHandler
	spec   HandlerSpec
	trace  *trace
	timers *timerSet
}

func newSimHandler(spec HandlerSpec, tr *trace, timers *timerSet) *simHandler {
	h := &simHandler{spec: spec, trace: tr, timers: timers}
	h.RecordingHandler = directivetest.NewRecordingHandler(spec.configuration(),
		directivetest.WithHandleHook(h.onHandle))
	return h
}

func (h *simHandler) PreHandle(d *directive.Directive, result directive.ResultHandle) {
	h.record("prehandle", d)
	h.RecordingHandler.PreHandle(d, result)
}

func (h *simHandler) Cancel(messageID string) {
	if ev, ok := h.lookup(messageID); ok {
		h.record("cancel", ev)
	}
	h.RecordingHandler.Cancel(messageID)
}

func (h *simHandler) onHandle(_ *directivetest.RecordingHandler, ev directivetest.Event) bool {
	h.record("handle", ev.Directive)

	switch h.spec.Outcome {
	case OutcomeReject:
		return false
	case OutcomeSuccess, OutcomeFailure:
		result := ev.Result
		finish := func() {
			if h.spec.Outcome == OutcomeFailure {
				result.ReportFailure(h.spec.Reason)
				return
			}
			result.ReportSuccess()
		}
		if h.spec.Delay <= 0 {
			finish()
		} else {
			h.timers.after(h.spec.Delay, finish)
		}
	}
	return true
}

func (h *simHandler) lookup(messageID string) (*directive.Directive, bool) {
	for _, ev := range h.Events() {
		if ev.Kind == directivetest.KindPreHandle && ev.MessageID() == messageID {
			return ev.Directive, true
		}
	}
	return nil, false
}

func (h *simHandler) record(event string, d *directive.Directive) {
	h.trace.add(TraceEntry{
		Event:     event,
		Handler:   h.spec.Name,
		Type:      d.Type().String(),
		MessageID: d.MessageID(),
		Turn:      d.DialogRequestID(),
	})
}

// timerSet tracks delayed outcome reports so none outlive the run.
type timerSet struct {
	mu      sync.Mutex
	timers  []*time.Timer
	stopped bool
}

func (t *timerSet) after(d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.timers = append(t.timers, time.AfterFunc(d, fn))
}

func (t *timerSet) stopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	for _, timer := range t.timers {
		timer.Stop()
	}
	t.timers = nil
}
