package directive

import (
	"sync"
)

// Outcome is the sequencer side of a ResultHandle. It records the first
// terminal report and closes Done.
type Outcome struct {
	mu        sync.RWMutex
	messageID string
	done      chan struct{}
	reported  bool
	failed    bool
	reason    string
	abandoned bool

	live     func() bool
	onReport func(o *Outcome)
	onIgnore func(o *Outcome, failed bool, reason string)
}

// OutcomeOption configures an Outcome.
type OutcomeOption func(*Outcome)

// WithLiveness installs a predicate checked on every report; once it returns
// false the report is ignored.
func WithLiveness(fn func() bool) OutcomeOption {
	return func(o *Outcome) {
		o.live = fn
	}
}

// WithReportHook is called, outside any lock, after a report is accepted.
func WithReportHook(fn func(o *Outcome)) OutcomeOption {
	return func(o *Outcome) {
		o.onReport = fn
	}
}

// WithIgnoreHook is called, outside any lock, when a report is discarded.
func WithIgnoreHook(fn func(o *Outcome, failed bool, reason string)) OutcomeOption {
	return func(o *Outcome) {
		o.onIgnore = fn
	}
}

func NewOutcome(messageID string, opts ...OutcomeOption) *Outcome {
	o := &Outcome{
		messageID: messageID,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

func (o *Outcome) MessageID() string {
	return o.messageID
}

func (o *Outcome) ReportSuccess() {
	o.report(false, "")
}

func (o *Outcome) ReportFailure(reason string) {
	o.report(true, reason)
}

func (o *Outcome) report(failed bool, reason string) {
	live := o.live == nil || o.live()

	o.mu.Lock()
	if o.reported || o.abandoned || !live {
		o.mu.Unlock()
		if o.onIgnore != nil {
			o.onIgnore(o, failed, reason)
		}
		return
	}
	o.reported = true
	o.failed = failed
	o.reason = reason
	close(o.done)
	o.mu.Unlock()

	if o.onReport != nil {
		o.onReport(o)
	}
}

// Done is closed once a report has been accepted.
func (o *Outcome) Done() <-chan struct{} {
	return o.done
}

// Result returns whether a report was accepted and, if so, its content.
func (o *Outcome) Result() (reported, failed bool, reason string) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.reported, o.failed, o.reason
}

// Abandon stops the outcome from accepting reports. It returns false if a
// report was already accepted.
func (o *Outcome) Abandon() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.reported {
		return false
	}
	o.abandoned = true
	return true
}

func (o *Outcome) Abandoned() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.abandoned
}
