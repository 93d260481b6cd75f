package pipeline

import (
	"github.com/goliatone/go-directive"
)

const (
	StagePreHandle = "pre_handle"
	StageHandle    = "handle"
)

type options struct {
	logger      directive.Logger
	metrics     directive.Metrics
	panicLogger directive.PanicLogger
	reporter    directive.ExceptionReporter
}

// Option configures a pipeline stage.
type Option func(*options)

func WithLogger(l directive.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func WithMetrics(m directive.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func WithPanicLogger(p directive.PanicLogger) Option {
	return func(o *options) {
		o.panicLogger = p
	}
}

// WithExceptionReporter receives unroutable directives. Only the pre-handle
// stage uses it.
func WithExceptionReporter(r directive.ExceptionReporter) Option {
	return func(o *options) {
		o.reporter = r
	}
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	o.logger = directive.NormalizeLogger(o.logger)
	if directive.IsNil(o.metrics) {
		o.metrics = directive.NopMetrics{}
	}
	if o.panicLogger == nil {
		o.panicLogger = directive.LoggerPanicLogger(o.logger)
	}
	if directive.IsNil(o.reporter) {
		logger := o.logger
		o.reporter = directive.ExceptionReporterFunc(func(t directive.NamespaceAndName, messageID, reason string) {
			logger.Warn("unhandled directive type=%s message_id=%s reason=%s", t, messageID, reason)
		})
	}
	return o
}

func directiveFields(d *directive.Directive) map[string]any {
	return map[string]any{
		"message_id":        d.MessageID(),
		"type":              d.Type().String(),
		"dialog_request_id": d.DialogRequestID(),
	}
}
