package directive

// Handler is a capability that owns one or more directive types.
//
// PreHandle is called once per directive, in arrival order, before the
// directive is eligible for execution. It must return promptly. Handle starts
// execution of a previously pre-handled directive and returns false if the
// handler does not recognize the message id. Cancel tells the handler a
// pre-handled directive will never be handled.
//
// Handlers are compared by identity, so implementations must be comparable;
// pointer receivers are the usual choice.
type Handler interface {
	Configuration() HandlerConfiguration
	PreHandle(d *Directive, result ResultHandle)
	Handle(messageID string) bool
	Cancel(messageID string)
}

// ResultHandle is handed to a handler at pre-handle time. Exactly one report
// counts; anything after the first, or after the directive's turn was
// invalidated, is ignored.
type ResultHandle interface {
	ReportSuccess()
	ReportFailure(reason string)
}

// ExceptionReporter receives directives that could not be routed.
type ExceptionReporter interface {
	ReportException(t NamespaceAndName, messageID, reason string)
}

// ExceptionReporterFunc is an adapter to use a function as an ExceptionReporter.
type ExceptionReporterFunc func(t NamespaceAndName, messageID, reason string)

// ReportException calls the underlying function
func (f ExceptionReporterFunc) ReportException(t NamespaceAndName, messageID, reason string) {
	f(t, messageID, reason)
}

// HandlerFuncs adapts plain functions into a Handler. Use it by pointer.
type HandlerFuncs struct {
	Config        HandlerConfiguration
	PreHandleFunc func(d *Directive, result ResultHandle)
	HandleFunc    func(messageID string) bool
	CancelFunc    func(messageID string)
}

func (h *HandlerFuncs) Configuration() HandlerConfiguration {
	return h.Config
}

func (h *HandlerFuncs) PreHandle(d *Directive, result ResultHandle) {
	if h.PreHandleFunc != nil {
		h.PreHandleFunc(d, result)
	}
}

func (h *HandlerFuncs) Handle(messageID string) bool {
	if h.HandleFunc == nil {
		return true
	}
	return h.HandleFunc(messageID)
}

func (h *HandlerFuncs) Cancel(messageID string) {
	if h.CancelFunc != nil {
		h.CancelFunc(messageID)
	}
}
