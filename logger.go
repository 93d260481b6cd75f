package directive

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Logger is what every stage, the sequencer and the supplements log through.
// Messages are printf-style. NewGlogLogger adapts go-logger to it.
type Logger interface {
	Trace(msg string, args ...any)
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Fatal(msg string, args ...any)
	WithContext(ctx context.Context) Logger
}

// FieldsLogger is implemented by loggers that can carry key/value pairs,
// such as component or message_id.
type FieldsLogger interface {
	WithFields(map[string]any) Logger
}

type field struct {
	key   string
	value any
}

// FmtLogger writes one plain-text line per call. It is used whenever no
// logger is configured. Copies made by WithFields share the writer and its lock.
type FmtLogger struct {
	w      *lockedWriter
	fields []field
}

type lockedWriter struct {
	mu  sync.Mutex
	out io.Writer
}

func (w *lockedWriter) writeLine(line string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	io.WriteString(w.out, line+"\n")
}

// NewFmtLogger writes to out, or stdout when out is nil.
func NewFmtLogger(out io.Writer) *FmtLogger {
	if out == nil {
		out = os.Stdout
	}
	return &FmtLogger{w: &lockedWriter{out: out}}
}

func (l *FmtLogger) Trace(msg string, args ...any) { l.emit("TRACE", msg, args) }
func (l *FmtLogger) Debug(msg string, args ...any) { l.emit("DEBUG", msg, args) }
func (l *FmtLogger) Info(msg string, args ...any)  { l.emit("INFO", msg, args) }
func (l *FmtLogger) Warn(msg string, args ...any)  { l.emit("WARN", msg, args) }
func (l *FmtLogger) Error(msg string, args ...any) { l.emit("ERROR", msg, args) }

// Fatal logs at FATAL level. It does not exit.
func (l *FmtLogger) Fatal(msg string, args ...any) { l.emit("FATAL", msg, args) }

// WithContext returns l; the fallback logger has nothing to pull from ctx.
func (l *FmtLogger) WithContext(context.Context) Logger {
	if l == nil {
		return NewFmtLogger(nil)
	}
	return l
}

// WithFields returns a copy carrying fields on top of the existing ones.
// A repeated key takes the new value.
func (l *FmtLogger) WithFields(fields map[string]any) Logger {
	if l == nil {
		l = NewFmtLogger(nil)
	}
	if len(fields) == 0 {
		return l
	}

	merged := make(map[string]any, len(l.fields)+len(fields))
	for _, f := range l.fields {
		merged[f.key] = f.value
	}
	for k, v := range fields {
		merged[k] = v
	}

	next := make([]field, 0, len(merged))
	for k, v := range merged {
		next = append(next, field{key: k, value: v})
	}
	sort.Slice(next, func(i, j int) bool { return next[i].key < next[j].key })

	return &FmtLogger{w: l.w, fields: next}
}

func (l *FmtLogger) emit(level, msg string, args []any) {
	if l == nil {
		l = NewFmtLogger(nil)
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}

	var b strings.Builder
	b.WriteString(time.Now().UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(&b, " %-5s ", level)
	b.WriteString(strings.TrimSpace(msg))
	for _, f := range l.fields {
		fmt.Fprintf(&b, " %s=%v", f.key, f.value)
	}
	l.w.writeLine(b.String())
}

// NormalizeLogger returns logger, or a stdout FmtLogger when it is nil.
func NormalizeLogger(logger Logger) Logger {
	if IsNil(logger) {
		return NewFmtLogger(nil)
	}
	return logger
}

// WithLoggerFields attaches fields when logger is a FieldsLogger and returns
// it unchanged otherwise.
func WithLoggerFields(logger Logger, fields map[string]any) Logger {
	logger = NormalizeLogger(logger)
	if fl, ok := logger.(FieldsLogger); ok {
		return fl.WithFields(fields)
	}
	return logger
}
