package directive

import (
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
)

type PanicLogger func(funcName string, err any, stack []byte, fields ...map[string]any)

// Guard runs fn and reports whether it panicked. A recovered panic is passed
// to logger; the caller decides what a panic means for the directive.
func Guard(logger PanicLogger, funcName string, fields map[string]any, fn func()) (panicked bool) {
	if logger == nil {
		logger = DefaultPanicLogger
	}
	defer func() {
		if err := recover(); err != nil {
			panicked = true
			fullStack := make([]byte, 8096)
			n := runtime.Stack(fullStack, false)
			logger(funcName, err, cleanStackTrace(fullStack[:n]), fields)
		}
	}()
	fn()
	return false
}

// LoggerPanicLogger routes recovered panics to a Logger at error level.
func LoggerPanicLogger(logger Logger) PanicLogger {
	logger = NormalizeLogger(logger)
	return func(funcName string, err any, stack []byte, fields ...map[string]any) {
		l := logger
		if len(fields) > 0 && fields[0] != nil {
			l = WithLoggerFields(l, fields[0])
		}
		l.Error("recovered from panic in %s: %v\n%s", funcName, err, stack)
	}
}

func DefaultPanicLogger(funcName string, err any, stack []byte, fields ...map[string]any) {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[FATAL] recovered from panic in %s\n", funcName))

	sb.WriteString(fmt.Sprintf("Error: %v\n", err))

	if errTyped, ok := err.(error); ok {
		sb.WriteString(fmt.Sprintf("Error Type: %T\n", errTyped))
	} else {
		sb.WriteString(fmt.Sprintf("Error Type: %T\n", err))
	}

	if len(fields) > 0 && fields[0] != nil {
		sb.WriteString("Context:\n")

		// sort keys for consistent output
		keys := make([]string, 0, len(fields[0]))
		for k := range fields[0] {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", k, fields[0][k]))
		}
	}

	sb.WriteString("Stack Trace:\n")
	sb.Write(stack)

	NewFmtLogger(nil).Error(sb.String())
}

func cleanStackTrace(stack []byte) []byte {
	lines := strings.Split(string(stack), "\n")

	// we find the index after the panic line
	panicLineIndex := -1
	for i, line := range lines {
		if strings.Contains(line, "panic(") {
			panicLineIndex = i
			break
		}
	}

	// then remove everything before it
	if panicLineIndex >= 0 && panicLineIndex+2 < len(lines) {
		// remove the panic() call line & file reference line
		lines = lines[panicLineIndex+2:]
	}

	return []byte(strings.Join(lines, "\n"))
}

// GetGoroutineID returns the id of the calling goroutine.
func GetGoroutineID() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	idField := strings.Fields(strings.TrimPrefix(string(buf), "goroutine "))[0]
	id, _ := strconv.ParseUint(idField, 10, 64)
	return id
}
