package directive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard(t *testing.T) {
	var gotName string
	var gotErr any
	var gotFields map[string]any
	logger := func(funcName string, err any, _ []byte, fields ...map[string]any) {
		gotName = funcName
		gotErr = err
		if len(fields) > 0 {
			gotFields = fields[0]
		}
	}

	panicked := Guard(logger, "Handle", map[string]any{"message_id": "m1"}, func() {
		panic("boom")
	})
	assert.True(t, panicked)
	assert.Equal(t, "Handle", gotName)
	assert.Equal(t, "boom", gotErr)
	assert.Equal(t, "m1", gotFields["message_id"])

	ran := false
	assert.False(t, Guard(logger, "Handle", nil, func() { ran = true }))
	assert.True(t, ran)
}

func TestLoggerPanicLogger(t *testing.T) {
	buf := &syncBuffer{}
	logger := NewFmtLogger(buf)

	Guard(LoggerPanicLogger(logger), "PreHandle", map[string]any{"type": "A:B"}, func() {
		panic("bad payload")
	})

	out := buf.String()
	assert.Contains(t, out, "ERROR")
	assert.Contains(t, out, "recovered from panic in PreHandle: bad payload")
	assert.Contains(t, out, "type=A:B")
}

func TestGetGoroutineID(t *testing.T) {
	here := GetGoroutineID()
	require.NotZero(t, here)
	assert.Equal(t, here, GetGoroutineID())

	other := make(chan uint64)
	go func() { other <- GetGoroutineID() }()
	assert.NotEqual(t, here, <-other)
}
