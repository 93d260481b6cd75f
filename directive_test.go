package directive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_CopiesPayload(t *testing.T) {
	payload := []byte(`{"token":"abc"}`)
	d := New("SpeechSynthesizer", "Speak", "m1",
		WithDialogRequestID("T1"),
		WithPayload(payload),
		nil,
	)

	payload[0] = 'X'
	assert.Equal(t, `{"token":"abc"}`, string(d.Payload()))

	got := d.Payload()
	got[0] = 'Y'
	assert.Equal(t, `{"token":"abc"}`, string(d.Payload()))

	assert.Equal(t, "m1", d.MessageID())
	assert.Equal(t, "T1", d.DialogRequestID())
	assert.Equal(t, NewType("SpeechSynthesizer", "Speak"), d.Type())
	assert.Equal(t, "SpeechSynthesizer:Speak", d.Type().String())
	assert.Nil(t, d.Attachment())
}

func TestDirective_Validate(t *testing.T) {
	require.NoError(t, New("Alerts", "SetAlert", "m1").Validate())

	err := New("", "SetAlert", " ").Validate()
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeInvalidDirective))

	var d *Directive
	assert.True(t, HasCode(d.Validate(), ErrCodeInvalidDirective))
	assert.Equal(t, "<nil>", d.String())
}

func TestNamespaceAndName_IsZero(t *testing.T) {
	assert.True(t, NamespaceAndName{}.IsZero())
	assert.False(t, NewType("A", "").IsZero())
}

func TestIsNil(t *testing.T) {
	var p *Directive
	var fn ExceptionReporterFunc
	var m Metrics

	assert.True(t, IsNil(nil))
	assert.True(t, IsNil(p))
	assert.True(t, IsNil(fn))
	assert.True(t, IsNil(m))
	assert.False(t, IsNil(NopMetrics{}))
	assert.False(t, IsNil(New("A", "B", "m")))
}

func TestParseBlockingPolicy(t *testing.T) {
	for _, in := range []string{"blocking", "BLOCKING", " Blocking "} {
		p, err := ParseBlockingPolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, Blocking, p)
	}
	for _, in := range []string{"non_blocking", "non-blocking", "NonBlocking"} {
		p, err := ParseBlockingPolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, NonBlocking, p)
	}

	_, err := ParseBlockingPolicy("sometimes")
	assert.True(t, HasCode(err, ErrCodeInvalidPolicy))
}

func TestBlockingPolicy_Text(t *testing.T) {
	text, err := Blocking.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "BLOCKING", string(text))

	var p BlockingPolicy
	require.NoError(t, p.UnmarshalText([]byte("blocking")))
	assert.Equal(t, Blocking, p)
	assert.Error(t, p.UnmarshalText([]byte("?")))
	assert.Equal(t, Blocking, p, "failed unmarshal leaves the value alone")
	assert.Equal(t, "UNKNOWN", BlockingPolicy(9).String())
}

func TestHandlerConfiguration_TypesAndClone(t *testing.T) {
	config := HandlerConfiguration{
		NewType("Speaker", "SetVolume"):      NonBlocking,
		NewType("Alerts", "SetAlert"):        NonBlocking,
		NewType("Alerts", "DeleteAlert"):     Blocking,
		NewType("AudioPlayer", "ClearQueue"): NonBlocking,
	}
	assert.Equal(t, []NamespaceAndName{
		NewType("Alerts", "DeleteAlert"),
		NewType("Alerts", "SetAlert"),
		NewType("AudioPlayer", "ClearQueue"),
		NewType("Speaker", "SetVolume"),
	}, config.Types())

	clone := config.Clone()
	delete(config, NewType("Speaker", "SetVolume"))
	assert.Len(t, clone, 4)
	assert.Nil(t, HandlerConfiguration(nil).Clone())
}

func TestState(t *testing.T) {
	assert.Equal(t, "canceled", StateCanceled.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.True(t, StateRejected.Terminal())
	assert.False(t, StateExecuting.Terminal())
	assert.Len(t, States(), 9)
}

func TestNewError_ClonesSentinel(t *testing.T) {
	err := NewError(ErrRegistrationConflict, "SetAlert is taken", nil, map[string]any{"type": "Alerts:SetAlert"})

	assert.Equal(t, ErrCodeRegistrationConflict, ErrorCode(err))
	assert.Equal(t, "SetAlert is taken", err.Message)
	assert.Equal(t, "directive type already owned by another handler", ErrRegistrationConflict.Message)

	assert.Equal(t, "", ErrorCode(assert.AnError))
	assert.False(t, HasCode(nil, ErrCodeRegistrationConflict))
}
