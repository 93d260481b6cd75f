package sim

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-directive"
	"github.com/goliatone/go-directive/metrics"
)

func messageIDs(entries []TraceEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.MessageID)
	}
	return out
}

func TestLoadFile_BargeInScript(t *testing.T) {
	script, err := LoadFile("testdata/barge_in.yaml")
	require.NoError(t, err)

	assert.Equal(t, "barge-in", script.Name)
	require.Len(t, script.Handlers, 2)
	assert.Equal(t, directive.Blocking, script.Handlers[1].Types[0].Policy)
	assert.Equal(t, 50*time.Millisecond, script.Settle)
	require.Len(t, script.Steps, 9)
	assert.Equal(t, 30*time.Millisecond, script.Steps[4].Wait)
}

func TestRun_BargeInScript(t *testing.T) {
	script, err := LoadFile("testdata/barge_in.yaml")
	require.NoError(t, err)

	counter := metrics.NewCounter()
	report, err := Run(context.Background(), script, WithMetrics(counter))
	require.NoError(t, err)

	assert.Equal(t, []string{"A1", "B1", "A2", "A3"}, messageIDs(report.Events("prehandle")))
	assert.Equal(t, []string{"A1", "B1", "A3"}, messageIDs(report.Events("handle")))
	assert.Equal(t, []string{"A2"}, messageIDs(report.Events("cancel")))
	assert.Empty(t, report.Events("exception"))

	turns := report.Events("turn")
	require.Len(t, turns, 2)
	assert.Equal(t, "T2", turns[1].Turn)

	speak := directive.NewType("SpeechSynthesizer", "Speak")
	assert.Equal(t, uint64(0), report.Stats.CountFor(speak, directive.StateCompleted))
	assert.Equal(t, uint64(1), report.Stats.Count(directive.StateCanceled))
	assert.Equal(t, uint64(1), report.Counts["canceled"])

	// the extra sink saw the same transitions
	assert.Equal(t, report.Stats.Count(directive.StatePrepared), counter.Snapshot().Count(directive.StatePrepared))
}

func TestRun_UnhandledAndConflictingHandlers(t *testing.T) {
	script, err := Load(strings.NewReader(`
name: conflicts
handlers:
  - name: first
    types:
      - {namespace: Alerts, name: SetAlert, policy: non_blocking}
    outcome: success
  - name: second
    types:
      - {namespace: Alerts, name: SetAlert, policy: blocking}
      - {namespace: Alerts, name: DeleteAlert}
steps:
  - directive: {namespace: Alerts, name: DeleteAlert, message_id: D1}
  - directive: {namespace: Alerts, name: SetAlert, message_id: S1}
`))
	require.NoError(t, err)

	var routed []string
	var mu sync.Mutex
	report, err := Run(context.Background(), script,
		WithExceptionRoute("Alerts:*", directive.ExceptionReporterFunc(
			func(t directive.NamespaceAndName, messageID, _ string) {
				mu.Lock()
				defer mu.Unlock()
				routed = append(routed, t.String()+"/"+messageID)
			},
		)),
		WithExceptionRoute("Speaker:#", directive.ExceptionReporterFunc(
			func(directive.NamespaceAndName, string, string) {
				t.Errorf("Speaker exceptions should not be routed")
			},
		)),
	)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"second"}, report.Rejected)
	assert.Equal(t, []string{"D1"}, messageIDs(report.Events("exception")))
	assert.Equal(t, []string{"Alerts:DeleteAlert/D1"}, routed)

	handled := report.Events("handle")
	require.Len(t, handled, 1)
	assert.Equal(t, "first", handled[0].Handler)
	assert.Equal(t, uint64(1), report.Counts["completed"])
}

func TestRun_DelayedFailureReleasesBlockingDirective(t *testing.T) {
	script, err := Load(strings.NewReader(`
name: delayed
settle: 100ms
handlers:
  - name: speech
    types:
      - {namespace: SpeechSynthesizer, name: Speak, policy: blocking}
    outcome: failure
    reason: tts unavailable
    delay: 20ms
  - name: speaker
    types:
      - {namespace: Speaker, name: SetVolume}
    outcome: reject
steps:
  - directive: {namespace: SpeechSynthesizer, name: Speak}
  - directive: {namespace: Speaker, name: SetVolume}
`))
	require.NoError(t, err)

	report, err := Run(context.Background(), script)
	require.NoError(t, err)

	handled := report.Events("handle")
	require.Len(t, handled, 2)
	assert.Equal(t, "speech", handled[0].Handler)
	assert.Equal(t, "speaker", handled[1].Handler)
	assert.NotEmpty(t, handled[0].MessageID, "missing message ids are generated")
	assert.Equal(t, uint64(1), report.Counts["failed"])
	assert.Equal(t, uint64(1), report.Counts["rejected"])
}

func TestRun_UnknownReportIsRecorded(t *testing.T) {
	script := &Script{
		Name: "unknown",
		Handlers: []HandlerSpec{{
			Name:  "speech",
			Types: []TypeSpec{{Namespace: "SpeechSynthesizer", Name: "Speak"}},
		}},
		Steps: []Step{{Report: &ReportSpec{MessageID: "missing", Outcome: OutcomeSuccess}}},
	}

	report, err := Run(context.Background(), script)
	require.NoError(t, err)
	assert.Equal(t, []string{"missing"}, report.UnknownReport)
}

func TestRun_ContextCanceled(t *testing.T) {
	script := &Script{
		Name: "slow",
		Handlers: []HandlerSpec{{
			Name:  "speech",
			Types: []TypeSpec{{Namespace: "SpeechSynthesizer", Name: "Speak"}},
		}},
		Steps: []Step{{Wait: time.Hour}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Run(ctx, script)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoad_ReportsAllProblems(t *testing.T) {
	_, err := Load(strings.NewReader(`
name: broken
handlers:
  - name: ""
    types: []
    outcome: maybe
steps:
  - {}
  - report: {outcome: success}
`))
	require.Error(t, err)
	assert.True(t, directive.HasCode(err, ErrCodeInvalidScript))
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	_, err := Load(strings.NewReader(`
name: typo
handlerz: []
`))
	require.Error(t, err)
	assert.True(t, directive.HasCode(err, ErrCodeInvalidScript))
}

func TestLoad_RejectsUnknownPolicy(t *testing.T) {
	_, err := Load(strings.NewReader(`
handlers:
  - name: h
    types:
      - {namespace: A, name: B, policy: sometimes}
`))
	require.Error(t, err)
}
