package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SetState("connected", []string{"connected"})
		m.ReconnectAttempt()
		m.ReconnectExhausted()
		m.HeartbeatTimeout("soft")
		m.LineParsed(true)
		m.ControlLine("HEARTBEAT")
		m.LineSent()
		m.CommandRejected("OP")
	})
}

func TestSetState(t *testing.T) {
	m := New()
	all := []string{"disconnected", "connecting", "connected"}

	m.SetState("connecting", all)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.State.WithLabelValues("connecting")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.State.WithLabelValues("disconnected")))

	m.SetState("connected", all)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.State.WithLabelValues("connecting")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.State.WithLabelValues("connected")))
}

func TestRecorders(t *testing.T) {
	m := New()

	m.LineParsed(false)
	m.LineParsed(true)
	m.CommandRejected("")
	m.CommandRejected("MODE")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LinesParsed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LinesMalformed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsRejected.WithLabelValues("invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsRejected.WithLabelValues("MODE")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ReconnectAttempt()
	m.HeartbeatTimeout("hard")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "irctunnel_reconnect_attempts_total 1")
	assert.Contains(t, string(body), `irctunnel_heartbeat_timeouts_total{kind="hard"} 1`)
}
