package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	m.SetConnectionStatus(2)
	m.IncReconnects()
	m.FrameSent()
	m.FrameReceived()
	m.SetQueueDepth(3)
	m.ObserveRequest("get_channels", "ok", time.Second)
	m.SetPending(1)
	m.AuthAttempt("success")
	m.SetAuthState(3)
	m.SetAppSessions(1, 2)

	assert.Nil(t, m.Registry())
}

func TestMetricsRecorded(t *testing.T) {
	m := New()

	m.IncReconnects()
	m.IncReconnects()
	m.ObserveRequest("transfer", "timeout", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.reconnects))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("transfer", "timeout")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "clearnode_transport_reconnects_total 2"))
}
