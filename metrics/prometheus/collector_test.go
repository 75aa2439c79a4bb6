package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RecordCommand(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.RecordCommand("/^echo (.*)/", true, 2*time.Millisecond)
	c.RecordCommand("/^echo (.*)/", true, time.Millisecond)
	c.RecordCommand("", false, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.commands.WithLabelValues("/^echo (.*)/", "known")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.commands.WithLabelValues("", "unknown")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.commandDuration))
}

func TestCollector_RecordConnectionAndAuthentication(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.RecordConnection(true, "accepted")
	c.RecordConnection(false, "per_ip_limit_reached")
	c.RecordAuthentication(true, "alice")
	c.RecordAuthentication(false, "alice")
	c.RecordAuthentication(false, "mallory")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.connections.WithLabelValues("accepted", "accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.connections.WithLabelValues("rejected", "per_ip_limit_reached")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.authentications.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.authentications.WithLabelValues("failure")))
}

func TestCollector_RecordBytes(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.RecordBytes("in", 10)
	c.RecordBytes("in", 5)
	c.RecordBytes("out", 7)

	assert.Equal(t, 15.0, testutil.ToFloat64(c.bytes.WithLabelValues("in")))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.bytes.WithLabelValues("out")))
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)
	c.RecordBytes("out", 3)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `telnet_bytes_total{direction="out"} 3`))
}
