package service

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthzHandle(t *testing.T) {
	h := &HealthzServer{log: log.NewLogger(log.DiscardHandler())}
	rec := httptest.NewRecorder()
	h.Handle(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","running":false}`, rec.Body.String())
}

func TestHealthzRunning(t *testing.T) {
	h := &HealthzServer{log: log.NewLogger(log.DiscardHandler())}
	h.SetRunning(func() bool { return true })

	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok","running":true}`, string(body))
}

func TestShutdownBeforeStart(t *testing.T) {
	s := New(Config{Log: log.NewLogger(log.DiscardHandler())})
	require.NoError(t, s.Healthz.Shutdown())
	require.NoError(t, s.Metrics.Shutdown())
}

func TestMetricsGatherer(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "op_reporter_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	m := &MetricsServer{Gatherer: reg}
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "op_reporter_test_total 1")
}

func TestNewDefaults(t *testing.T) {
	s := New(Config{})
	assert.Equal(t, "0.0.0.0:8080", s.healthzAddr)
	assert.Equal(t, "0.0.0.0:7300", s.metricsAddr)
}
