package push

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
	"github.com/smallbiznis/payflow/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewPusherDisabledWithoutExporter(t *testing.T) {
	assert.Nil(t, NewPusher(config.Config{}, zap.NewNop()))
	assert.Nil(t, NewPusher(config.Config{MetricsPush: config.MetricsPushConfig{Exporter: exporterPrometheusRemoteWrite}}, zap.NewNop()))
}

func TestRemoteWritePusherSendsCountersAndHistograms(t *testing.T) {
	registry := prometheus.NewRegistry()
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "job_runs_total"}, []string{"job"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "job_duration_seconds"})
	registry.MustRegister(runs, duration)
	runs.WithLabelValues("process_due_settlements").Add(2)
	duration.Observe(1.5)

	var received prompb.WriteRequest
	var authHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		decoded, err := snappy.Decode(nil, body)
		require.NoError(t, err)
		require.NoError(t, received.Unmarshal(decoded))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	pusher := NewRemoteWritePusher(server.URL, "token-1")
	require.NoError(t, pusher.Push(context.Background(), registry))

	assert.Equal(t, "Bearer token-1", authHeader)
	names := map[string]float64{}
	for _, ts := range received.Timeseries {
		for _, label := range ts.Labels {
			if label.Name == "__name__" {
				names[label.Value] = ts.Samples[0].Value
			}
		}
	}
	assert.Equal(t, float64(2), names["job_runs_total"])
	assert.Equal(t, 1.5, names["job_duration_seconds_sum"])
	assert.Equal(t, float64(1), names["job_duration_seconds_count"])
}

func TestRemoteWritePusherReportsServerErrors(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "payflow_test_total"})
	registry.MustRegister(counter)
	counter.Inc()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	err := NewRemoteWritePusher(server.URL, "").Push(context.Background(), registry)
	assert.Error(t, err)
}
