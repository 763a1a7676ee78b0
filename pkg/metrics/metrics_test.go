package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorderEndpointLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	rec.EndpointStarted("publisher", "agents/alice/topic")
	rec.EndpointStarted("publisher", "agents/alice/topic")
	rec.EndpointStopped("publisher", "agents/alice/topic")
	rec.EndpointRestarted("subscriber", "agents/alice/other")

	assert.Equal(t, float64(2), testutil.ToFloat64(rec.endpointStarts.WithLabelValues("publisher", "agents/alice/topic")))
	assert.Equal(t, float64(1), testutil.ToFloat64(rec.endpointStops.WithLabelValues("publisher", "agents/alice/topic")))
	assert.Equal(t, float64(1), testutil.ToFloat64(rec.endpointRestarts.WithLabelValues("subscriber", "agents/alice/other")))
}

func TestPrometheusRecorderStateGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	rec.StateGauge("agents/alice", 4)
	assert.Equal(t, float64(4), testutil.ToFloat64(rec.operationState.WithLabelValues("agents/alice")))

	rec.StateGauge("agents/alice", 0)
	assert.Equal(t, float64(0), testutil.ToFloat64(rec.operationState.WithLabelValues("agents/alice")))
}

func TestPrometheusRecorderObservationOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	rec.ObservationOutcome("agents/alice/task", "accepted")
	rec.ObservationOutcome("agents/alice/task", "finished")
	rec.ObservationOutcome("agents/alice/task", "finished")

	assert.Equal(t, float64(1), testutil.ToFloat64(rec.observationTotal.WithLabelValues("agents/alice/task", "accepted")))
	assert.Equal(t, float64(2), testutil.ToFloat64(rec.observationTotal.WithLabelValues("agents/alice/task", "finished")))
}

func TestPrometheusRecorderObserveRoundTrip(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	rec.ObserveRoundTrip("querier", "agents/alice/query", 10*time.Millisecond)

	count := testutil.CollectAndCount(rec.roundTripDuration)
	assert.Equal(t, 1, count)
}

func TestNoopRecorderDiscardsEverything(t *testing.T) {
	var rec Recorder = NoopRecorder{}
	rec.EndpointStarted("publisher", "x")
	rec.EndpointStopped("publisher", "x")
	rec.EndpointRestarted("publisher", "x")
	rec.StateGauge("agents/alice", 1)
	rec.ObserveRoundTrip("querier", "x", time.Millisecond)
	rec.ObservationOutcome("x", "accepted")
}

func TestServerExposesMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)
	rec.EndpointStarted("publisher", "agents/alice/topic")

	srv := NewServer("127.0.0.1:0", reg)
	require.NotNil(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
}
