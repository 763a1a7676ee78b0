// Package metrics provides Prometheus-based metrics recording for the
// capability lifecycle and observation protocol (C15).
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder collects the metrics an Agent's run loop and endpoints emit.
// Kept as an interface, mirroring the teacher's Recorder/PrometheusRecorder
// split, so tests can swap in a no-op implementation without a live
// registry.
type Recorder interface {
	EndpointStarted(kind, selector string)
	EndpointStopped(kind, selector string)
	EndpointRestarted(kind, selector string)
	StateGauge(fqName string, state int32)
	ObserveRoundTrip(kind, selector string, duration time.Duration)
	ObservationOutcome(selector, outcome string)
}

// PrometheusRecorder implements Recorder using client_golang.
type PrometheusRecorder struct {
	endpointStarts    *prometheus.CounterVec
	endpointStops     *prometheus.CounterVec
	endpointRestarts  *prometheus.CounterVec
	operationState    *prometheus.GaugeVec
	roundTripDuration *prometheus.HistogramVec
	observationTotal  *prometheus.CounterVec
}

// NewPrometheusRecorder registers and returns a recorder. reg is typically
// prometheus.DefaultRegisterer; passing a fresh prometheus.NewRegistry()
// keeps tests isolated from the global registry.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		endpointStarts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dimas_endpoint_starts_total",
				Help: "Total number of endpoint reconciliations to the Active state by capability kind",
			},
			[]string{"kind", "selector"},
		),
		endpointStops: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dimas_endpoint_stops_total",
				Help: "Total number of endpoint reconciliations to the Created state by capability kind",
			},
			[]string{"kind", "selector"},
		),
		endpointRestarts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dimas_endpoint_restarts_total",
				Help: "Total number of endpoint restarts triggered by a panic recovery",
			},
			[]string{"kind", "selector"},
		),
		operationState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dimas_operation_state",
				Help: "Current OperationState of an agent, by fully-qualified name",
			},
			[]string{"fq_name"},
		),
		roundTripDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dimas_roundtrip_duration_seconds",
				Help:    "Duration of querier/observer round trips",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind", "selector"},
		),
		observationTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dimas_observation_outcomes_total",
				Help: "Observation outcomes (accepted, declined, occupied, finished, canceled) by selector",
			},
			[]string{"selector", "outcome"},
		),
	}
}

func (p *PrometheusRecorder) EndpointStarted(kind, selector string) {
	p.endpointStarts.WithLabelValues(kind, selector).Inc()
}

func (p *PrometheusRecorder) EndpointStopped(kind, selector string) {
	p.endpointStops.WithLabelValues(kind, selector).Inc()
}

func (p *PrometheusRecorder) EndpointRestarted(kind, selector string) {
	p.endpointRestarts.WithLabelValues(kind, selector).Inc()
}

func (p *PrometheusRecorder) StateGauge(fqName string, state int32) {
	p.operationState.WithLabelValues(fqName).Set(float64(state))
}

func (p *PrometheusRecorder) ObserveRoundTrip(kind, selector string, duration time.Duration) {
	p.roundTripDuration.WithLabelValues(kind, selector).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) ObservationOutcome(selector, outcome string) {
	p.observationTotal.WithLabelValues(selector, outcome).Inc()
}

// EndpointStartsFor, EndpointStopsFor, EndpointRestartsFor, and StateGaugeFor
// expose the underlying per-label metrics for test assertions (typically via
// prometheus/client_golang/testutil.ToFloat64), without handing out the
// vectors themselves.
func (p *PrometheusRecorder) EndpointStartsFor(kind, selector string) prometheus.Counter {
	return p.endpointStarts.WithLabelValues(kind, selector)
}

func (p *PrometheusRecorder) EndpointStopsFor(kind, selector string) prometheus.Counter {
	return p.endpointStops.WithLabelValues(kind, selector)
}

func (p *PrometheusRecorder) EndpointRestartsFor(kind, selector string) prometheus.Counter {
	return p.endpointRestarts.WithLabelValues(kind, selector)
}

func (p *PrometheusRecorder) StateGaugeFor(fqName string) prometheus.Gauge {
	return p.operationState.WithLabelValues(fqName)
}

// NoopRecorder discards everything; used when metrics collection is disabled.
type NoopRecorder struct{}

func (NoopRecorder) EndpointStarted(string, string)                {}
func (NoopRecorder) EndpointStopped(string, string)                {}
func (NoopRecorder) EndpointRestarted(string, string)               {}
func (NoopRecorder) StateGauge(string, int32)                       {}
func (NoopRecorder) ObserveRoundTrip(string, string, time.Duration) {}
func (NoopRecorder) ObservationOutcome(string, string)              {}

// Server exposes a Prometheus registry's metrics over HTTP. It is optional:
// an Agent that never calls ListenAndServe still records into the registry,
// but nothing outside the process can scrape it.
type Server struct {
	httpServer *http.Server
}

// NewServer builds a /metrics HTTP server for addr backed by gatherer
// (typically prometheus.DefaultGatherer).
func NewServer(addr string, gatherer prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &Server{httpServer: &http.Server{Addr: addr, Handler: mux}}
}

// ListenAndServe blocks serving /metrics until the server is shut down; a
// clean Shutdown returns nil rather than http.ErrServerClosed.
func (s *Server) ListenAndServe() error {
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
