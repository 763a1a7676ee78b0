package agent

import (
	"context"
	"testing"
	"time"

	"dimas/pkg/core"
	"dimas/pkg/metrics"
	"dimas/pkg/transport"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	zid                 string
	declarePublisherFn  func(selector string, opts transport.PublisherOptions) (transport.Publisher, error)
	declareSubscriberFn func(selector string) (transport.Subscriber, error)
	declareQueryableFn  func(selector string, complete bool) (transport.Queryable, error)
	liveliness          transport.Liveliness
}

func (f *fakeSession) Zid() string              { return f.zid }
func (f *fakeSession) Put(string, []byte) error { return nil }
func (f *fakeSession) Delete(string) error      { return nil }
func (f *fakeSession) Get(context.Context, string, transport.GetOptions) (<-chan transport.Reply, error) {
	return nil, nil
}
func (f *fakeSession) DeclarePublisher(selector string, opts transport.PublisherOptions) (transport.Publisher, error) {
	if f.declarePublisherFn == nil {
		return &fakePublisher{}, nil
	}
	return f.declarePublisherFn(selector, opts)
}
func (f *fakeSession) DeclareSubscriber(selector string) (transport.Subscriber, error) {
	if f.declareSubscriberFn == nil {
		return &fakeSubscriber{ch: make(chan transport.Sample)}, nil
	}
	return f.declareSubscriberFn(selector)
}
func (f *fakeSession) DeclareQueryable(selector string, complete bool) (transport.Queryable, error) {
	if f.declareQueryableFn == nil {
		return &fakeQueryable{ch: make(chan transport.Query)}, nil
	}
	return f.declareQueryableFn(selector, complete)
}
func (f *fakeSession) DeclareKeyexpr(string) error { return nil }
func (f *fakeSession) Liveliness() transport.Liveliness {
	if f.liveliness == nil {
		return &fakeLiveliness{}
	}
	return f.liveliness
}
func (f *fakeSession) Close() error { return nil }

type fakePublisher struct{ undeclared bool }

func (p *fakePublisher) Put([]byte) error  { return nil }
func (p *fakePublisher) Delete() error     { return nil }
func (p *fakePublisher) KeyExpr() string   { return "" }
func (p *fakePublisher) Undeclare() error  { p.undeclared = true; return nil }

type fakeSubscriber struct{ ch chan transport.Sample }

func (s *fakeSubscriber) Samples() <-chan transport.Sample { return s.ch }
func (s *fakeSubscriber) Undeclare() error                 { return nil }

type fakeQueryable struct{ ch chan transport.Query }

func (q *fakeQueryable) Queries() <-chan transport.Query { return q.ch }
func (q *fakeQueryable) Undeclare() error                { return nil }

type fakeToken struct{}

func (fakeToken) Undeclare() error { return nil }

type fakeLivelinessSubscriber struct{ ch chan transport.Sample }

func (s *fakeLivelinessSubscriber) Samples() <-chan transport.Sample { return s.ch }
func (s *fakeLivelinessSubscriber) Undeclare() error                 { return nil }

type fakeLiveliness struct{}

func (fakeLiveliness) DeclareToken(string) (transport.LivelinessToken, error) {
	return fakeToken{}, nil
}
func (fakeLiveliness) DeclareSubscriber(string) (transport.LivelinessSubscriber, error) {
	return &fakeLivelinessSubscriber{ch: make(chan transport.Sample)}, nil
}
func (fakeLiveliness) Get(context.Context, string, time.Duration) ([]string, error) {
	return nil, nil
}

type props struct{}

func TestAgentManageStateWalksPublisherUpAndDown(t *testing.T) {
	sess := &fakeSession{}
	a := New("agents", "alice", "worker", sess, props{})
	pub := a.RegisterPublisher("topic", transport.PublisherOptions{}, core.StateActive)

	require.NoError(t, a.ManageState(core.StateActive))
	assert.Equal(t, core.StateActive, pub.State())
	assert.Equal(t, core.StateActive, a.State())

	require.NoError(t, a.ManageState(core.StateCreated))
	assert.Equal(t, core.StateCreated, pub.State())
	assert.Equal(t, core.StateCreated, a.State())
}

func TestAgentRestartEndpointTearsDownAndBringsBackUp(t *testing.T) {
	sess := &fakeSession{}
	a := New("agents", "alice", "worker", sess, props{})
	sub := a.RegisterSubscriber("topic", nil, nil, core.StateActive)
	require.NoError(t, a.ManageState(core.StateActive))
	require.Equal(t, core.StateActive, sub.State())

	a.restartEndpoint(core.TaskSignal{Kind: core.RestartSubscriber, Selector: sub.Selector()})
	assert.Equal(t, core.StateActive, sub.State())
}

func TestAgentStartRunLoopRestartsOnSignal(t *testing.T) {
	sess := &fakeSession{}
	a := New("agents", "bob", "worker", sess, props{})
	sub := a.RegisterSubscriber("topic", nil, nil, core.StateActive)

	require.NoError(t, a.Start(core.StateActive))
	require.Equal(t, core.StateActive, sub.State())

	a.signals <- core.TaskSignal{Kind: core.RestartSubscriber, Selector: sub.Selector()}

	require.Eventually(t, func() bool {
		return sub.State() == core.StateActive
	}, time.Second, 10*time.Millisecond)

	a.Shutdown()
	assert.Equal(t, core.StateCreated, a.State())
}

func TestAgentManageStateRecordsMetrics(t *testing.T) {
	sess := &fakeSession{}
	a := New("agents", "dave", "worker", sess, props{})
	reg := prometheus.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)
	a.SetMetrics(rec)
	pub := a.RegisterPublisher("topic", transport.PublisherOptions{}, core.StateActive)

	require.NoError(t, a.ManageState(core.StateActive))
	assert.Equal(t, float64(1), testutil.ToFloat64(rec.EndpointStartsFor("publisher", pub.Selector())))
	assert.Equal(t, float64(core.StateActive), testutil.ToFloat64(rec.StateGaugeFor(a.ctx.FQName())))

	require.NoError(t, a.ManageState(core.StateCreated))
	assert.Equal(t, float64(1), testutil.ToFloat64(rec.EndpointStopsFor("publisher", pub.Selector())))
	assert.Equal(t, float64(core.StateCreated), testutil.ToFloat64(rec.StateGaugeFor(a.ctx.FQName())))
}

func TestAgentRestartEndpointRecordsMetrics(t *testing.T) {
	sess := &fakeSession{}
	a := New("agents", "erin", "worker", sess, props{})
	reg := prometheus.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)
	a.SetMetrics(rec)
	sub := a.RegisterSubscriber("topic", nil, nil, core.StateActive)
	require.NoError(t, a.ManageState(core.StateActive))

	a.restartEndpoint(core.TaskSignal{Kind: core.RestartSubscriber, Selector: sub.Selector()})
	assert.Equal(t, float64(1), testutil.ToFloat64(rec.EndpointRestartsFor("subscriber", sub.Selector())))
}

// TestAgentShutdownTaskSignalStopsRunLoop exercises the same path the admin
// endpoint's Shutdown dispatch drives (a TaskSignal{Kind: core.Shutdown}
// posted onto the agent's signal channel), without reaching into the admin
// package's unexported dispatch.
func TestAgentShutdownTaskSignalStopsRunLoop(t *testing.T) {
	sess := &fakeSession{}
	a := New("agents", "carol", "worker", sess, props{})
	require.NoError(t, a.Start(core.StateActive))

	a.signals <- core.TaskSignal{Kind: core.Shutdown}

	select {
	case <-a.done:
	case <-time.After(time.Second):
		t.Fatal("run loop did not stop after shutdown signal")
	}
	assert.Equal(t, core.StateCreated, a.State())
}
