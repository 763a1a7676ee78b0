package observation

import (
	"context"
	"sync"
	"testing"
	"time"

	"dimas/pkg/core"
	"dimas/pkg/transport"
	"dimas/pkg/wire"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes shared by observable/observer tests ---

type fakeSession struct {
	zid                 string
	getFn               func(ctx context.Context, selector string, opts transport.GetOptions) (<-chan transport.Reply, error)
	declarePublisherFn  func(selector string, opts transport.PublisherOptions) (transport.Publisher, error)
	declareSubscriberFn func(selector string) (transport.Subscriber, error)
	declareQueryableFn  func(selector string, complete bool) (transport.Queryable, error)
}

func (f *fakeSession) Zid() string                              { return f.zid }
func (f *fakeSession) Put(string, []byte) error                 { return nil }
func (f *fakeSession) Delete(string) error                      { return nil }
func (f *fakeSession) Get(ctx context.Context, selector string, opts transport.GetOptions) (<-chan transport.Reply, error) {
	return f.getFn(ctx, selector, opts)
}
func (f *fakeSession) DeclarePublisher(selector string, opts transport.PublisherOptions) (transport.Publisher, error) {
	return f.declarePublisherFn(selector, opts)
}
func (f *fakeSession) DeclareSubscriber(selector string) (transport.Subscriber, error) {
	return f.declareSubscriberFn(selector)
}
func (f *fakeSession) DeclareQueryable(selector string, complete bool) (transport.Queryable, error) {
	return f.declareQueryableFn(selector, complete)
}
func (f *fakeSession) DeclareKeyexpr(string) error     { return nil }
func (f *fakeSession) Liveliness() transport.Liveliness { return nil }
func (f *fakeSession) Close() error                     { return nil }

type fakePublisher struct {
	mu  sync.Mutex
	put [][]byte
}

func (p *fakePublisher) Put(payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.put = append(p.put, payload)
	return nil
}
func (p *fakePublisher) Delete() error    { return nil }
func (p *fakePublisher) KeyExpr() string  { return "" }
func (p *fakePublisher) Undeclare() error { return nil }

func (p *fakePublisher) puts() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.put))
	copy(out, p.put)
	return out
}

type fakeQueryable struct{ ch chan transport.Query }

func (q *fakeQueryable) Queries() <-chan transport.Query { return q.ch }
func (q *fakeQueryable) Undeclare() error                { return nil }

type fakeQuery struct {
	params   string
	payload  []byte
	keyExpr  string
	replies  chan []byte
}

func (q *fakeQuery) Parameters() string      { return q.params }
func (q *fakeQuery) Payload() ([]byte, bool) { return q.payload, q.payload != nil }
func (q *fakeQuery) KeyExpr() string         { return q.keyExpr }
func (q *fakeQuery) Reply(key string, payload []byte) error {
	q.replies <- payload
	return nil
}

type fakeSubscriber struct{ ch chan transport.Sample }

func (s *fakeSubscriber) Samples() <-chan transport.Sample { return s.ch }
func (s *fakeSubscriber) Undeclare() error                 { return nil }

func decodeControl(t *testing.T, b []byte) wire.ControlResponse {
	t.Helper()
	resp, err := wire.Decode[wire.ControlResponse](wire.Message(b))
	require.NoError(t, err)
	return resp
}

func decodeObservable(t *testing.T, b []byte) wire.ObservableResponse {
	t.Helper()
	resp, err := wire.Decode[wire.ObservableResponse](wire.Message(b))
	require.NoError(t, err)
	return resp
}

// --- Observable ---

func TestObservableAcceptRunsToFinished(t *testing.T) {
	queries := make(chan transport.Query, 1)
	fp := &fakePublisher{}
	sess := &fakeSession{
		zid: "zid-1",
		declareQueryableFn: func(string, bool) (transport.Queryable, error) {
			return &fakeQueryable{ch: queries}, nil
		},
		declarePublisherFn: func(string, transport.PublisherOptions) (transport.Publisher, error) {
			return fp, nil
		},
	}

	execDone := make(chan struct{})
	ob := NewObservable("examples/fib", sess, ObservableOptions{
		FeedbackInterval: 5 * time.Millisecond,
		Control: func(wire.Message) (wire.ControlResponseKind, error) {
			return wire.ControlAccepted, nil
		},
		Feedback: func() (wire.Message, error) {
			return wire.Message("fb"), nil
		},
		Execute: func(ctx context.Context) (wire.Message, error) {
			<-time.After(20 * time.Millisecond)
			close(execDone)
			return wire.Message("result"), nil
		},
	}, nil, core.StateActive)

	require.NoError(t, ob.Start())
	defer ob.Stop()

	replies := make(chan []byte, 1)
	queries <- &fakeQuery{params: "request", keyExpr: "examples/fib", replies: replies}

	accepted := decodeControl(t, <-replies)
	assert.Equal(t, wire.ControlAccepted, accepted.Kind)

	select {
	case <-execDone:
	case <-time.After(time.Second):
		t.Fatal("execution never ran")
	}

	require.Eventually(t, func() bool {
		for _, raw := range fp.puts() {
			resp := decodeObservable(t, raw)
			if resp.Kind == wire.ResponseFinished {
				return string(resp.Payload) == "result"
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	var feedbackCount int
	for _, raw := range fp.puts() {
		if decodeObservable(t, raw).Kind == wire.ResponseFeedback {
			feedbackCount++
		}
	}
	assert.GreaterOrEqual(t, feedbackCount, 1)
}

func TestObservableOccupiedWhileBusy(t *testing.T) {
	queries := make(chan transport.Query, 2)
	sess := &fakeSession{
		declareQueryableFn: func(string, bool) (transport.Queryable, error) {
			return &fakeQueryable{ch: queries}, nil
		},
		declarePublisherFn: func(string, transport.PublisherOptions) (transport.Publisher, error) {
			return &fakePublisher{}, nil
		},
	}

	release := make(chan struct{})
	ob := NewObservable("x", sess, ObservableOptions{
		Control: func(wire.Message) (wire.ControlResponseKind, error) { return wire.ControlAccepted, nil },
		Execute: func(ctx context.Context) (wire.Message, error) {
			<-release
			return wire.Message("done"), nil
		},
	}, nil, core.StateActive)
	require.NoError(t, ob.Start())
	defer func() { close(release); ob.Stop() }()

	r1 := make(chan []byte, 1)
	queries <- &fakeQuery{params: "request", replies: r1}
	first := decodeControl(t, <-r1)
	require.Equal(t, wire.ControlAccepted, first.Kind)

	r2 := make(chan []byte, 1)
	queries <- &fakeQuery{params: "request", replies: r2}
	second := decodeControl(t, <-r2)
	assert.Equal(t, wire.ControlOccupied, second.Kind)
}

func TestObservableCancelWhileIdleIsNoop(t *testing.T) {
	queries := make(chan transport.Query, 1)
	sess := &fakeSession{declareQueryableFn: func(string, bool) (transport.Queryable, error) {
		return &fakeQueryable{ch: queries}, nil
	}}
	ob := NewObservable("x", sess, ObservableOptions{}, nil, core.StateActive)
	require.NoError(t, ob.Start())
	defer ob.Stop()

	replies := make(chan []byte, 1)
	queries <- &fakeQuery{params: "cancel", replies: replies}
	resp := decodeControl(t, <-replies)
	assert.Equal(t, wire.ControlCanceled, resp.Kind)
}

func TestObservableCancelWhileBusyPublishesCanceled(t *testing.T) {
	queries := make(chan transport.Query, 2)
	fp := &fakePublisher{}
	sess := &fakeSession{
		declareQueryableFn: func(string, bool) (transport.Queryable, error) {
			return &fakeQueryable{ch: queries}, nil
		},
		declarePublisherFn: func(string, transport.PublisherOptions) (transport.Publisher, error) { return fp, nil },
	}

	execCtx := make(chan context.Context, 1)
	ob := NewObservable("x", sess, ObservableOptions{
		FeedbackInterval: 5 * time.Millisecond,
		Control:          func(wire.Message) (wire.ControlResponseKind, error) { return wire.ControlAccepted, nil },
		Feedback:         func() (wire.Message, error) { return wire.Message("cancel-payload"), nil },
		Execute: func(ctx context.Context) (wire.Message, error) {
			execCtx <- ctx
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}, nil, core.StateActive)
	require.NoError(t, ob.Start())
	defer ob.Stop()

	r1 := make(chan []byte, 1)
	queries <- &fakeQuery{params: "request", replies: r1}
	require.Equal(t, wire.ControlAccepted, decodeControl(t, <-r1).Kind)
	ctx := <-execCtx

	r2 := make(chan []byte, 1)
	queries <- &fakeQuery{params: "cancel", replies: r2}
	require.Equal(t, wire.ControlCanceled, decodeControl(t, <-r2).Kind)

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("execution context was not canceled")
	}

	require.Eventually(t, func() bool {
		for _, raw := range fp.puts() {
			resp := decodeObservable(t, raw)
			if resp.Kind == wire.ResponseCanceled {
				return string(resp.Payload) == "cancel-payload"
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

// --- Observer ---

func oneReply(payload []byte, replierID string) <-chan transport.Reply {
	ch := make(chan transport.Reply, 1)
	ch <- transport.Reply{Sample: transport.Sample{Payload: payload}, ReplierID: replierID}
	close(ch)
	return ch
}

func TestObserverRequestAcceptedSpawnsObservationAndDeliversFeedback(t *testing.T) {
	accepted, err := wire.Encode(wire.ControlResponse{Kind: wire.ControlAccepted})
	require.NoError(t, err)

	feedbackSubCh := make(chan transport.Sample, 2)
	sess := &fakeSession{
		getFn: func(context.Context, string, transport.GetOptions) (<-chan transport.Reply, error) {
			return oneReply(accepted.Bytes(), "replier-1"), nil
		},
		declareSubscriberFn: func(selector string) (transport.Subscriber, error) {
			assert.Equal(t, "x/feedback/replier-1", selector)
			return &fakeSubscriber{ch: feedbackSubCh}, nil
		},
	}

	controlEvents := make(chan wire.ControlResponseKind, 2)
	responseEvents := make(chan wire.ObservableResponse, 4)
	obs := NewObserver("x", sess, ObserverOptions{
		Timeout: 50 * time.Millisecond,
		Control: func(k wire.ControlResponseKind) error { controlEvents <- k; return nil },
		Response: func(r wire.ObservableResponse) error {
			responseEvents <- r
			return nil
		},
	}, core.StateActive)

	require.NoError(t, obs.Request(nil))
	assert.Equal(t, wire.ControlAccepted, <-controlEvents)

	fb, err := wire.Encode(wire.ObservableResponse{Kind: wire.ResponseFeedback, Payload: wire.Message("step")})
	require.NoError(t, err)
	feedbackSubCh <- transport.Sample{Kind: transport.SamplePut, Payload: fb.Bytes()}

	fin, err := wire.Encode(wire.ObservableResponse{Kind: wire.ResponseFinished, Payload: wire.Message("done")})
	require.NoError(t, err)
	feedbackSubCh <- transport.Sample{Kind: transport.SamplePut, Payload: fin.Bytes()}

	first := <-responseEvents
	assert.Equal(t, wire.ResponseFeedback, first.Kind)
	second := <-responseEvents
	assert.Equal(t, wire.ResponseFinished, second.Kind)
}

func TestObserverRequestExhaustsRetriesWithoutReply(t *testing.T) {
	sess := &fakeSession{getFn: func(context.Context, string, transport.GetOptions) (<-chan transport.Reply, error) {
		ch := make(chan transport.Reply)
		close(ch)
		return ch, nil
	}}
	obs := NewObserver("x", sess, ObserverOptions{Timeout: time.Millisecond}, core.StateActive)

	err := obs.Request(nil)
	var accessErr *core.AccessingObservableError
	require.ErrorAs(t, err, &accessErr)
	assert.Equal(t, "x", accessErr.Selector)
}

func TestObserverCancelInvokesControlCallback(t *testing.T) {
	canceled, err := wire.Encode(wire.ControlResponse{Kind: wire.ControlCanceled})
	require.NoError(t, err)
	sess := &fakeSession{getFn: func(context.Context, string, transport.GetOptions) (<-chan transport.Reply, error) {
		return oneReply(canceled.Bytes(), ""), nil
	}}

	got := make(chan wire.ControlResponseKind, 1)
	obs := NewObserver("x", sess, ObserverOptions{
		Timeout: 50 * time.Millisecond,
		Control: func(k wire.ControlResponseKind) error { got <- k; return nil },
	}, core.StateActive)

	require.NoError(t, obs.Cancel())
	assert.Equal(t, wire.ControlCanceled, <-got)
}
