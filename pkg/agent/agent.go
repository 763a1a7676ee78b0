// Package agent implements the agent facade and run loop (C10): it ties a
// Context together with every endpoint registry, reconciles operational
// state across all of them in the order spec.md §4.9 mandates, and runs the
// loop that consumes restart and shutdown signals.
package agent

import (
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"dimas/pkg/admin"
	"dimas/pkg/com"
	agentctx "dimas/pkg/context"
	"dimas/pkg/core"
	"dimas/pkg/logx"
	"dimas/pkg/metrics"
	"dimas/pkg/observation"
	"dimas/pkg/timer"
	"dimas/pkg/transport"
	"dimas/pkg/wire"
)

// querierAdapter bridges com.Querier's own ReplyCallback type to
// agentctx.Requesting's, which is distinct (identical underlying function
// type, but Go requires identical named parameter types for interface
// satisfaction, not just convertibility).
type querierAdapter struct{ q *com.Querier }

func (a querierAdapter) Get(msg wire.Message, cb agentctx.ReplyCallback) error {
	var wrapped com.ReplyCallback
	if cb != nil {
		wrapped = com.ReplyCallback(cb)
	}
	return a.q.Get(msg, wrapped)
}

// registries implements agentctx.Registries over the Agent's own sub-tables,
// the lookup side of the breaking of the Context/endpoint ownership cycle
// described in spec.md §9.
type registries struct {
	publishers *com.Registry[*com.Publisher]
	queriers   *com.Registry[*com.Querier]
	observers  *com.Registry[*observation.Observer]
}

func (r registries) Publisher(selector string) (agentctx.Publishing, bool) {
	p, ok := r.publishers.Get(selector)
	if !ok {
		return nil, false
	}
	return p, true
}

func (r registries) Querier(selector string) (agentctx.Requesting, bool) {
	q, ok := r.queriers.Get(selector)
	if !ok {
		return nil, false
	}
	return querierAdapter{q: q}, true
}

func (r registries) Observer(selector string) (agentctx.Observing, bool) {
	o, ok := r.observers.Get(selector)
	if !ok {
		return nil, false
	}
	return o, true
}

// Agent[P] aggregates a Context[P] with every endpoint registry (C4) and
// drives the full lifecycle (C10): registration, state reconciliation,
// restart-on-panic handling, and cooperative shutdown.
type Agent[P any] struct {
	ctx *agentctx.Context[P]

	kind    string
	session transport.Session

	publishers  *com.Registry[*com.Publisher]
	subscribers *com.Registry[*com.Subscriber]
	queriers    *com.Registry[*com.Querier]
	queryables  *com.Registry[*com.Queryable]
	observables *com.Registry[*observation.Observable]
	observers   *com.Registry[*observation.Observer]
	timers      *com.Registry[*timer.Timer]
	liveliness  *com.Registry[*com.LivelinessWatcher]

	token *com.TokenAnnouncer
	admin *admin.Endpoint

	metrics metrics.Recorder

	signals chan core.TaskSignal
	stateMu sync.Mutex
	done    chan struct{}
}

// New constructs an Agent in StateCreated. kind labels the agent in About
// replies (e.g. "worker", "supervisor"); it is free-form and not otherwise
// interpreted.
func New[P any](prefix, name, kind string, session transport.Session, initial P) *Agent[P] {
	signals := make(chan core.TaskSignal, 16)
	ctx := agentctx.New(prefix, name, session, signals, initial)

	a := &Agent[P]{
		ctx:         ctx,
		kind:        kind,
		session:     session,
		publishers:  com.NewRegistry[*com.Publisher](),
		subscribers: com.NewRegistry[*com.Subscriber](),
		queriers:    com.NewRegistry[*com.Querier](),
		queryables:  com.NewRegistry[*com.Queryable](),
		observables: com.NewRegistry[*observation.Observable](),
		observers:   com.NewRegistry[*observation.Observer](),
		timers:      com.NewRegistry[*timer.Timer](),
		liveliness:  com.NewRegistry[*com.LivelinessWatcher](),
		metrics:     metrics.NoopRecorder{},
		signals:     signals,
	}

	ctx.SetRegistries(registries{
		publishers: a.publishers,
		queriers:   a.queriers,
		observers:  a.observers,
	})

	a.token = com.NewTokenAnnouncer(ctx.FQName(), session, core.StateInactive)
	a.admin = admin.NewEndpoint(ctx.FQName(), session, admin.Info{
		Name: ctx.Name(),
		Kind: kind,
		Zid:  session.Zid(),
	}, a, nil, signals, core.StateConfigured)

	return a
}

// Context returns the shared handle injected into callbacks.
func (a *Agent[P]) Context() *agentctx.Context[P] { return a.ctx }

// Sender exposes the task-signal channel's send side, for endpoints
// constructed outside the Register* helpers.
func (a *Agent[P]) Sender() chan<- core.TaskSignal { return a.signals }

// SetMetrics installs rec as the agent's metrics.Recorder; call before
// Start. Defaults to metrics.NoopRecorder{}.
func (a *Agent[P]) SetMetrics(rec metrics.Recorder) { a.metrics = rec }

// --- registration -----------------------------------------------------

func (a *Agent[P]) selector(topic string) string {
	return core.SelectorFrom(topic, a.ctx.Prefix())
}

func (a *Agent[P]) RegisterPublisher(topic string, opts transport.PublisherOptions, activation core.OperationState) *com.Publisher {
	sel := a.selector(topic)
	p := com.NewPublisher(sel, a.session, opts, activation)
	a.publishers.Insert(sel, p)
	return p
}

func (a *Agent[P]) RegisterSubscriber(topic string, onPut com.PutCallback, onDelete com.DeleteCallback, activation core.OperationState) *com.Subscriber {
	sel := a.selector(topic)
	s := com.NewSubscriber(sel, a.session, onPut, onDelete, a.signals, activation)
	a.subscribers.Insert(sel, s)
	return s
}

func (a *Agent[P]) RegisterQuerier(topic string, opts com.QuerierOptions, activation core.OperationState) *com.Querier {
	sel := a.selector(topic)
	q := com.NewQuerier(sel, a.session, opts, activation)
	a.queriers.Insert(sel, q)
	return q
}

func (a *Agent[P]) RegisterQueryable(topic string, complete bool, callback com.QueryCallback, activation core.OperationState) *com.Queryable {
	sel := a.selector(topic)
	q := com.NewQueryable(sel, a.session, complete, callback, a.signals, activation)
	a.queryables.Insert(sel, q)
	return q
}

func (a *Agent[P]) RegisterObservable(topic string, opts observation.ObservableOptions, activation core.OperationState) *observation.Observable {
	sel := a.selector(topic)
	o := observation.NewObservable(sel, a.session, opts, a.signals, activation)
	a.observables.Insert(sel, o)
	return o
}

func (a *Agent[P]) RegisterObserver(topic string, opts observation.ObserverOptions, activation core.OperationState) *observation.Observer {
	sel := a.selector(topic)
	o := observation.NewObserver(sel, a.session, opts, activation)
	a.observers.Insert(sel, o)
	return o
}

func (a *Agent[P]) RegisterInterval(name string, period time.Duration, cb timer.Callback, activation core.OperationState) *timer.Timer {
	sel := a.selector(name)
	t := timer.NewInterval(sel, period, cb, a.signals, activation)
	a.timers.Insert(sel, t)
	return t
}

func (a *Agent[P]) RegisterDelayedInterval(name string, delay, period time.Duration, cb timer.Callback, activation core.OperationState) *timer.Timer {
	sel := a.selector(name)
	t := timer.NewDelayedInterval(sel, delay, period, cb, a.signals, activation)
	a.timers.Insert(sel, t)
	return t
}

func (a *Agent[P]) RegisterLivelinessWatcher(pattern string, onEvent com.LivelinessCallback, activation core.OperationState) *com.LivelinessWatcher {
	w := com.NewLivelinessWatcher(pattern, a.ctx.FQName(), a.session, onEvent, a.signals, activation)
	a.liveliness.Insert(pattern, w)
	return w
}

// --- StateController (consumed by pkg/admin.Endpoint) -----------------

// State returns the agent's overall operational state as last recorded on
// the Context.
func (a *Agent[P]) State() core.OperationState { return a.ctx.State() }

// ManageState reconciles every registered endpoint to target, in the order
// spec.md §4.9 mandates, and updates the Context's reported state only once
// every endpoint has been walked. A single endpoint's failure is logged and
// does not abort reconciliation of the rest.
func (a *Agent[P]) ManageState(target core.OperationState) error {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	ascending := target >= a.ctx.State()
	if ascending {
		a.walkUp(target)
	} else {
		a.walkDown(target)
	}
	a.ctx.SetState(target)
	a.metrics.StateGauge(a.ctx.FQName(), int32(target))
	return nil
}

// walkUp reconciles upward: liveliness subscribers, responders (queryables,
// subscribers, observables), publishers, observers, queriers, timers, then
// announces the liveliness token and declares the admin endpoint. Each
// group reconciles strictly after the previous one, but the independent
// entries within a single group reconcile concurrently.
func (a *Agent[P]) walkUp(target core.OperationState) {
	manageAll(a, a.liveliness, "liveliness", target)
	manageAll(a, a.queryables, "queryable", target)
	manageAll(a, a.subscribers, "subscriber", target)
	manageAll(a, a.observables, "observable", target)
	manageAll(a, a.publishers, "publisher", target)
	manageAll(a, a.observers, "observer", target)
	manageAll(a, a.queriers, "querier", target)
	manageAll(a, a.timers, "timer", target)

	a.manage("token", "token:"+a.ctx.FQName(), a.token, target)
	a.manage("admin", "admin:"+a.ctx.FQName(), a.admin, target)
}

// walkDown reconciles downward in the exact reverse order of walkUp.
func (a *Agent[P]) walkDown(target core.OperationState) {
	a.manage("admin", "admin:"+a.ctx.FQName(), a.admin, target)
	a.manage("token", "token:"+a.ctx.FQName(), a.token, target)

	manageAll(a, a.timers, "timer", target)
	manageAll(a, a.queriers, "querier", target)
	manageAll(a, a.observers, "observer", target)
	manageAll(a, a.publishers, "publisher", target)
	manageAll(a, a.observables, "observable", target)
	manageAll(a, a.subscribers, "subscriber", target)
	manageAll(a, a.queryables, "queryable", target)
	manageAll(a, a.liveliness, "liveliness", target)
}

// manageAll reconciles every entry of one registry concurrently, via
// errgroup, and waits for all of them before returning. core.Capability
// implementations touch only their own transport handle and background
// goroutine, so siblings within one registry have no ordering dependency on
// each other; only the group-to-group order walkUp/walkDown impose matters.
func manageAll[P any, T core.Capability](a *Agent[P], reg *com.Registry[T], kind string, target core.OperationState) {
	var g errgroup.Group
	reg.Each(func(sel string, entry T) {
		g.Go(func() error {
			a.manage(kind, sel, entry, target)
			return nil
		})
	})
	_ = g.Wait()
}

func (a *Agent[P]) manage(kind, selector string, c core.Capability, target core.OperationState) {
	if err := core.ManageOperationState(c, target); err != nil {
		logx.Debugf("agent %s: reconciling %s to %s: %s", a.ctx.FQName(), selector, target, err)
		return
	}
	switch target {
	case core.StateActive:
		a.metrics.EndpointStarted(kind, selector)
	case core.StateCreated:
		a.metrics.EndpointStopped(kind, selector)
	}
}

// --- run loop -----------------------------------------------------------

// Start reconciles every endpoint up to target and begins the run loop on
// a background goroutine.
func (a *Agent[P]) Start(target core.OperationState) error {
	a.ManageState(target)
	a.done = make(chan struct{})
	go a.run()
	return nil
}

// run consumes TaskSignals until Shutdown: a restart signal drives the
// named endpoint down to StateCreated and back up to the agent's current
// target state (a hard restart — old goroutine state is discarded, per
// spec.md §5); Shutdown tears every endpoint back down to StateCreated in
// reverse order and returns.
func (a *Agent[P]) run() {
	for sig := range a.signals {
		switch sig.Kind {
		case core.Shutdown:
			a.ManageState(core.StateCreated)
			close(a.done)
			return
		default:
			a.restartEndpoint(sig)
		}
	}
}

func (a *Agent[P]) restartEndpoint(sig core.TaskSignal) {
	target := a.ctx.State()
	var entry core.Capability
	var kind string
	switch sig.Kind {
	case core.RestartLiveliness:
		kind = "liveliness"
		if w, ok := a.liveliness.Get(sig.Selector); ok {
			entry = w
		}
	case core.RestartQueryable:
		kind = "queryable"
		if q, ok := a.queryables.Get(sig.Selector); ok {
			entry = q
		}
	case core.RestartSubscriber:
		kind = "subscriber"
		if s, ok := a.subscribers.Get(sig.Selector); ok {
			entry = s
		}
	case core.RestartTimer:
		kind = "timer"
		if t, ok := a.timers.Get(sig.Selector); ok {
			entry = t
		}
	case core.RestartObservable:
		kind = "observable"
		if o, ok := a.observables.Get(sig.Selector); ok {
			entry = o
		}
	}
	if entry == nil {
		logx.Debugf("agent %s: restart signal %s for unknown selector %s", a.ctx.FQName(), sig.Kind, sig.Selector)
		return
	}
	if err := core.ManageOperationState(entry, core.StateCreated); err != nil {
		logx.Debugf("agent %s: restart %s: tearing down: %s", a.ctx.FQName(), sig.Selector, err)
	}
	if err := core.ManageOperationState(entry, target); err != nil {
		logx.Debugf("agent %s: restart %s: bringing back up: %s", a.ctx.FQName(), sig.Selector, err)
		return
	}
	a.metrics.EndpointRestarted(kind, sig.Selector)
}

// requestShutdown posts a Shutdown TaskSignal onto the run loop's channel;
// the admin endpoint posts the same TaskSignal directly (it is handed
// a.signals, not this method) when it answers a Shutdown admin request, so
// both external shutdown paths converge on the same run-loop handling.
func (a *Agent[P]) requestShutdown() {
	select {
	case a.signals <- core.TaskSignal{Kind: core.Shutdown}:
	default:
	}
}

// Shutdown requests the run loop stop and blocks until it has torn every
// endpoint back down to StateCreated.
func (a *Agent[P]) Shutdown() {
	a.requestShutdown()
	if a.done != nil {
		<-a.done
	}
}
