// Package admin implements the admin protocol (C11): a single queryable
// declared on "{base}/signal" answering About, Ping, State, and Shutdown
// requests from control tooling such as cmd/dimasctl.
package admin

import (
	"time"

	"dimas/pkg/core"
	"dimas/pkg/logx"
	"dimas/pkg/transport"
	"dimas/pkg/wire"
)

// StateController is the subset of Agent the admin endpoint drives: reading
// and changing the whole agent's operational state.
type StateController interface {
	ManageState(target core.OperationState) error
	State() core.OperationState
}

// Info is the static identity reported in every About/Ping reply.
type Info struct {
	Name string
	Kind string
	Zid  string
}

// Endpoint is the admin queryable capability.
type Endpoint struct {
	core.BaseOperational

	selector   string
	session    transport.Session
	info       Info
	controller StateController
	onShutdown func()
	sender     chan<- core.TaskSignal

	handle transport.Queryable
	done   chan struct{}
}

// NewEndpoint constructs the admin endpoint for base's fully-qualified name
// (the selector is base+"/signal").
func NewEndpoint(base string, session transport.Session, info Info, controller StateController, onShutdown func(), sender chan<- core.TaskSignal, activation core.OperationState) *Endpoint {
	return &Endpoint{
		BaseOperational: core.NewBaseOperational(activation),
		selector:        core.SelectorFrom("signal", base),
		session:         session,
		info:            info,
		controller:      controller,
		onShutdown:      onShutdown,
		sender:          sender,
	}
}

func (e *Endpoint) Selector() string { return e.selector }

func (e *Endpoint) Start() error {
	if err := e.stop(); err != nil {
		return err
	}
	h, err := e.session.DeclareQueryable(e.selector, true)
	if err != nil {
		return &core.SubscriberCreationError{Source: err}
	}
	e.handle = h
	e.done = make(chan struct{})
	go e.run(h, e.done)
	return nil
}

func (e *Endpoint) Stop() error { return e.stop() }

func (e *Endpoint) stop() error {
	if e.handle == nil {
		return nil
	}
	err := e.handle.Undeclare()
	e.handle = nil
	if e.done != nil {
		close(e.done)
		e.done = nil
	}
	return err
}

func (e *Endpoint) run(h transport.Queryable, done chan struct{}) {
	defer e.restartOnPanic()
	for {
		select {
		case <-done:
			return
		case q, ok := <-h.Queries():
			if !ok {
				return
			}
			e.dispatch(q)
		}
	}
}

func (e *Endpoint) dispatch(q transport.Query) {
	payload, _ := q.Payload()
	sig, err := wire.Decode[wire.Signal](wire.Message(payload))
	if err != nil {
		logx.Debugf("admin %s: decoding signal: %s", e.selector, err)
		return
	}

	switch sig.Kind {
	case wire.SignalAbout:
		e.replyAbout(q, e.controller.State())
	case wire.SignalPing:
		e.replyPing(q, sig.SentUTCNanos)
	case wire.SignalState:
		if sig.Target != nil {
			if err := e.controller.ManageState(*sig.Target); err != nil {
				logx.Debugf("admin %s: state transition to %s: %s", e.selector, sig.Target, err)
			}
		}
		e.replyAbout(q, e.controller.State())
	case wire.SignalShutdown:
		e.replyAbout(q, core.StateCreated)
		if e.sender != nil {
			e.sender <- core.TaskSignal{Kind: core.Shutdown}
		}
		if e.onShutdown != nil {
			e.onShutdown()
		}
	default:
		logx.Debugf("admin %s: unknown signal kind %s", e.selector, sig.Kind)
	}
}

func (e *Endpoint) replyAbout(q transport.Query, state core.OperationState) {
	entity := wire.AboutEntity{Name: e.info.Name, Kind: e.info.Kind, Zid: e.info.Zid, State: state}
	msg, err := wire.Encode(entity)
	if err != nil {
		logx.Debugf("admin %s: encoding AboutEntity: %s", e.selector, err)
		return
	}
	if err := q.Reply(q.KeyExpr(), msg.Bytes()); err != nil {
		logx.Debugf("admin %s: replying: %s", e.selector, &core.ReplyError{Source: err})
	}
}

func (e *Endpoint) replyPing(q transport.Query, sentUTCNanos int64) {
	entity := wire.PingEntity{Name: e.info.Name, Zid: e.info.Zid, OnewayNS: time.Now().UnixNano() - sentUTCNanos}
	msg, err := wire.Encode(entity)
	if err != nil {
		logx.Debugf("admin %s: encoding PingEntity: %s", e.selector, err)
		return
	}
	if err := q.Reply(q.KeyExpr(), msg.Bytes()); err != nil {
		logx.Debugf("admin %s: replying: %s", e.selector, &core.ReplyError{Source: err})
	}
}

// restartOnPanic is the admin task's panic hook. There is no dedicated
// restart signal for the admin endpoint; a crash is logged and the agent's
// run loop continues without it until the next full reconciliation.
func (e *Endpoint) restartOnPanic() {
	if r := recover(); r != nil {
		logx.Debugf("admin %s: panic: %v", e.selector, r)
	}
}

func (e *Endpoint) Configure() error  { return core.HookStart(&e.BaseOperational, core.StateConfigured, e) }
func (e *Endpoint) Commission() error { return core.HookStart(&e.BaseOperational, core.StateInactive, e) }
func (e *Endpoint) Wakeup() error     { return core.HookStart(&e.BaseOperational, core.StateStandby, e) }
func (e *Endpoint) Activate() error   { return core.HookStart(&e.BaseOperational, core.StateActive, e) }
func (e *Endpoint) Deactivate() error { return core.HookStop(&e.BaseOperational, core.StateActive, e) }
func (e *Endpoint) Suspend() error    { return core.HookStop(&e.BaseOperational, core.StateStandby, e) }
func (e *Endpoint) Decommission() error {
	return core.HookStop(&e.BaseOperational, core.StateInactive, e)
}
func (e *Endpoint) Deconfigure() error {
	return core.HookStop(&e.BaseOperational, core.StateConfigured, e)
}
