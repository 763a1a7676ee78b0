package com

import (
	"dimas/pkg/core"
	"dimas/pkg/logx"
	"dimas/pkg/transport"
)

// QueryCallback handles one incoming request and sends its own reply (or
// replies) via the handed Query before returning.
type QueryCallback func(transport.Query) error

// Queryable is an async request/reply responder (C6). Incoming Querys are
// handed to the callback sequentially, on a single background task; a
// callback error is logged and does not stop the task, but a callback
// panic unwinds it and requests a restart.
type Queryable struct {
	core.BaseOperational

	selector string
	session  transport.Session
	complete bool
	callback QueryCallback
	sender   chan<- core.TaskSignal

	handle transport.Queryable
	done   chan struct{}
}

func NewQueryable(selector string, session transport.Session, complete bool, callback QueryCallback, sender chan<- core.TaskSignal, activation core.OperationState) *Queryable {
	return &Queryable{
		BaseOperational: core.NewBaseOperational(activation),
		selector:        selector,
		session:         session,
		complete:        complete,
		callback:        callback,
		sender:          sender,
	}
}

func (q *Queryable) Selector() string { return q.selector }

func (q *Queryable) Start() error {
	if err := q.stop(); err != nil {
		return err
	}
	h, err := q.session.DeclareQueryable(q.selector, q.complete)
	if err != nil {
		return &core.SubscriberCreationError{Source: err}
	}
	q.handle = h
	q.done = make(chan struct{})
	go q.run(h, q.done)
	return nil
}

func (q *Queryable) Stop() error { return q.stop() }

func (q *Queryable) stop() error {
	if q.handle == nil {
		return nil
	}
	err := q.handle.Undeclare()
	q.handle = nil
	if q.done != nil {
		close(q.done)
		q.done = nil
	}
	return err
}

func (q *Queryable) run(h transport.Queryable, done chan struct{}) {
	defer q.restartOnPanic()
	for {
		select {
		case <-done:
			return
		case query, ok := <-h.Queries():
			if !ok {
				return
			}
			q.dispatch(query)
		}
	}
}

func (q *Queryable) dispatch(query transport.Query) {
	if q.callback == nil {
		return
	}
	if err := q.callback(query); err != nil {
		logx.Debugf("queryable %s: callback error: %s", q.selector, err)
	}
}

// restartOnPanic is the queryable task's panic hook, mirroring Subscriber's.
func (q *Queryable) restartOnPanic() {
	if r := recover(); r != nil {
		logx.Debugf("queryable %s: panic, requesting restart: %v", q.selector, r)
		if q.sender != nil {
			q.sender <- core.TaskSignal{Kind: core.RestartQueryable, Selector: q.selector}
		}
	}
}

func (q *Queryable) Configure() error    { return core.HookStart(&q.BaseOperational, core.StateConfigured, q) }
func (q *Queryable) Commission() error   { return core.HookStart(&q.BaseOperational, core.StateInactive, q) }
func (q *Queryable) Wakeup() error       { return core.HookStart(&q.BaseOperational, core.StateStandby, q) }
func (q *Queryable) Activate() error     { return core.HookStart(&q.BaseOperational, core.StateActive, q) }
func (q *Queryable) Deactivate() error   { return core.HookStop(&q.BaseOperational, core.StateActive, q) }
func (q *Queryable) Suspend() error      { return core.HookStop(&q.BaseOperational, core.StateStandby, q) }
func (q *Queryable) Decommission() error { return core.HookStop(&q.BaseOperational, core.StateInactive, q) }
func (q *Queryable) Deconfigure() error  { return core.HookStop(&q.BaseOperational, core.StateConfigured, q) }
