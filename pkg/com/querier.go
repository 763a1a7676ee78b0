package com

import (
	"context"
	"time"

	"dimas/pkg/core"
	"dimas/pkg/logx"
	"dimas/pkg/transport"
	"dimas/pkg/wire"
)

const (
	querierRetries        = 5
	defaultQuerierTimeout = 200 * time.Millisecond
)

// ReplyCallback handles one decoded reply.
type ReplyCallback func(wire.Message) error

// Querier is a request/reply sender with timeout, retry, consolidation mode
// and target (C6).
type Querier struct {
	core.BaseOperational

	selector      string
	session       transport.Session
	timeout       time.Duration
	target        transport.Target
	consolidation transport.ConsolidationMode
	stored        ReplyCallback // invoked async per reply, errors logged, when Get's cb is nil
}

// QuerierOptions configures a Querier's Get behavior.
type QuerierOptions struct {
	Timeout       time.Duration
	Target        transport.Target
	Consolidation transport.ConsolidationMode
	Callback      ReplyCallback
}

func NewQuerier(selector string, session transport.Session, opts QuerierOptions, activation core.OperationState) *Querier {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultQuerierTimeout
	}
	return &Querier{
		BaseOperational: core.NewBaseOperational(activation),
		selector:        selector,
		session:         session,
		timeout:         timeout,
		target:          opts.Target,
		consolidation:   opts.Consolidation,
		stored:          opts.Callback,
	}
}

func (q *Querier) Selector() string { return q.selector }

func (q *Querier) Start() error { return q.session.DeclareKeyexpr(q.selector) }
func (q *Querier) Stop() error  { return nil }

// Get composes a transport get with this querier's configured options. A
// non-nil cb overrides the stored callback for this call and is invoked
// in-line, propagating its error; the stored callback, when used, is
// spawned per reply and its errors are only logged. The call makes up to
// querierRetries attempts in total, sleeping timeout after each attempt
// that got zero replies; if none got a reply, AccessingQueryableError is
// returned.
func (q *Querier) Get(msg wire.Message, cb ReplyCallback) error {
	inline := cb != nil
	if cb == nil {
		cb = q.stored
	}

	for attempt := 0; attempt < querierRetries; attempt++ {
		received, err := q.getOnce(msg, cb, inline)
		if err != nil {
			return err
		}
		if received {
			return nil
		}
		time.Sleep(q.timeout)
	}
	return &core.AccessingQueryableError{Selector: q.selector}
}

func (q *Querier) getOnce(msg wire.Message, cb ReplyCallback, inline bool) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	replies, err := q.session.Get(ctx, q.selector, transport.GetOptions{
		Payload:       msg.Bytes(),
		Timeout:       q.timeout,
		Target:        q.target,
		Consolidation: q.consolidation,
	})
	if err != nil {
		return false, &core.QueryCreationError{Source: err}
	}

	received := false
	for reply := range replies {
		received = true
		if cb == nil {
			continue
		}
		if inline {
			if err := cb(wire.Message(reply.Sample.Payload)); err != nil {
				return false, &core.QueryCallbackError{Source: err}
			}
			continue
		}
		go func(payload []byte) {
			if err := cb(wire.Message(payload)); err != nil {
				logx.Debugf("querier %s: stored callback error: %s", q.selector, err)
			}
		}(reply.Sample.Payload)
	}
	return received, nil
}

func (q *Querier) Configure() error    { return core.HookStart(&q.BaseOperational, core.StateConfigured, q) }
func (q *Querier) Commission() error   { return core.HookStart(&q.BaseOperational, core.StateInactive, q) }
func (q *Querier) Wakeup() error       { return core.HookStart(&q.BaseOperational, core.StateStandby, q) }
func (q *Querier) Activate() error     { return core.HookStart(&q.BaseOperational, core.StateActive, q) }
func (q *Querier) Deactivate() error   { return core.HookStop(&q.BaseOperational, core.StateActive, q) }
func (q *Querier) Suspend() error      { return core.HookStop(&q.BaseOperational, core.StateStandby, q) }
func (q *Querier) Decommission() error { return core.HookStop(&q.BaseOperational, core.StateInactive, q) }
func (q *Querier) Deconfigure() error  { return core.HookStop(&q.BaseOperational, core.StateConfigured, q) }
