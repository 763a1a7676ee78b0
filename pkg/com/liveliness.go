package com

import (
	"context"
	"time"

	"dimas/pkg/core"
	"dimas/pkg/logx"
	"dimas/pkg/transport"
)

const defaultLivelinessGetTimeout = 500 * time.Millisecond

// TokenAnnouncer holds this agent's own liveliness token declared for as
// long as the announcer stays at or above its activation threshold.
type TokenAnnouncer struct {
	core.BaseOperational

	name    string
	session transport.Session
	handle  transport.LivelinessToken
}

func NewTokenAnnouncer(name string, session transport.Session, activation core.OperationState) *TokenAnnouncer {
	return &TokenAnnouncer{
		BaseOperational: core.NewBaseOperational(activation),
		name:            name,
		session:         session,
	}
}

func (t *TokenAnnouncer) Start() error {
	if t.handle != nil {
		if err := t.handle.Undeclare(); err != nil {
			return err
		}
		t.handle = nil
	}
	h, err := t.session.Liveliness().DeclareToken(t.name)
	if err != nil {
		return err
	}
	t.handle = h
	return nil
}

func (t *TokenAnnouncer) Stop() error {
	if t.handle == nil {
		return nil
	}
	err := t.handle.Undeclare()
	t.handle = nil
	return err
}

func (t *TokenAnnouncer) Configure() error  { return core.HookStart(&t.BaseOperational, core.StateConfigured, t) }
func (t *TokenAnnouncer) Commission() error { return core.HookStart(&t.BaseOperational, core.StateInactive, t) }
func (t *TokenAnnouncer) Wakeup() error     { return core.HookStart(&t.BaseOperational, core.StateStandby, t) }
func (t *TokenAnnouncer) Activate() error   { return core.HookStart(&t.BaseOperational, core.StateActive, t) }
func (t *TokenAnnouncer) Deactivate() error { return core.HookStop(&t.BaseOperational, core.StateActive, t) }
func (t *TokenAnnouncer) Suspend() error    { return core.HookStop(&t.BaseOperational, core.StateStandby, t) }
func (t *TokenAnnouncer) Decommission() error {
	return core.HookStop(&t.BaseOperational, core.StateInactive, t)
}
func (t *TokenAnnouncer) Deconfigure() error {
	return core.HookStop(&t.BaseOperational, core.StateConfigured, t)
}

// LivelinessEvent reports one peer's token appearing or disappearing.
type LivelinessEvent struct {
	Alive bool
	Token string
}

// LivelinessCallback observes peer liveliness changes.
type LivelinessCallback func(LivelinessEvent) error

// LivelinessWatcher is a two-phase liveliness observer (C7): a bounded
// initial listing reports who is already alive, then a live subscription
// reports subsequent appear/disappear events. Events for this agent's own
// token are filtered out.
type LivelinessWatcher struct {
	core.BaseOperational

	pattern string
	self    string
	session transport.Session
	getTTL  time.Duration
	onEvent LivelinessCallback
	sender  chan<- core.TaskSignal

	handle transport.LivelinessSubscriber
	done   chan struct{}
}

func NewLivelinessWatcher(pattern, self string, session transport.Session, onEvent LivelinessCallback, sender chan<- core.TaskSignal, activation core.OperationState) *LivelinessWatcher {
	return &LivelinessWatcher{
		BaseOperational: core.NewBaseOperational(activation),
		pattern:         pattern,
		self:            self,
		session:         session,
		getTTL:          defaultLivelinessGetTimeout,
		onEvent:         onEvent,
		sender:          sender,
	}
}

func (w *LivelinessWatcher) Start() error {
	if err := w.stop(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.getTTL)
	tokens, err := w.session.Liveliness().Get(ctx, w.pattern, w.getTTL)
	cancel()
	if err != nil {
		return err
	}
	for _, tok := range tokens {
		w.report(LivelinessEvent{Alive: true, Token: tok})
	}

	h, err := w.session.Liveliness().DeclareSubscriber(w.pattern)
	if err != nil {
		return &core.SubscriberCreationError{Source: err}
	}
	w.handle = h
	w.done = make(chan struct{})
	go w.run(h, w.done)
	return nil
}

func (w *LivelinessWatcher) Stop() error { return w.stop() }

func (w *LivelinessWatcher) stop() error {
	if w.handle == nil {
		return nil
	}
	err := w.handle.Undeclare()
	w.handle = nil
	if w.done != nil {
		close(w.done)
		w.done = nil
	}
	return err
}

func (w *LivelinessWatcher) run(h transport.LivelinessSubscriber, done chan struct{}) {
	defer w.restartOnPanic()
	for {
		select {
		case <-done:
			return
		case sample, ok := <-h.Samples():
			if !ok {
				return
			}
			w.report(LivelinessEvent{Alive: sample.Kind == transport.SamplePut, Token: sample.KeyExpr})
		}
	}
}

func (w *LivelinessWatcher) report(ev LivelinessEvent) {
	if ev.Token == w.self {
		return
	}
	if w.onEvent == nil {
		return
	}
	if err := w.onEvent(ev); err != nil {
		logx.Debugf("liveliness %s: callback error: %s", w.pattern, err)
	}
}

// restartOnPanic is the watcher task's panic hook, mirroring Subscriber's.
func (w *LivelinessWatcher) restartOnPanic() {
	if r := recover(); r != nil {
		logx.Debugf("liveliness %s: panic, requesting restart: %v", w.pattern, r)
		if w.sender != nil {
			w.sender <- core.TaskSignal{Kind: core.RestartLiveliness, Selector: w.pattern}
		}
	}
}

func (w *LivelinessWatcher) Configure() error {
	return core.HookStart(&w.BaseOperational, core.StateConfigured, w)
}
func (w *LivelinessWatcher) Commission() error {
	return core.HookStart(&w.BaseOperational, core.StateInactive, w)
}
func (w *LivelinessWatcher) Wakeup() error   { return core.HookStart(&w.BaseOperational, core.StateStandby, w) }
func (w *LivelinessWatcher) Activate() error { return core.HookStart(&w.BaseOperational, core.StateActive, w) }
func (w *LivelinessWatcher) Deactivate() error {
	return core.HookStop(&w.BaseOperational, core.StateActive, w)
}
func (w *LivelinessWatcher) Suspend() error {
	return core.HookStop(&w.BaseOperational, core.StateStandby, w)
}
func (w *LivelinessWatcher) Decommission() error {
	return core.HookStop(&w.BaseOperational, core.StateInactive, w)
}
func (w *LivelinessWatcher) Deconfigure() error {
	return core.HookStop(&w.BaseOperational, core.StateConfigured, w)
}
