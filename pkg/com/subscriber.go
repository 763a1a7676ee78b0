package com

import (
	"sync"

	"dimas/pkg/core"
	"dimas/pkg/logx"
	"dimas/pkg/transport"
	"dimas/pkg/wire"
)

// PutCallback handles a received put sample.
type PutCallback func(wire.Message) error

// DeleteCallback handles a received delete sample.
type DeleteCallback func() error

// Subscriber is an async put/delete receiver (C5). Callbacks for one
// subscriber are serialized via an exclusive lock; distinct subscribers do
// not synchronize with each other.
type Subscriber struct {
	core.BaseOperational

	selector string
	session  transport.Session
	onPut    PutCallback
	onDelete DeleteCallback
	sender   chan<- core.TaskSignal

	mu     sync.Mutex // serializes callback dispatch
	handle transport.Subscriber
	done   chan struct{}
}

func NewSubscriber(selector string, session transport.Session, onPut PutCallback, onDelete DeleteCallback, sender chan<- core.TaskSignal, activation core.OperationState) *Subscriber {
	return &Subscriber{
		BaseOperational: core.NewBaseOperational(activation),
		selector:        selector,
		session:         session,
		onPut:           onPut,
		onDelete:        onDelete,
		sender:          sender,
	}
}

func (s *Subscriber) Selector() string { return s.selector }

func (s *Subscriber) Start() error {
	if err := s.stopLocked(); err != nil {
		return err
	}
	h, err := s.session.DeclareSubscriber(s.selector)
	if err != nil {
		return &core.SubscriberCreationError{Source: err}
	}
	s.handle = h
	s.done = make(chan struct{})
	go s.run(h, s.done)
	return nil
}

func (s *Subscriber) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Subscriber) stopLocked() error {
	if s.handle == nil {
		return nil
	}
	err := s.handle.Undeclare()
	s.handle = nil
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	return err
}

func (s *Subscriber) run(h transport.Subscriber, done chan struct{}) {
	defer s.restartOnPanic()
	for {
		select {
		case <-done:
			return
		case sample, ok := <-h.Samples():
			if !ok {
				return
			}
			s.dispatch(sample)
		}
	}
}

func (s *Subscriber) dispatch(sample transport.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch sample.Kind {
	case transport.SamplePut:
		if s.onPut == nil {
			return
		}
		if err := s.onPut(wire.Message(sample.Payload)); err != nil {
			logx.Debugf("subscriber %s: put callback error: %s", s.selector, err)
		}
	case transport.SampleDelete:
		if s.onDelete == nil {
			return
		}
		if err := s.onDelete(); err != nil {
			logx.Debugf("subscriber %s: delete callback error: %s", s.selector, err)
		}
	}
}

// restartOnPanic is the subscriber task's panic hook: it posts a
// RestartSubscriber signal before the goroutine unwinds, per spec.md §4.4.
func (s *Subscriber) restartOnPanic() {
	if r := recover(); r != nil {
		logx.Debugf("subscriber %s: panic, requesting restart: %v", s.selector, r)
		if s.sender != nil {
			s.sender <- core.TaskSignal{Kind: core.RestartSubscriber, Selector: s.selector}
		}
	}
}

func (s *Subscriber) Configure() error    { return core.HookStart(&s.BaseOperational, core.StateConfigured, s) }
func (s *Subscriber) Commission() error   { return core.HookStart(&s.BaseOperational, core.StateInactive, s) }
func (s *Subscriber) Wakeup() error       { return core.HookStart(&s.BaseOperational, core.StateStandby, s) }
func (s *Subscriber) Activate() error     { return core.HookStart(&s.BaseOperational, core.StateActive, s) }
func (s *Subscriber) Deactivate() error   { return core.HookStop(&s.BaseOperational, core.StateActive, s) }
func (s *Subscriber) Suspend() error      { return core.HookStop(&s.BaseOperational, core.StateStandby, s) }
func (s *Subscriber) Decommission() error { return core.HookStop(&s.BaseOperational, core.StateInactive, s) }
func (s *Subscriber) Deconfigure() error  { return core.HookStop(&s.BaseOperational, core.StateConfigured, s) }
