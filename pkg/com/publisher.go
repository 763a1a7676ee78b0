package com

import (
	"sync"

	"dimas/pkg/core"
	"dimas/pkg/transport"
	"dimas/pkg/wire"
)

// Publisher is a put/delete message sender (C5). It declares its transport
// publisher handle when its activation threshold is reached and drops it
// when left.
type Publisher struct {
	core.BaseOperational

	selector string
	session  transport.Session
	opts     transport.PublisherOptions

	mu     sync.Mutex
	handle transport.Publisher
}

// NewPublisher constructs a Publisher in StateCreated with the given
// activation threshold (defaulting callers should pass core.StateActive).
func NewPublisher(selector string, session transport.Session, opts transport.PublisherOptions, activation core.OperationState) *Publisher {
	return &Publisher{
		BaseOperational: core.NewBaseOperational(activation),
		selector:        selector,
		session:         session,
		opts:            opts,
	}
}

func (p *Publisher) Selector() string { return p.selector }

// Start declares the transport publisher. Idempotent: calling it while
// already running first stops.
func (p *Publisher) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handle != nil {
		if err := p.handle.Undeclare(); err != nil {
			return err
		}
		p.handle = nil
	}
	h, err := p.session.DeclarePublisher(p.selector, p.opts)
	if err != nil {
		return err
	}
	p.handle = h
	return nil
}

// Stop is idempotent.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handle == nil {
		return nil
	}
	err := p.handle.Undeclare()
	p.handle = nil
	return err
}

// Put sends a put; fails with AccessPublisherError before init.
func (p *Publisher) Put(msg wire.Message) error {
	p.mu.Lock()
	h := p.handle
	p.mu.Unlock()
	if h == nil {
		return &core.AccessPublisherError{Selector: p.selector}
	}
	if err := h.Put(msg.Bytes()); err != nil {
		return &core.PublishingPutError{Source: err}
	}
	return nil
}

// Delete sends a delete; fails with AccessPublisherError before init.
func (p *Publisher) Delete() error {
	p.mu.Lock()
	h := p.handle
	p.mu.Unlock()
	if h == nil {
		return &core.AccessPublisherError{Selector: p.selector}
	}
	if err := h.Delete(); err != nil {
		return &core.PublishingDeleteError{Source: err}
	}
	return nil
}

func (p *Publisher) Configure() error    { return core.HookStart(&p.BaseOperational, core.StateConfigured, p) }
func (p *Publisher) Commission() error   { return core.HookStart(&p.BaseOperational, core.StateInactive, p) }
func (p *Publisher) Wakeup() error       { return core.HookStart(&p.BaseOperational, core.StateStandby, p) }
func (p *Publisher) Activate() error     { return core.HookStart(&p.BaseOperational, core.StateActive, p) }
func (p *Publisher) Deactivate() error   { return core.HookStop(&p.BaseOperational, core.StateActive, p) }
func (p *Publisher) Suspend() error      { return core.HookStop(&p.BaseOperational, core.StateStandby, p) }
func (p *Publisher) Decommission() error { return core.HookStop(&p.BaseOperational, core.StateInactive, p) }
func (p *Publisher) Deconfigure() error  { return core.HookStop(&p.BaseOperational, core.StateConfigured, p) }
