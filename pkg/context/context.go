// Package agentctx implements the per-agent shared Context handle (C3):
// prefix/name/uuid, the transport session registry, the task-signal sender,
// the guarded user-properties value, and the Put/Delete/Get/Observe
// operations every callback is given.
package agentctx

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"dimas/pkg/core"
	"dimas/pkg/transport"
	"dimas/pkg/wire"
)

// ReplyCallback receives one decoded reply to a Get call.
type ReplyCallback func(wire.Message) error

// Publishing is the minimal surface a stored publisher exposes to Context.
type Publishing interface {
	Put(msg wire.Message) error
	Delete() error
}

// Requesting is the minimal surface a stored querier exposes to Context.
type Requesting interface {
	Get(msg wire.Message, cb ReplyCallback) error
}

// Observing is the minimal surface a stored observer exposes to Context.
type Observing interface {
	Request(msg wire.Message) error
	Cancel() error
}

// Registries is implemented by pkg/com's endpoint registries. Context holds
// one, filled in by the Agent after both are constructed, breaking the
// Context/endpoint ownership cycle described in spec.md §9: endpoints never
// hold a back-pointer to the Agent, only to Context, and Context only
// exposes lookup slots rather than owning the registries itself.
type Registries interface {
	Publisher(selector string) (Publishing, bool)
	Querier(selector string) (Requesting, bool)
	Observer(selector string) (Observing, bool)
}

const (
	defaultGetTimeout = 200 * time.Millisecond
	getRetries        = 5
)

// Context is the shared, reference-counted handle injected into every
// callback. P is the type of the user properties guarded by its
// read/write lock.
type Context[P any] struct {
	prefix string
	name   string
	uuid   string

	sessMu   sync.RWMutex
	sessions map[string]transport.Session

	sender chan<- core.TaskSignal

	propsMu sync.RWMutex
	props   P

	state atomic.Int32

	regMu      sync.RWMutex
	registries Registries
}

// New constructs a Context in StateCreated with the given default transport
// session installed under the "default" session id.
func New[P any](prefix, name string, defaultSession transport.Session, sender chan<- core.TaskSignal, initial P) *Context[P] {
	c := &Context[P]{
		prefix:   prefix,
		name:     name,
		uuid:     uuid.NewString(),
		sessions: map[string]transport.Session{"default": defaultSession},
		sender:   sender,
		props:    initial,
	}
	c.state.Store(int32(core.StateCreated))
	return c
}

func (c *Context[P]) Prefix() string { return c.prefix }
func (c *Context[P]) Name() string   { return c.name }

// FQName is prefix/name, or just name if prefix is empty.
func (c *Context[P]) FQName() string { return core.SelectorFrom(c.name, c.prefix) }

func (c *Context[P]) UUID() string { return c.uuid }

func (c *Context[P]) State() core.OperationState {
	return core.OperationState(c.state.Load())
}

// SetState overwrites the stored state. Callers (the Agent's reconciliation
// walk) must already guarantee the invariant that Context never reports an
// intermediate, partially-reconciled state.
func (c *Context[P]) SetState(s core.OperationState) { c.state.Store(int32(s)) }

// Session looks up a transport session by id.
func (c *Context[P]) Session(id string) (transport.Session, bool) {
	c.sessMu.RLock()
	defer c.sessMu.RUnlock()
	s, ok := c.sessions[id]
	return s, ok
}

// DefaultSession returns the "default" session, installed at construction.
func (c *Context[P]) DefaultSession() transport.Session {
	s, _ := c.Session("default")
	return s
}

// AddSession installs an additional named transport session.
func (c *Context[P]) AddSession(id string, s transport.Session) {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	c.sessions[id] = s
}

// Sender returns the send side of the task-signal channel background tasks
// post restart/shutdown requests to.
func (c *Context[P]) Sender() chan<- core.TaskSignal { return c.sender }

// SetRegistries installs the endpoint lookup tables used by Put/Get/Observe.
// Called once by the Agent after both Context and the registries exist.
func (c *Context[P]) SetRegistries(r Registries) {
	c.regMu.Lock()
	defer c.regMu.Unlock()
	c.registries = r
}

func (c *Context[P]) lookups() Registries {
	c.regMu.RLock()
	defer c.regMu.RUnlock()
	return c.registries
}

// Read returns a pointer to the guarded properties plus the function that
// must be called to release the read lock, e.g.:
//
//	props, done := ctx.Read()
//	defer done()
func (c *Context[P]) Read() (*P, func()) {
	c.propsMu.RLock()
	return &c.props, c.propsMu.RUnlock
}

// Write is the exclusive counterpart to Read.
func (c *Context[P]) Write() (*P, func()) {
	c.propsMu.Lock()
	return &c.props, c.propsMu.Unlock
}

// Put publishes msg on topic, prefixed by c.Prefix.
func (c *Context[P]) Put(topic string, msg wire.Message) error {
	return c.PutWith(core.SelectorFrom(topic, c.prefix), msg)
}

// PutWith publishes msg on the exact selector, skipping prefix composition.
// It uses a stored publisher if one is registered for selector, else falls
// back to an ad-hoc transport put on the default session.
func (c *Context[P]) PutWith(selector string, msg wire.Message) error {
	if regs := c.lookups(); regs != nil {
		if pub, ok := regs.Publisher(selector); ok {
			return pub.Put(msg)
		}
	}
	sess := c.DefaultSession()
	if sess == nil {
		return &core.NotImplementedError{What: "put: no transport session"}
	}
	if err := sess.Put(selector, msg.Bytes()); err != nil {
		return &core.PublishingPutError{Source: err}
	}
	return nil
}

// Delete mirrors Put for deletes.
func (c *Context[P]) Delete(topic string) error {
	return c.DeleteWith(core.SelectorFrom(topic, c.prefix))
}

func (c *Context[P]) DeleteWith(selector string) error {
	if regs := c.lookups(); regs != nil {
		if pub, ok := regs.Publisher(selector); ok {
			return pub.Delete()
		}
	}
	sess := c.DefaultSession()
	if sess == nil {
		return &core.NotImplementedError{What: "delete: no transport session"}
	}
	if err := sess.Delete(selector); err != nil {
		return &core.PublishingDeleteError{Source: err}
	}
	return nil
}

// Get issues a request for topic. If a querier is registered for the
// prefixed selector it is used (with its own configured retry policy); a
// non-nil cb overrides the querier's stored callback for this one call.
// Otherwise an ad-hoc get is performed directly against the default
// session, with up to getRetries attempts in total, sleeping
// defaultGetTimeout after each attempt that got zero replies.
func (c *Context[P]) Get(topic string, msg wire.Message, cb ReplyCallback) error {
	return c.GetWith(core.SelectorFrom(topic, c.prefix), msg, cb)
}

func (c *Context[P]) GetWith(selector string, msg wire.Message, cb ReplyCallback) error {
	if regs := c.lookups(); regs != nil {
		if q, ok := regs.Querier(selector); ok {
			return q.Get(msg, cb)
		}
	}
	return c.adHocGet(selector, msg, cb)
}

func (c *Context[P]) adHocGet(selector string, msg wire.Message, cb ReplyCallback) error {
	sess := c.DefaultSession()
	if sess == nil {
		return &core.NotImplementedError{What: "get: no transport session"}
	}

	for attempt := 0; attempt < getRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), defaultGetTimeout)
		replies, err := sess.Get(ctx, selector, transport.GetOptions{
			Payload:       msg.Bytes(),
			Timeout:       defaultGetTimeout,
			Target:        transport.TargetAll,
			Consolidation: transport.ConsolidationNone,
		})
		if err != nil {
			cancel()
			return &core.QueryCreationError{Source: err}
		}

		received := false
		for reply := range replies {
			received = true
			if cb != nil {
				if err := cb(wire.Message(reply.Sample.Payload)); err != nil {
					cancel()
					return &core.QueryCallbackError{Source: err}
				}
			}
		}
		cancel()
		if received {
			return nil
		}
		time.Sleep(defaultGetTimeout)
	}

	return &core.AccessingQueryableError{Selector: selector}
}

// Observe starts an observation via the stored observer for topic.
func (c *Context[P]) Observe(topic string, msg wire.Message) error {
	return c.ObserveWith(core.SelectorFrom(topic, c.prefix), msg)
}

func (c *Context[P]) ObserveWith(selector string, msg wire.Message) error {
	regs := c.lookups()
	if regs == nil {
		return &core.NotImplementedError{What: "observe: no registries installed"}
	}
	obs, ok := regs.Observer(selector)
	if !ok {
		return &core.NotImplementedError{What: "observe: no observer for " + selector}
	}
	return obs.Request(msg)
}

// CancelObserve cancels a running observation for topic.
func (c *Context[P]) CancelObserve(topic string) error {
	return c.CancelObserveWith(core.SelectorFrom(topic, c.prefix))
}

func (c *Context[P]) CancelObserveWith(selector string) error {
	regs := c.lookups()
	if regs == nil {
		return &core.NotImplementedError{What: "cancel_observe: no registries installed"}
	}
	obs, ok := regs.Observer(selector)
	if !ok {
		return &core.NotImplementedError{What: "cancel_observe: no observer for " + selector}
	}
	return obs.Cancel()
}
