// Package transport defines the collaborator contract the core consumes but
// does not provide: a content-addressed pub/sub session with put/delete,
// request/reply (get), publisher/subscriber/queryable declarations, and
// liveliness tokens. pkg/transport/nats backs it with NATS.
package transport

import (
	"context"
	"time"
)

// SampleKind distinguishes a put sample from a delete sample.
type SampleKind int

const (
	SamplePut SampleKind = iota
	SampleDelete
)

// Sample is a single pub/sub delivery.
type Sample struct {
	Kind    SampleKind
	KeyExpr string
	Payload []byte
}

// Query is handed to a queryable's callback for each incoming request.
type Query interface {
	// Parameters returns the raw `?key=value&...` parameter string.
	Parameters() string
	// Payload returns the request body, if any.
	Payload() ([]byte, bool)
	// KeyExpr returns the selector the query was sent on.
	KeyExpr() string
	// Reply sends one reply sample back to the requester.
	Reply(key string, payload []byte) error
}

// ConsolidationMode controls how a Get's multiple replies are merged.
type ConsolidationMode int

const (
	// ConsolidationNone keeps every reply, the default: "all replies".
	ConsolidationNone ConsolidationMode = iota
	ConsolidationLatest
	ConsolidationMonotonic
)

// Target selects which and how many queryables a Get should address.
type Target int

const (
	TargetAll Target = iota
	TargetFirst
	TargetBestMatching
)

// GetOptions configures a single Get call.
type GetOptions struct {
	Payload       []byte
	Timeout       time.Duration
	Target        Target
	Consolidation ConsolidationMode
}

// Reply is one response to a Get, tagged with the replier's identity when
// the transport can supply one (used for observation feedback-selector
// correlation; see spec.md §4.8.2).
type Reply struct {
	Sample    Sample
	ReplierID string
}

// PublisherOptions configures a declared publisher.
type PublisherOptions struct {
	CongestionControl CongestionControl
	Priority          Priority
	Express           bool
}

type CongestionControl int

const (
	CongestionDrop CongestionControl = iota
	CongestionBlock
)

type Priority int

const (
	PriorityRealTime Priority = iota
	PriorityDefault
)

// Publisher is a held transport handle bound to a selector.
type Publisher interface {
	Put(payload []byte) error
	Delete() error
	KeyExpr() string
	Undeclare() error
}

// Subscriber delivers Samples on Samples() until Undeclare is called.
type Subscriber interface {
	Samples() <-chan Sample
	Undeclare() error
}

// Queryable delivers Querys on Queries() until Undeclare is called.
type Queryable interface {
	Queries() <-chan Query
	Undeclare() error
}

// LivelinessToken is held until the owning agent drops or downgrades it.
type LivelinessToken interface {
	Undeclare() error
}

// LivelinessSubscriber delivers liveliness Put/Delete samples.
type LivelinessSubscriber interface {
	Samples() <-chan Sample
	Undeclare() error
}

// Liveliness is the liveliness-token sub-API of a Session.
type Liveliness interface {
	DeclareToken(name string) (LivelinessToken, error)
	DeclareSubscriber(pattern string) (LivelinessSubscriber, error)
	// Get performs a single bounded liveliness listing matching pattern.
	Get(ctx context.Context, pattern string, timeout time.Duration) ([]string, error)
}

// Session is the transport collaborator contract of spec.md §6. The core
// packages (pkg/com, pkg/observation, pkg/admin) consume only this
// interface; pkg/transport/nats is the concrete backing implementation.
type Session interface {
	// Zid returns this session's unique identity.
	Zid() string
	Put(selector string, payload []byte) error
	Delete(selector string) error
	// Get issues a request and returns a channel of replies, closed when the
	// configured timeout elapses or ctx is canceled.
	Get(ctx context.Context, selector string, opts GetOptions) (<-chan Reply, error)
	DeclarePublisher(selector string, opts PublisherOptions) (Publisher, error)
	DeclareSubscriber(selector string) (Subscriber, error)
	DeclareQueryable(selector string, complete bool) (Queryable, error)
	// DeclareKeyexpr validates that selector can be used as a transport
	// subject/key expression, without declaring any resource.
	DeclareKeyexpr(selector string) error
	Liveliness() Liveliness
	Close() error
}
