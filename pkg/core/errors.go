package core

import "fmt"

// NotImplementedError is returned when a capability the caller asked for was
// never configured on the entity (e.g. Context.Put with no publisher and no
// ad-hoc transport path available).
type NotImplementedError struct {
	What string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("not implemented: %s", e.What)
}

// NoTransportSessionError is a lookup miss in the session registry.
type NoTransportSessionError struct {
	ID string
}

func (e *NoTransportSessionError) Error() string {
	return fmt.Sprintf("no transport session for id %q", e.ID)
}

// InvalidSelectorError means a declared selector cannot be resolved.
type InvalidSelectorError struct {
	Which string
}

func (e *InvalidSelectorError) Error() string {
	return fmt.Sprintf("invalid selector: %s", e.Which)
}

// MutexPoisonError marks a lock as unrecoverable at the named call site.
type MutexPoisonError struct {
	Site string
}

func (e *MutexPoisonError) Error() string {
	return fmt.Sprintf("poisoned lock at %s", e.Site)
}

// AccessPublisherError is returned when put/delete is called on a publisher
// before it has reached its activation state.
type AccessPublisherError struct {
	Selector string
}

func (e *AccessPublisherError) Error() string {
	return fmt.Sprintf("publisher %q not initialized", e.Selector)
}

// PublishingPutError wraps a transport failure during a put.
type PublishingPutError struct {
	Source error
}

func (e *PublishingPutError) Error() string { return fmt.Sprintf("publishing put: %s", e.Source) }
func (e *PublishingPutError) Unwrap() error { return e.Source }

// PublishingDeleteError wraps a transport failure during a delete.
type PublishingDeleteError struct {
	Source error
}

func (e *PublishingDeleteError) Error() string {
	return fmt.Sprintf("publishing delete: %s", e.Source)
}
func (e *PublishingDeleteError) Unwrap() error { return e.Source }

// QueryCreationError wraps a failure declaring or issuing a query.
type QueryCreationError struct {
	Source error
}

func (e *QueryCreationError) Error() string { return fmt.Sprintf("query creation: %s", e.Source) }
func (e *QueryCreationError) Unwrap() error { return e.Source }

// QueryCallbackError wraps a failure inside a reply callback.
type QueryCallbackError struct {
	Source error
}

func (e *QueryCallbackError) Error() string { return fmt.Sprintf("query callback: %s", e.Source) }
func (e *QueryCallbackError) Unwrap() error { return e.Source }

// SubscriberCreationError wraps a failure declaring a subscriber.
type SubscriberCreationError struct {
	Source error
}

func (e *SubscriberCreationError) Error() string {
	return fmt.Sprintf("subscriber creation: %s", e.Source)
}
func (e *SubscriberCreationError) Unwrap() error { return e.Source }

// SubscriberCallbackError wraps a failure inside a put/delete callback.
type SubscriberCallbackError struct {
	Source error
}

func (e *SubscriberCallbackError) Error() string {
	return fmt.Sprintf("subscriber callback: %s", e.Source)
}
func (e *SubscriberCallbackError) Unwrap() error { return e.Source }

// AccessingQueryableError means a get round trip — whether through a
// registered Querier or Context's ad-hoc no-querier path — exhausted its
// retries with zero replies.
type AccessingQueryableError struct {
	Selector string
}

func (e *AccessingQueryableError) Error() string {
	return fmt.Sprintf("accessing queryable %q: retries exhausted", e.Selector)
}

// AccessingObservableError means an observer's request/cancel round trip
// exceeded its timeout budget.
type AccessingObservableError struct {
	Selector string
}

func (e *AccessingObservableError) Error() string {
	return fmt.Sprintf("accessing observable %q: timed out", e.Selector)
}

// UnknownOperationStateError is a parse failure of a state name.
type UnknownOperationStateError struct {
	State string
}

func (e *UnknownOperationStateError) Error() string {
	return fmt.Sprintf("unknown operation state %q", e.State)
}

// ManageStateError marks a forbidden transition request (e.g. from Error, or
// skipping past Active).
type ManageStateError struct {
	Detail string
}

func (e *ManageStateError) Error() string {
	if e.Detail == "" {
		return "forbidden state transition"
	}
	return fmt.Sprintf("forbidden state transition: %s", e.Detail)
}

// DecodingError wraps a codec failure.
type DecodingError struct {
	Source error
}

func (e *DecodingError) Error() string { return fmt.Sprintf("decoding: %s", e.Source) }
func (e *DecodingError) Unwrap() error { return e.Source }

// ReplyError wraps a failure sending a query reply.
type ReplyError struct {
	Source error
}

func (e *ReplyError) Error() string { return fmt.Sprintf("reply: %s", e.Source) }
func (e *ReplyError) Unwrap() error { return e.Source }
