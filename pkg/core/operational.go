package core

import "sync"

// Transitions are the eight lifecycle hooks invoked while walking the
// operational-state ladder. Entities embed NoopTransitions and override only
// the hooks they need; the rest default to no-ops.
type Transitions interface {
	Configure() error
	Commission() error
	Wakeup() error
	Activate() error
	Deactivate() error
	Suspend() error
	Decommission() error
	Deconfigure() error
}

// NoopTransitions is embedded by entities that only need some of the eight
// hooks; the others fall back to doing nothing.
type NoopTransitions struct{}

func (NoopTransitions) Configure() error    { return nil }
func (NoopTransitions) Commission() error   { return nil }
func (NoopTransitions) Wakeup() error       { return nil }
func (NoopTransitions) Activate() error     { return nil }
func (NoopTransitions) Deactivate() error   { return nil }
func (NoopTransitions) Suspend() error      { return nil }
func (NoopTransitions) Decommission() error { return nil }
func (NoopTransitions) Deconfigure() error  { return nil }

// Capability is the uniform lifecycle interface every endpoint (publisher,
// subscriber, querier, queryable, observable, observer, liveliness
// subscriber, timer) implements.
type Capability interface {
	Transitions
	// State returns the entity's current operational state.
	State() OperationState
	// SetState overwrites the stored state. Only ManageOperationState should
	// call this outside of construction.
	SetState(OperationState)
	// ActivationState returns the threshold at which the entity must be
	// running. Immutable after construction.
	ActivationState() OperationState
}

// BaseOperational is embedded by every Capability implementation to provide
// the state/activation bookkeeping; it does not itself implement Transitions.
type BaseOperational struct {
	mu              sync.RWMutex
	state           OperationState
	activationState OperationState
}

// NewBaseOperational constructs a BaseOperational in StateCreated with the
// given activation threshold.
func NewBaseOperational(activation OperationState) BaseOperational {
	return BaseOperational{state: StateCreated, activationState: activation}
}

func (b *BaseOperational) State() OperationState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *BaseOperational) SetState(s OperationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = s
}

func (b *BaseOperational) ActivationState() OperationState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.activationState
}

// DesiredState maps a parent's state to the state this entity should adopt,
// clamped to [StateCreated, StateActive] using the offset
// StateActive - ActivationState. An entity with a lower activation threshold
// than its parent tracks the parent's state proportionally rather than
// identically.
func (b *BaseOperational) DesiredState(parent OperationState) OperationState {
	diff := int32(StateActive) - int32(b.ActivationState())
	desired := int32(parent) + diff
	if desired < int32(StateCreated) {
		desired = int32(StateCreated)
	}
	if desired > int32(StateActive) {
		desired = int32(StateActive)
	}
	return OperationState(desired)
}

// StartStopper is implemented by endpoints whose background task/transport
// handle needs to come up exactly when their activation threshold is
// reached, and go down exactly when it is left, regardless of which rung of
// the ladder that threshold happens to sit on.
type StartStopper interface {
	Start() error
	Stop() error
}

// HookStart is shared glue for the four upward transition hooks
// (Configure/Commission/Wakeup/Activate): it starts ss iff reachedRung is
// exactly this entity's activation threshold, so an endpoint configured
// with a lower threshold than StateActive still starts at the right rung
// instead of only ever at Activate.
func HookStart(b *BaseOperational, reachedRung OperationState, ss StartStopper) error {
	if b.ActivationState() == reachedRung {
		return ss.Start()
	}
	return nil
}

// HookStop is the downward-walk counterpart to HookStart.
func HookStop(b *BaseOperational, leavingRung OperationState, ss StartStopper) error {
	if b.ActivationState() == leavingRung {
		return ss.Stop()
	}
	return nil
}

// ManageOperationState walks c from its current state toward target one
// rung at a time, invoking the hook for each step and persisting the new
// state only after that hook succeeds. It never skips rungs. Error is
// reachable only through a privileged path, never through this walk; asking
// to walk from or to StateError is a ManageStateError.
func ManageOperationState(c Capability, target OperationState) error {
	if c.State() == StateError || target == StateError {
		return &ManageStateError{Detail: "Error state is not reachable via ManageOperationState"}
	}

	for c.State() < target {
		cur := c.State()
		var err error
		switch cur {
		case StateCreated:
			err = c.Configure()
		case StateConfigured:
			err = c.Commission()
		case StateInactive:
			err = c.Wakeup()
		case StateStandby:
			err = c.Activate()
		default:
			return &ManageStateError{Detail: "no upward transition from " + cur.String()}
		}
		if err != nil {
			return err
		}
		c.SetState(cur + 1)
	}

	for c.State() > target {
		cur := c.State()
		var err error
		switch cur {
		case StateActive:
			err = c.Deactivate()
		case StateStandby:
			err = c.Suspend()
		case StateInactive:
			err = c.Decommission()
		case StateConfigured:
			err = c.Deconfigure()
		default:
			return &ManageStateError{Detail: "no downward transition from " + cur.String()}
		}
		if err != nil {
			return err
		}
		c.SetState(cur - 1)
	}

	return nil
}
