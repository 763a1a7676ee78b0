// Package core defines the operational-state lattice, the capability
// interface every communication endpoint implements, the task-signal
// vocabulary used for crash-restart, selector composition, and the error
// kinds shared across the runtime.
package core

import (
	"fmt"
	"strings"
)

// OperationState is a totally ordered lifecycle state. Order is significant:
// comparisons between states use plain integer comparison, and Error sorts
// below Created so it is never reachable by the ordinary upward/downward walk.
type OperationState int32

const (
	// StateError is an exceptional state, reachable only via a privileged
	// entry/exit path, never via the ordinary ladder walk.
	StateError OperationState = iota - 1
	// StateCreated is the initial state of every new entity.
	StateCreated
	// StateConfigured means the entity has run its configure hook.
	StateConfigured
	// StateInactive means the entity reacts only to important messages.
	StateInactive
	// StateStandby means the entity has full situational awareness but does
	// not yet react.
	StateStandby
	// StateActive means the entity is fully operational.
	StateActive
)

// String renders the canonical, case-sensitive name of a state.
func (s OperationState) String() string {
	switch s {
	case StateError:
		return "Error"
	case StateCreated:
		return "Created"
	case StateConfigured:
		return "Configured"
	case StateInactive:
		return "Inactive"
	case StateStandby:
		return "Standby"
	case StateActive:
		return "Active"
	default:
		return fmt.Sprintf("OperationState(%d)", int32(s))
	}
}

// ParseOperationState parses a state name case-insensitively. It is the
// inverse of String for the five ladder states; Error is not a parseable
// name since it is never a valid transition target.
func ParseOperationState(name string) (OperationState, error) {
	switch strings.ToLower(name) {
	case "created":
		return StateCreated, nil
	case "configured":
		return StateConfigured, nil
	case "inactive":
		return StateInactive, nil
	case "standby":
		return StateStandby, nil
	case "active":
		return StateActive, nil
	default:
		return StateError, &UnknownOperationStateError{State: name}
	}
}
