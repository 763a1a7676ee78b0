// Package com implements the endpoint registries and the publisher,
// subscriber, querier, queryable, and liveliness endpoint types (C4-C7).
package com

import (
	"sync"

	"dimas/pkg/core"
)

// Registry is a selector-keyed table of one endpoint kind. All six
// endpoint registries (publishers, subscribers, queriers, queryables,
// observables, observers) plus the timer table share this shape.
type Registry[T core.Capability] struct {
	mu      sync.RWMutex
	entries map[string]T
}

func NewRegistry[T core.Capability]() *Registry[T] {
	return &Registry[T]{entries: make(map[string]T)}
}

func (r *Registry[T]) Insert(selector string, entry T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[selector] = entry
}

func (r *Registry[T]) Get(selector string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[selector]
	return e, ok
}

// Remove drives the entry's state down to StateCreated (tearing down its
// transport handle and background task via the downward walk) and then
// deletes it from the table.
func (r *Registry[T]) Remove(selector string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[selector]
	if !ok {
		return nil
	}
	err := core.ManageOperationState(e, core.StateCreated)
	delete(r.entries, selector)
	return err
}

// Selectors returns every registered selector, in no particular order.
func (r *Registry[T]) Selectors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for k := range r.entries {
		out = append(out, k)
	}
	return out
}

// Each invokes fn for every registered entry. fn must not call back into
// the registry (Insert/Remove) while iterating.
func (r *Registry[T]) Each(fn func(selector string, entry T)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for k, v := range r.entries {
		fn(k, v)
	}
}
