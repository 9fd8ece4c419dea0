// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package team

import (
	"sync"

	"github.com/concord-team/concord/primitives"
)

// UpdatedEvent reports that a Team's derived State was recomputed,
// either from a local mutation or from a Merge.
type UpdatedEvent struct {
	Head []primitives.Hash
}

// EventEmitter is a synchronous typed callback registry: every
// listener registered under a name is invoked, in registration order,
// on the calling goroutine when that name is emitted. Team uses it for
// "updated", and Connection layers "connected"/"joined"/"disconnected"
// on top of the same mechanism.
type EventEmitter struct {
	mu        sync.Mutex
	listeners map[string][]func(any)
}

// NewEventEmitter returns an empty emitter.
func NewEventEmitter() *EventEmitter {
	return &EventEmitter{listeners: make(map[string][]func(any))}
}

// On registers fn to be called every time name is emitted.
func (e *EventEmitter) On(name string, fn func(payload any)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[name] = append(e.listeners[name], fn)
}

// Emit invokes every listener registered for name, synchronously, in
// registration order, passing payload to each.
func (e *EventEmitter) Emit(name string, payload any) {
	e.mu.Lock()
	fns := append([]func(any){}, e.listeners[name]...)
	e.mu.Unlock()

	for _, fn := range fns {
		fn(payload)
	}
}
