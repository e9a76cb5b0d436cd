// Copyright 2018 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// MethodKind distinguishes the four handler shapes a server can register
// (spec §4.6). Unlike the teacher, which discovers methods by reflecting
// over a receiver's exported methods, handlers here are registered as
// plain Go function values -- the re-expression spec §9 asks for ("a value
// that maps (Params, Extensions) to a future of a Response, stored behind
// a uniform calling interface").
type MethodKind int

const (
	// KindSync handlers run inline on the calling goroutine; the spec
	// expects callers to mark genuinely CPU-bound work as blocking rather
	// than registering it here (spec §5).
	KindSync MethodKind = iota
	// KindAsync handlers take a context and are free to block on I/O;
	// there is no separate "future" type in Go: the dispatcher calls the
	// handler inline and waits for it to return (spec §9 "Async handler
	// abstraction").
	KindAsync
	// KindSubscription handlers drive a Sink and run for the life of the
	// subscription.
	KindSubscription
	// KindUnsubscription handlers are always reachable regardless of
	// subscription caps (spec §4.6).
	KindUnsubscription
)

// SyncHandler computes a result (or error) without blocking.
type SyncHandler func(id ID, params json.RawMessage, maxResponseSize int, ext *Extensions) (any, error)

// AsyncHandler computes a result (or error), potentially blocking on I/O;
// connID identifies the owning connection for logging/accounting.
type AsyncHandler func(ctx context.Context, id ID, params json.RawMessage, connID uint64, maxResponseSize int, ext *Extensions) (any, error)

// SubscriptionHandler drives sink for the lifetime of one subscription. It
// runs on its own goroutine after the subscribe call has already been
// acknowledged with the subscription id, so it cannot reject that call: a
// non-nil error return is logged and ends the subscription. Otherwise the
// handler runs until ctx is done or sink.Closed() fires.
type SubscriptionHandler func(ctx context.Context, id ID, params json.RawMessage, sink *Sink, ext *Extensions) error

// UnsubscriptionHandler tears a subscription down. The registry wires this
// automatically when RegisterSubscription is used; it is exposed directly
// only for handlers that want custom unsubscribe semantics.
type UnsubscriptionHandler func(id ID, params json.RawMessage, connID uint64, maxResponseSize int, ext *Extensions) (any, error)

type methodEntry struct {
	kind   MethodKind
	sync   SyncHandler
	async  AsyncHandler
	sub    SubscriptionHandler
	unsub  UnsubscriptionHandler
	costs  MethodCost
	subMtd string // for KindSubscription: the notification method name clients receive
}

// ServiceRegistry is the server's read-only (once serving starts) name ->
// handler map (spec §3 "Method registry"). It is safe to share by pointer
// across every connection.
type ServiceRegistry struct {
	mu      sync.RWMutex
	methods map[string]*methodEntry
}

// NewServiceRegistry returns an empty registry.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{methods: make(map[string]*methodEntry)}
}

func (r *ServiceRegistry) register(name string, e *methodEntry) error {
	if name == "" {
		return fmt.Errorf("rpc: method name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.methods[name]; exists {
		return fmt.Errorf("rpc: method %q already registered", name)
	}
	r.methods[name] = e
	return nil
}

// RegisterMethod registers a synchronous handler (spec §4.6 Sync).
func (r *ServiceRegistry) RegisterMethod(name string, h SyncHandler, costs MethodCost) error {
	return r.register(name, &methodEntry{kind: KindSync, sync: h, costs: costs})
}

// RegisterAsyncMethod registers an asynchronous handler (spec §4.6 Async).
func (r *ServiceRegistry) RegisterAsyncMethod(name string, h AsyncHandler, costs MethodCost) error {
	return r.register(name, &methodEntry{kind: KindAsync, async: h, costs: costs})
}

// RegisterSubscription registers a subscribe/unsubscribe pair under the
// given method names, and the notification method name used in outgoing
// subscription-notification envelopes (spec §4.7).
func (r *ServiceRegistry) RegisterSubscription(subscribeMethod, unsubscribeMethod, notificationMethod string, h SubscriptionHandler) error {
	if err := r.register(subscribeMethod, &methodEntry{kind: KindSubscription, sub: h, subMtd: notificationMethod}); err != nil {
		return err
	}
	unsub := &methodEntry{kind: KindUnsubscription, unsub: builtinUnsubscribe(unsubscribeMethod)}
	return r.register(unsubscribeMethod, unsub)
}

// RegisterUnsubscription registers a custom unsubscribe handler, for
// callers that don't want the automatic one RegisterSubscription installs.
func (r *ServiceRegistry) RegisterUnsubscription(name string, h UnsubscriptionHandler) error {
	return r.register(name, &methodEntry{kind: KindUnsubscription, unsub: h})
}

func (r *ServiceRegistry) lookup(name string) (*methodEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.methods[name]
	return e, ok
}

// Modules lists the distinct namespaces (the prefix before the first '_')
// of every registered method, each reported at version "1.0" -- the
// rpc_modules introspection call spec.md's teacher exposed as
// RPCService.Modules (rpc/server.go), now generalized to whatever methods
// were actually registered instead of being tied to struct receivers.
func (r *ServiceRegistry) Modules() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mods := make(map[string]string)
	for name := range r.methods {
		ns := name
		if i := strings.IndexByte(name, '_'); i > 0 {
			ns = name[:i]
		}
		mods[ns] = "1.0"
	}
	return mods
}

// builtinUnsubscribe is installed automatically by RegisterSubscription; the
// actual teardown happens in the subscription engine (conn.go), which has
// access to the per-connection subscription table this package-level
// function cannot see. It returns nil, and dispatcher.unsubscribe treats a
// nil handler as the signal to tear the subscription down itself.
func builtinUnsubscribe(_ string) UnsubscriptionHandler {
	return nil
}
