// Copyright 2016 The go-ethereum Authors
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
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// BoundedSubscriptions is a per-connection counting semaphore enforcing
// max_subscriptions_per_connection (spec §3, §4.7).
type BoundedSubscriptions struct {
	sem *semaphore.Weighted
}

// NewBoundedSubscriptions builds a bound with the given capacity. A
// capacity of 0 means unlimited.
func NewBoundedSubscriptions(max int) *BoundedSubscriptions {
	if max <= 0 {
		return &BoundedSubscriptions{}
	}
	return &BoundedSubscriptions{sem: semaphore.NewWeighted(int64(max))}
}

// SubscriptionPermit is released when the owning sink is dropped.
type SubscriptionPermit struct {
	sem *semaphore.Weighted
}

// TryAcquire reserves one subscription slot, or reports false if the
// connection is already at max_subscriptions_per_connection.
func (b *BoundedSubscriptions) TryAcquire() (*SubscriptionPermit, bool) {
	if b.sem == nil {
		return &SubscriptionPermit{}, true
	}
	if !b.sem.TryAcquire(1) {
		return nil, false
	}
	return &SubscriptionPermit{sem: b.sem}, true
}

// Release frees the slot. Safe to call at most once per permit.
func (p *SubscriptionPermit) Release() {
	if p == nil || p.sem == nil {
		return
	}
	p.sem.Release(1)
	p.sem = nil
}

// outbox is the shared per-connection outbound message queue the
// subscription Sink writes into (spec §9 "cyclic references": sinks hold a
// shared handle to this arena-style struct instead of a direct back
// reference to the connection).
type outbox struct {
	ch chan json.RawMessage
}

func newOutbox(capacity int) *outbox {
	if capacity <= 0 {
		capacity = 256
	}
	return &outbox{ch: make(chan json.RawMessage, capacity)}
}

// SinkStrategy controls what Send does when the outbound queue is full.
type SinkStrategy int

const (
	// SinkBlock awaits capacity (spec §4.7: "send is awaiting").
	SinkBlock SinkStrategy = iota
	// SinkDropOldest discards the oldest queued item to make room, the
	// wrapping strategy spec §4.7 explicitly leaves to implementations;
	// grounded on
	// original_source/examples/examples/client_subscription_drop_oldest_item.rs.
	SinkDropOldest
)

// ErrSinkFull is returned by TrySend when the strategy is SinkBlock and the
// queue has no free capacity.
var ErrSinkFull = errors.New("rpc: subscription sink is full")

// Sink is the server-side handle a subscription handler uses to push items
// (spec §4.6, §4.7).
type Sink struct {
	id        ID
	method    string // the subscription notification method name
	out       *outbox
	permit    *SubscriptionPermit
	maxMsg    int
	strategy  SinkStrategy
	closed    chan struct{}
	closeOnce sync.Once
}

func newSink(id ID, method string, out *outbox, permit *SubscriptionPermit, maxMsg int, strategy SinkStrategy) *Sink {
	return &Sink{id: id, method: method, out: out, permit: permit, maxMsg: maxMsg, strategy: strategy, closed: make(chan struct{})}
}

// ID returns the subscription id this sink was created for.
func (s *Sink) ID() ID { return s.id }

// Send serializes item into the subscription-notification envelope and
// enqueues it, blocking until there is room or the sink is closed.
func (s *Sink) Send(item any) error {
	payload, err := s.encode(item)
	if err != nil {
		return err
	}
	select {
	case s.out.ch <- payload:
		return nil
	case <-s.closed:
		return errSinkClosed
	}
}

// TrySend applies the configured SinkStrategy instead of blocking.
func (s *Sink) TrySend(item any) error {
	payload, err := s.encode(item)
	if err != nil {
		return err
	}
	select {
	case s.out.ch <- payload:
		return nil
	case <-s.closed:
		return errSinkClosed
	default:
	}
	if s.strategy == SinkDropOldest {
		select {
		case <-s.out.ch:
		default:
		}
		select {
		case s.out.ch <- payload:
			return nil
		default:
			return ErrSinkFull
		}
	}
	return ErrSinkFull
}

var errSinkClosed = errors.New("rpc: subscription sink closed")

func (s *Sink) encode(item any) (json.RawMessage, error) {
	result, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("rpc: marshal subscription item: %w", err)
	}
	if s.maxMsg > 0 && len(result) > s.maxMsg {
		return nil, &Error{Code: ErrCodeOversizedResponse, Message: "subscription payload exceeds max_response_size"}
	}
	params, err := json.Marshal(subscriptionNotificationParams{Subscription: s.id, Result: result})
	if err != nil {
		return nil, err
	}
	env := wireMessage{Version: Version, Method: s.method, Params: params}
	return json.Marshal(env)
}

// Closed returns a channel that is closed when the sink should stop
// accepting items: the connection is gone, or the client unsubscribed.
func (s *Sink) Closed() <-chan struct{} { return s.closed }

// Close tears the sink down: the permit is released and Closed() fires.
// Safe to call more than once.
func (s *Sink) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.permit.Release()
	})
}
