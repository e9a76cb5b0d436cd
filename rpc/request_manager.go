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
	"fmt"
	"time"
)

// RequestStatus reports which of the request manager's call and
// subscription maps (spec §3, §4.3) an id currently lives in; the
// pending-batch map is not consulted.
type RequestStatus int

const (
	StatusUnknown RequestStatus = iota
	StatusPendingCall
	StatusPendingSubscription
	StatusActiveSubscription
)

type pendingCall struct {
	reply    chan *Response
	deadline time.Time
}

type pendingSubscription struct {
	reply      chan subscribeOutcome
	unsubMethod string
}

type subscribeOutcome struct {
	subID ID
	items <-chan json.RawMessage
	err   error
}

type activeSubscription struct {
	items       chan json.RawMessage
	unsubMethod string
	callID      ID
}

type pendingBatch struct {
	reply     chan []*Response
	order     []string
	remaining map[string]bool
	collected map[string]*Response
}

// requestManager is the client's purely in-memory bookkeeping (spec §3,
// §4.3): no I/O happens here, only map transitions. It is owned by exactly
// one goroutine, the client's background task (spec §5).
type requestManager struct {
	idProvider IDProvider

	pendingCalls         map[string]*pendingCall
	pendingSubscriptions map[string]*pendingSubscription
	activeSubscriptions  map[string]*activeSubscription
	pendingBatches       map[string]*pendingBatch
}

func newRequestManager(idProvider IDProvider) *requestManager {
	return &requestManager{
		idProvider:           idProvider,
		pendingCalls:         make(map[string]*pendingCall),
		pendingSubscriptions: make(map[string]*pendingSubscription),
		activeSubscriptions:  make(map[string]*activeSubscription),
		pendingBatches:       make(map[string]*pendingBatch),
	}
}

func idKey(id ID) string { return id.String() }

// nextRequestID hands out a fresh id from the configured provider. Callers
// may invoke this from any goroutine: unlike the rest of requestManager, it
// touches only the IDProvider, which its interface contract requires to be
// concurrency-safe (idprovider.go), not the single-owner bookkeeping maps.
func (m *requestManager) nextRequestID() (ID, error) {
	return m.idProvider.NextID(), nil
}

func (m *requestManager) requestStatus(id ID) RequestStatus {
	k := idKey(id)
	switch {
	case m.pendingCalls[k] != nil:
		return StatusPendingCall
	case m.pendingSubscriptions[k] != nil:
		return StatusPendingSubscription
	case m.activeSubscriptions[k] != nil:
		return StatusActiveSubscription
	default:
		return StatusUnknown
	}
}

func (m *requestManager) insertPendingCall(id ID, reply chan *Response, deadline time.Time) error {
	k := idKey(id)
	if m.requestStatus(id) != StatusUnknown {
		return fmt.Errorf("rpc: id %s already in use", k)
	}
	m.pendingCalls[k] = &pendingCall{reply: reply, deadline: deadline}
	return nil
}

// expireTimedOutCalls fails and removes every pending call whose deadline
// has elapsed, returning how many were reaped (spec §4.4 "Timeout tick").
func (m *requestManager) expireTimedOutCalls(now time.Time) int {
	n := 0
	for k, op := range m.pendingCalls {
		if op.deadline.IsZero() || now.Before(op.deadline) {
			continue
		}
		delete(m.pendingCalls, k)
		op.reply <- &Response{Error: &Error{Code: ErrCodeInternal, Message: ErrRequestTimeout.Error()}}
		close(op.reply)
		n++
	}
	return n
}

func (m *requestManager) insertPendingSubscription(id ID, reply chan subscribeOutcome, unsubMethod string) error {
	k := idKey(id)
	if m.requestStatus(id) != StatusUnknown {
		return fmt.Errorf("rpc: id %s already in use", k)
	}
	m.pendingSubscriptions[k] = &pendingSubscription{reply: reply, unsubMethod: unsubMethod}
	return nil
}

func (m *requestManager) insertActiveSubscription(callID, subID ID, items chan json.RawMessage, unsubMethod string) error {
	k := idKey(subID)
	if _, exists := m.activeSubscriptions[k]; exists {
		return ErrInvalidSubscriptionID
	}
	m.activeSubscriptions[k] = &activeSubscription{items: items, unsubMethod: unsubMethod, callID: callID}
	return nil
}

func (m *requestManager) completePendingCall(id ID) (*pendingCall, bool) {
	k := idKey(id)
	op, ok := m.pendingCalls[k]
	if ok {
		delete(m.pendingCalls, k)
	}
	return op, ok
}

func (m *requestManager) completePendingSubscription(id ID) (*pendingSubscription, bool) {
	k := idKey(id)
	op, ok := m.pendingSubscriptions[k]
	if ok {
		delete(m.pendingSubscriptions, k)
	}
	return op, ok
}

func (m *requestManager) subscriptionSender(subID ID) (chan<- json.RawMessage, bool) {
	sub, ok := m.activeSubscriptions[idKey(subID)]
	if !ok {
		return nil, false
	}
	return sub.items, true
}

func (m *requestManager) removeSubscription(subID ID) (*activeSubscription, bool) {
	k := idKey(subID)
	sub, ok := m.activeSubscriptions[k]
	if ok {
		delete(m.activeSubscriptions, k)
	}
	return sub, ok
}

func (m *requestManager) insertPendingBatch(rootID ID, memberIDs []ID, reply chan []*Response) {
	order := make([]string, len(memberIDs))
	remaining := make(map[string]bool, len(memberIDs))
	for i, id := range memberIDs {
		k := idKey(id)
		order[i] = k
		remaining[k] = true
		// batch members are individually tracked as pending calls too, so
		// handleResponse can find the batch via the per-member id.
	}
	m.pendingBatches[idKey(rootID)] = &pendingBatch{
		reply:     reply,
		order:     order,
		remaining: remaining,
		collected: make(map[string]*Response, len(memberIDs)),
	}
}

// drainAll fails every outstanding call, subscription ack and batch with
// err; used on shutdown and on TransportError (spec §4.4 "Shutdown").
func (m *requestManager) drainAll(err error) {
	for k, op := range m.pendingCalls {
		delete(m.pendingCalls, k)
		op.reply <- &Response{Error: &Error{Code: ErrCodeInternal, Message: err.Error()}}
		close(op.reply)
	}
	for k, op := range m.pendingSubscriptions {
		delete(m.pendingSubscriptions, k)
		op.reply <- subscribeOutcome{err: err}
		close(op.reply)
	}
	for k, sub := range m.activeSubscriptions {
		delete(m.activeSubscriptions, k)
		close(sub.items)
	}
	for k, b := range m.pendingBatches {
		delete(m.pendingBatches, k)
		close(b.reply)
	}
}
