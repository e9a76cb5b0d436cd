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
	"context"
	"encoding/json"
	"time"

	"github.com/ethrpc/jsonrpc2/internal/rpclog"
)

// frontend messages accepted by the background task (spec §4.4).
type callFrontend struct {
	req      *Request
	reply    chan *Response
	deadline time.Time
}

type notifyFrontend struct {
	n *Notification
}

type subscribeFrontend struct {
	req         *Request
	unsubMethod string
	reply       chan subscribeOutcome
}

type subClosedFrontend struct {
	subID ID
}

type batchFrontend struct {
	reqs  []*Request
	reply chan []*Response
}

type shutdownFrontend struct{}

// backgroundTask owns the transport halves and the requestManager,
// running as the single cooperative task spec §4.4 describes.
type backgroundTask struct {
	transport       Transport
	reqMgr          *requestManager
	frontend        chan any
	maxBufferPerSub int
	requestTimeout  time.Duration
	log             *rpclog.Logger

	readCh    chan []byte
	readErrCh chan error
	done      chan struct{}
}

func newBackgroundTask(transport Transport, idProvider IDProvider, maxBufferPerSub int, requestTimeout time.Duration, log *rpclog.Logger) *backgroundTask {
	if log == nil {
		log = rpclog.Default
	}
	t := &backgroundTask{
		transport:       transport,
		reqMgr:          newRequestManager(idProvider),
		frontend:        make(chan any),
		maxBufferPerSub: maxBufferPerSub,
		requestTimeout:  requestTimeout,
		log:             log,
		readCh:          make(chan []byte),
		readErrCh:       make(chan error, 1),
		done:            make(chan struct{}),
	}
	go t.readLoop()
	go t.run()
	return t
}

func (t *backgroundTask) readLoop() {
	ctx := context.Background()
	for {
		raw, err := t.transport.Receive(ctx)
		if err != nil {
			t.readErrCh <- err
			return
		}
		select {
		case t.readCh <- raw:
		case <-t.done:
			return
		}
	}
}

func (t *backgroundTask) run() {
	defer close(t.done)
	defer t.transport.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg := <-t.frontend:
			if !t.handleFrontend(msg) {
				t.reqMgr.drainAll(ErrRestartNeeded)
				return
			}

		case raw := <-t.readCh:
			t.handleIncoming(raw)

		case err := <-t.readErrCh:
			t.log.Debug("client transport read error", "err", err)
			t.reqMgr.drainAll(ErrRestartNeeded)
			return

		case <-ticker.C:
			if t.requestTimeout > 0 {
				if n := t.reqMgr.expireTimedOutCalls(time.Now()); n > 0 {
					t.log.Debug("expired pending calls", "n", n)
				}
			}
		}
	}
}

// handleFrontend returns false if the task should shut down.
func (t *backgroundTask) handleFrontend(msg any) bool {
	switch m := msg.(type) {
	case callFrontend:
		body, err := json.Marshal(wireMessage{Version: Version, ID: m.req.ID.raw, Method: m.req.Method, Params: m.req.Params})
		if err != nil {
			m.reply <- &Response{ID: m.req.ID, Error: newInternal(err.Error())}
			close(m.reply)
			return true
		}
		if err := t.transport.Send(context.Background(), body); err != nil {
			m.reply <- &Response{ID: m.req.ID, Error: &Error{Code: ErrCodeInternal, Message: (&TransportError{Err: err}).Error()}}
			close(m.reply)
			return true
		}
		if err := t.reqMgr.insertPendingCall(m.req.ID, m.reply, m.deadline); err != nil {
			m.reply <- &Response{ID: m.req.ID, Error: newInternal(err.Error())}
			close(m.reply)
		}

	case notifyFrontend:
		body, err := json.Marshal(wireMessage{Version: Version, Method: m.n.Method, Params: m.n.Params})
		if err != nil {
			t.log.Debug("failed to marshal notification", "method", m.n.Method, "err", err)
			return true
		}
		if err := t.transport.Send(context.Background(), body); err != nil {
			t.log.Debug("failed to send notification", "method", m.n.Method, "err", err)
		}

	case subscribeFrontend:
		body, err := json.Marshal(wireMessage{Version: Version, ID: m.req.ID.raw, Method: m.req.Method, Params: m.req.Params})
		if err != nil {
			m.reply <- subscribeOutcome{err: err}
			close(m.reply)
			return true
		}
		if err := t.transport.Send(context.Background(), body); err != nil {
			m.reply <- subscribeOutcome{err: &TransportError{Err: err}}
			close(m.reply)
			return true
		}
		if err := t.reqMgr.insertPendingSubscription(m.req.ID, m.reply, m.unsubMethod); err != nil {
			m.reply <- subscribeOutcome{err: err}
			close(m.reply)
		}

	case subClosedFrontend:
		sub, ok := t.reqMgr.removeSubscription(m.subID)
		if !ok {
			return true
		}
		close(sub.items)
		t.sendUnsubscribe(sub.unsubMethod, m.subID)

	case batchFrontend:
		msgs := make([]wireMessage, len(m.reqs))
		ids := make([]ID, len(m.reqs))
		for i, r := range m.reqs {
			msgs[i] = wireMessage{Version: Version, ID: r.ID.raw, Method: r.Method, Params: r.Params}
			ids[i] = r.ID
		}
		body, err := json.Marshal(msgs)
		if err != nil {
			close(m.reply)
			return true
		}
		if err := t.transport.Send(context.Background(), body); err != nil {
			close(m.reply)
			return true
		}
		t.reqMgr.insertPendingBatch(m.reqs[0].ID, ids, m.reply)
		for _, r := range m.reqs {
			// Each member is also tracked as an individual pending call so
			// handleResponse's normal per-id lookup keeps working; batch
			// completion is detected once every member has replied.
			t.reqMgr.pendingCalls[idKey(r.ID)] = &pendingCall{reply: make(chan *Response, 1)}
		}

	case shutdownFrontend:
		return false
	}
	return true
}

func (t *backgroundTask) sendUnsubscribe(method string, subID ID) {
	params, _ := json.Marshal([]any{subID})
	reply := make(chan *Response, 1)
	req := &Request{ID: NullID, Method: method, Params: params}
	// Unsubscribe requests still need a correlation id to get a response,
	// but the caller (Subscription.Unsubscribe/drop path) isn't waiting on
	// it; synthesize one from the id provider if available.
	if id, err := t.reqMgr.nextRequestID(); err == nil {
		req.ID = id
	}
	body, err := json.Marshal(wireMessage{Version: Version, ID: req.ID.raw, Method: req.Method, Params: req.Params})
	if err != nil {
		return
	}
	if !req.ID.IsNull() {
		t.reqMgr.pendingCalls[idKey(req.ID)] = &pendingCall{reply: reply}
	}
	if err := t.transport.Send(context.Background(), body); err != nil {
		t.log.Debug("failed to send unsubscribe", "method", method, "err", err)
	}
}

func (t *backgroundTask) handleIncoming(raw []byte) {
	msgs, _, err := DecodeIncoming(raw)
	if err != nil {
		t.log.Debug("dropping malformed incoming message", "err", err)
		return
	}
	for _, msg := range msgs {
		switch {
		case msg.isNotification():
			t.handleNotification(&msg)
		case msg.isResponse():
			t.handleResponse(&msg)
		default:
			t.log.Debug("dropping unexpected message shape")
		}
	}
}

func (t *backgroundTask) handleNotification(msg *wireMessage) {
	var params subscriptionNotificationParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		t.log.Debug("dropping invalid subscription notification", "method", msg.Method)
		return
	}
	ch, ok := t.reqMgr.subscriptionSender(params.Subscription)
	if !ok {
		t.log.Debug("dropping notification for unknown subscription", "sub", params.Subscription.String())
		return
	}
	select {
	case ch <- params.Result:
	default:
		// Channel full: tear the subscription down (spec §4.4 bullet 3).
		t.log.Warn("subscription channel full, dropping subscription", "sub", params.Subscription.String())
		sub, _ := t.reqMgr.removeSubscription(params.Subscription)
		if sub != nil {
			close(sub.items)
			t.sendUnsubscribe(sub.unsubMethod, params.Subscription)
		}
	}
}

func (t *backgroundTask) handleResponse(msg *wireMessage) {
	id := msg.id()

	if sub, ok := t.reqMgr.completePendingSubscription(id); ok {
		t.completeSubscribe(id, msg, sub)
		return
	}
	if op, ok := t.reqMgr.completePendingCall(id); ok {
		op.reply <- toResponse(id, msg)
		close(op.reply)
		t.maybeCompleteBatch(id, msg)
		return
	}
	t.log.Debug("dropping unsolicited response", "id", id.String())
}

func toResponse(id ID, msg *wireMessage) *Response {
	return &Response{ID: id, Result: msg.Result, Error: msg.Error}
}

func (t *backgroundTask) completeSubscribe(id ID, msg *wireMessage, sub *pendingSubscription) {
	if msg.Error != nil {
		sub.reply <- subscribeOutcome{err: msg.Error}
		close(sub.reply)
		return
	}
	var subID ID
	if err := json.Unmarshal(msg.Result, &subID); err != nil {
		sub.reply <- subscribeOutcome{err: ErrInvalidSubscriptionID}
		close(sub.reply)
		return
	}
	items := make(chan json.RawMessage, t.maxBufferPerSub)
	if err := t.reqMgr.insertActiveSubscription(id, subID, items, sub.unsubMethod); err != nil {
		// Collision: reject and synthesize an unsubscribe using the
		// incoming sub_id (spec §4.3 tie-break rule).
		sub.reply <- subscribeOutcome{err: ErrInvalidSubscriptionID}
		close(sub.reply)
		t.sendUnsubscribe(sub.unsubMethod, subID)
		return
	}
	sub.reply <- subscribeOutcome{subID: subID, items: items}
	close(sub.reply)
}

// maybeCompleteBatch checks whether id belongs to a pending batch and, if
// this was the last outstanding member, delivers the ordered result slice
// (spec §4.4 "Batch of Responses").
func (t *backgroundTask) maybeCompleteBatch(id ID, msg *wireMessage) {
	k := idKey(id)
	for batchKey, b := range t.reqMgr.pendingBatches {
		if !b.remaining[k] {
			continue
		}
		b.collected[k] = toResponse(id, msg)
		delete(b.remaining, k)
		if len(b.remaining) == 0 {
			ordered := make([]*Response, len(b.order))
			for i, mk := range b.order {
				ordered[i] = b.collected[mk]
			}
			b.reply <- ordered
			close(b.reply)
			delete(t.reqMgr.pendingBatches, batchKey)
		}
		return
	}
}
