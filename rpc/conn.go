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
	"sync"

	"github.com/ethrpc/jsonrpc2/internal/rpclog"
)

// dispatcher is the terminal stage a baseService calls into: it looks a
// method up in the registry, claims resources, and runs the right handler
// kind (spec §4.6). One dispatcher is built per connection so subscription
// bookkeeping can stay connection-scoped.
type dispatcher struct {
	registry   *ServiceRegistry
	resources  *Resources
	subs       *BoundedSubscriptions
	out        *outbox
	connID     uint64
	maxRespSz  int
	sinkStrat  SinkStrategy
	idProvider IDProvider
	log        *rpclog.Logger

	mu     sync.Mutex
	active map[string]*Sink // keyed by idKey(subID)
}

func newDispatcher(registry *ServiceRegistry, resources *Resources, subs *BoundedSubscriptions, out *outbox, connID uint64, maxRespSz int, strat SinkStrategy, idProvider IDProvider, log *rpclog.Logger) *dispatcher {
	return &dispatcher{
		registry:   registry,
		resources:  resources,
		subs:       subs,
		out:        out,
		connID:     connID,
		maxRespSz:  maxRespSz,
		sinkStrat:  strat,
		idProvider: idProvider,
		log:        log,
		active:     make(map[string]*Sink),
	}
}

func (d *dispatcher) call(ctx context.Context, req *Request, ext *Extensions) *Response {
	entry, ok := d.registry.lookup(req.Method)
	if !ok {
		return &Response{ID: req.ID, Error: newMethodNotFound(req.Method)}
	}

	guard, err := d.resources.Claim(entry.costs)
	if err != nil {
		return &Response{ID: req.ID, Error: err.(*Error)}
	}
	defer guard.Release()

	switch entry.kind {
	case KindSync:
		result, err := entry.sync(req.ID, req.Params, d.maxRespSz, ext)
		return toRPCResponse(req.ID, result, err, d.maxRespSz)

	case KindAsync:
		result, err := entry.async(ctx, req.ID, req.Params, d.connID, d.maxRespSz, ext)
		return toRPCResponse(req.ID, result, err, d.maxRespSz)

	case KindSubscription:
		return d.subscribe(ctx, req, entry, ext)

	case KindUnsubscription:
		return d.unsubscribe(req, entry, ext)

	default:
		return &Response{ID: req.ID, Error: newInternal("unknown method kind")}
	}
}

func (d *dispatcher) notify(ctx context.Context, n *Notification, ext *Extensions) {
	entry, ok := d.registry.lookup(n.Method)
	if !ok {
		d.log.Debug("dropping notification for unknown method", "method", n.Method)
		return
	}
	guard, err := d.resources.Claim(entry.costs)
	if err != nil {
		return
	}
	defer guard.Release()

	switch entry.kind {
	case KindSync:
		entry.sync(NullID, n.Params, d.maxRespSz, ext)
	case KindAsync:
		entry.async(ctx, NullID, n.Params, d.connID, d.maxRespSz, ext)
	default:
		d.log.Debug("dropping notification for non-callable method", "method", n.Method)
	}
}

// subscribe claims a subscription slot, mints a subscription id and starts
// the handler on its own goroutine (spec §4.7): the handler owns the Sink
// for the subscription's lifetime, independent of the request that created it.
func (d *dispatcher) subscribe(ctx context.Context, req *Request, entry *methodEntry, ext *Extensions) *Response {
	permit, ok := d.subs.TryAcquire()
	if !ok {
		return &Response{ID: req.ID, Error: &Error{Code: ErrCodeTooManySubscriptions, Message: "too many subscriptions"}}
	}

	subID := d.idProvider.NextID()
	sink := newSink(subID, entry.subMtd, d.out, permit, d.maxRespSz, d.sinkStrat)
	d.mu.Lock()
	d.active[idKey(subID)] = sink
	d.mu.Unlock()

	go func() {
		defer func() {
			d.mu.Lock()
			delete(d.active, idKey(subID))
			d.mu.Unlock()
			sink.Close()
		}()
		if err := entry.sub(ctx, req.ID, req.Params, sink, ext); err != nil {
			d.log.Debug("subscription handler exited with error", "sub", subID.String(), "err", err)
		}
	}()

	result, _ := json.Marshal(subID)
	return &Response{ID: req.ID, Result: result}
}

func (d *dispatcher) unsubscribe(req *Request, entry *methodEntry, ext *Extensions) *Response {
	if entry.unsub != nil {
		result, err := entry.unsub(req.ID, req.Params, d.connID, d.maxRespSz, ext)
		return toRPCResponse(req.ID, result, err, d.maxRespSz)
	}

	// Automatic teardown installed by RegisterSubscription: registry.go
	// could not see the per-connection subscription table, so the real
	// work happens here.
	var params []ID
	if err := json.Unmarshal(req.Params, &params); err != nil || len(params) != 1 {
		return &Response{ID: req.ID, Error: newInvalidParams("expected [subscription_id]")}
	}
	k := idKey(params[0])
	d.mu.Lock()
	sink, ok := d.active[k]
	delete(d.active, k)
	d.mu.Unlock()
	if !ok {
		result, _ := json.Marshal(false)
		return &Response{ID: req.ID, Result: result}
	}
	sink.Close()
	result, _ := json.Marshal(true)
	return &Response{ID: req.ID, Result: result}
}

// closeAllSubscriptions tears every live sink down; called when the owning
// connection terminates (spec §4.8 "Termination").
func (d *dispatcher) closeAllSubscriptions() {
	d.mu.Lock()
	sinks := make([]*Sink, 0, len(d.active))
	for _, s := range d.active {
		sinks = append(sinks, s)
	}
	d.active = make(map[string]*Sink)
	d.mu.Unlock()
	for _, s := range sinks {
		s.Close()
	}
}

// toRPCResponse builds the wire Response for a Sync/Async/Unsubscription
// handler's (result, error) pair, enforcing max_response_size on the
// marshaled result (spec §4.8 step 4, §8 scenario 6): a result that would
// exceed maxRespSz is replaced with an ErrCodeOversizedResponse error
// instead of being sent, while the connection itself stays open. maxRespSz
// of 0 means unlimited.
func toRPCResponse(id ID, result any, err error, maxRespSz int) *Response {
	if err != nil {
		var rerr *Error
		if e, ok := err.(*Error); ok {
			rerr = e
		} else {
			rerr = newInternal(err.Error())
		}
		return &Response{ID: id, Error: rerr}
	}
	payload, merr := json.Marshal(result)
	if merr != nil {
		return &Response{ID: id, Error: newInternal(merr.Error())}
	}
	if maxRespSz > 0 && len(payload) > maxRespSz {
		return &Response{ID: id, Error: &Error{Code: ErrCodeOversizedResponse, Message: "result exceeds max_response_size"}}
	}
	return &Response{ID: id, Result: payload}
}

// Conn is one accepted server connection: a read loop that decodes wire
// frames and dispatches them through the middleware pipeline, and a write
// loop that drains the shared outbox, mirroring the teacher's paired
// goroutines in rpc/server.go ServeCodec, generalized to a pluggable
// Transport instead of a fixed ServerCodec.
type Conn struct {
	id         uint64
	transport  Transport
	svc        Service
	dispatch   *dispatcher
	permit     *ConnectionPermit
	maxReqSz   int
	maxBatchSz int
	stop       *stopSignal
	log        *rpclog.Logger

	wg sync.WaitGroup
}

func newConn(id uint64, transport Transport, svc Service, dispatch *dispatcher, permit *ConnectionPermit, maxReqSz, maxBatchSz int, stop *stopSignal, log *rpclog.Logger) *Conn {
	return &Conn{id: id, transport: transport, svc: svc, dispatch: dispatch, permit: permit, maxReqSz: maxReqSz, maxBatchSz: maxBatchSz, stop: stop, log: log}
}

// Serve runs the connection until the transport closes, a fatal wire error
// occurs, or the server stops. It blocks until termination is complete.
func (c *Conn) Serve(ctx context.Context) {
	defer c.terminate()

	ext := NewExtensions()
	ext.Set(extConnID, c.id)

	for {
		select {
		case <-c.stop.C():
			return
		default:
		}

		raw, err := c.transport.Receive(ctx)
		if err != nil {
			c.log.Debug("connection read error", "conn", c.id, "err", err)
			return
		}
		if c.maxReqSz > 0 && len(raw) > c.maxReqSz {
			c.reply(ctx, (&WireError{Code: ErrCodeInvalidRequest, Message: "request too large"}).AsResponse(NullID))
			continue
		}
		c.handleFrame(ctx, raw, ext)
	}
}

func (c *Conn) handleFrame(ctx context.Context, raw []byte, ext *Extensions) {
	msgs, batch, err := DecodeIncoming(raw)
	if err != nil {
		var id ID = NullID
		if werr, ok := err.(*WireError); ok {
			c.reply(ctx, werr.AsResponse(id))
			return
		}
		c.reply(ctx, newInternal(err.Error()).AsResponse(id))
		return
	}

	if batch {
		if c.maxBatchSz > 0 && len(msgs) > c.maxBatchSz {
			c.reply(ctx, (&WireError{Code: ErrCodeInvalidRequest, Message: "batch exceeds max_batch_size"}).AsResponse(NullID))
			return
		}
		reqs := make([]*Request, 0, len(msgs))
		for i := range msgs {
			if msgs[i].isRequest() {
				reqs = append(reqs, &Request{ID: msgs[i].id(), Method: msgs[i].Method, Params: msgs[i].Params})
			} else if msgs[i].isNotification() {
				c.svc.Notification(ctx, &Notification{Method: msgs[i].Method, Params: msgs[i].Params}, ext)
			}
		}
		if len(reqs) > 0 {
			resps := c.svc.Batch(ctx, reqs, ext)
			c.replyBatch(ctx, resps)
		}
		return
	}

	m := &msgs[0]
	switch {
	case m.isNotification():
		c.svc.Notification(ctx, &Notification{Method: m.Method, Params: m.Params}, ext)
	case m.isRequest():
		req := &Request{ID: m.id(), Method: m.Method, Params: m.Params}
		c.reply(ctx, c.svc.Call(ctx, req, ext))
	default:
		c.reply(ctx, newInvalidRequest("not a request or notification").AsResponse(m.id()))
	}
}

func (c *Conn) reply(ctx context.Context, resp *Response) {
	if resp == nil {
		return
	}
	body, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := c.transport.Send(ctx, body); err != nil {
		c.log.Debug("connection write error", "conn", c.id, "err", err)
	}
}

func (c *Conn) replyBatch(ctx context.Context, resps []*Response) {
	if len(resps) == 0 {
		return
	}
	body, err := json.Marshal(resps)
	if err != nil {
		return
	}
	if err := c.transport.Send(ctx, body); err != nil {
		c.log.Debug("connection write error", "conn", c.id, "err", err)
	}
}

func (c *Conn) terminate() {
	c.dispatch.closeAllSubscriptions()
	c.transport.Close()
	c.permit.Release()
}
