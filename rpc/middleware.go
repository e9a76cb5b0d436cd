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
	"time"

	"github.com/ethrpc/jsonrpc2/internal/rpclog"
)

// Service is the typed middleware interface shared by client and server
// (spec §4.5): three verbs, each taking the per-request Extensions.
type Service interface {
	Call(ctx context.Context, req *Request, ext *Extensions) *Response
	Batch(ctx context.Context, reqs []*Request, ext *Extensions) []*Response
	Notification(ctx context.Context, n *Notification, ext *Extensions) *Response
}

// Layer wraps a Service to produce a new Service. The outermost layer
// observes requests first and responses last.
type Layer interface {
	Wrap(next Service) Service
}

// LayerFunc lets a plain function satisfy Layer.
type LayerFunc func(next Service) Service

// Wrap implements Layer.
func (f LayerFunc) Wrap(next Service) Service { return f(next) }

// Chain composes layers outermost-first: Chain(a, b).Wrap(svc) behaves as
// a.Wrap(b.Wrap(svc)), so a observes the request before b does.
func Chain(layers ...Layer) Layer {
	return LayerFunc(func(next Service) Service {
		svc := next
		for i := len(layers) - 1; i >= 0; i-- {
			svc = layers[i].Wrap(svc)
		}
		return svc
	})
}

// baseService is the terminal Service at the bottom of the pipeline: it
// calls straight into the method registry with no further wrapping.
type baseService struct {
	dispatch *dispatcher
}

func (b *baseService) Call(ctx context.Context, req *Request, ext *Extensions) *Response {
	return b.dispatch.call(ctx, req, ext)
}

func (b *baseService) Batch(ctx context.Context, reqs []*Request, ext *Extensions) []*Response {
	out := make([]*Response, len(reqs))
	for i, r := range reqs {
		out[i] = b.dispatch.call(ctx, r, ext)
	}
	return out
}

func (b *baseService) Notification(ctx context.Context, n *Notification, ext *Extensions) *Response {
	b.dispatch.notify(ctx, n, ext)
	return nil
}

// LoggingLayer logs method start/end, duration and success (spec §6
// observability, "Observability" fields: method, conn_id, duration,
// success). Grounded on original_source/core/src/middleware/layer/logger.rs.
func LoggingLayer(log *rpclog.Logger) Layer {
	return LayerFunc(func(next Service) Service {
		return &loggingService{next: next, log: log}
	})
}

type loggingService struct {
	next Service
	log  *rpclog.Logger
}

func (s *loggingService) Call(ctx context.Context, req *Request, ext *Extensions) *Response {
	connID, _ := ConnID(ext)
	s.log.Debug("serving call", "method", req.Method, "id", req.ID.String(), "conn", connID)
	start := time.Now()
	resp := s.next.Call(ctx, req, ext)
	s.log.Debug("served call", "method", req.Method, "id", req.ID.String(), "conn", connID, "dur", time.Since(start), "success", resp == nil || !resp.IsError())
	return resp
}

func (s *loggingService) Batch(ctx context.Context, reqs []*Request, ext *Extensions) []*Response {
	start := time.Now()
	resp := s.next.Batch(ctx, reqs, ext)
	s.log.Debug("served batch", "size", len(reqs), "dur", time.Since(start))
	return resp
}

func (s *loggingService) Notification(ctx context.Context, n *Notification, ext *Extensions) *Response {
	start := time.Now()
	resp := s.next.Notification(ctx, n, ext)
	s.log.Debug("served notification", "method", n.Method, "dur", time.Since(start))
	return resp
}

// RateLimiter is consulted by RateLimitLayer before a call reaches the
// inner Service. Returning false short-circuits the pipeline with a
// resource-limit error, without invoking the inner service, as required by
// spec §4.5's "pure wrappers" rule.
type RateLimiter interface {
	Allow(ctx context.Context, method string) bool
}

// RateLimitLayer rejects calls the limiter disallows. Grounded on
// original_source/examples/examples/rpc_middleware_rate_limit.rs.
func RateLimitLayer(limiter RateLimiter) Layer {
	return LayerFunc(func(next Service) Service {
		return &rateLimitService{next: next, limiter: limiter}
	})
}

type rateLimitService struct {
	next    Service
	limiter RateLimiter
}

func (s *rateLimitService) Call(ctx context.Context, req *Request, ext *Extensions) *Response {
	if !s.limiter.Allow(ctx, req.Method) {
		return &Response{ID: req.ID, Error: &Error{Code: ErrCodeResourceLimit, Message: "rate limit exceeded"}}
	}
	return s.next.Call(ctx, req, ext)
}

func (s *rateLimitService) Batch(ctx context.Context, reqs []*Request, ext *Extensions) []*Response {
	out := make([]*Response, len(reqs))
	for i, r := range reqs {
		out[i] = s.Call(ctx, r, ext)
	}
	return out
}

func (s *rateLimitService) Notification(ctx context.Context, n *Notification, ext *Extensions) *Response {
	if !s.limiter.Allow(ctx, n.Method) {
		return nil
	}
	return s.next.Notification(ctx, n, ext)
}

// ExtensionInjectorLayer sets key to the value returned by value(ctx) in
// every request's Extensions before it reaches the inner service, the generic building
// block spec §9 calls out for passing e.g. a connection id through layers.
func ExtensionInjectorLayer(key string, value func(ctx context.Context) any) Layer {
	return LayerFunc(func(next Service) Service {
		return &injectorService{next: next, key: key, value: value}
	})
}

type injectorService struct {
	next  Service
	key   string
	value func(ctx context.Context) any
}

func (s *injectorService) Call(ctx context.Context, req *Request, ext *Extensions) *Response {
	ext.Set(s.key, s.value(ctx))
	return s.next.Call(ctx, req, ext)
}

func (s *injectorService) Batch(ctx context.Context, reqs []*Request, ext *Extensions) []*Response {
	ext.Set(s.key, s.value(ctx))
	return s.next.Batch(ctx, reqs, ext)
}

func (s *injectorService) Notification(ctx context.Context, n *Notification, ext *Extensions) *Response {
	ext.Set(s.key, s.value(ctx))
	return s.next.Notification(ctx, n, ext)
}
