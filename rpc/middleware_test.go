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
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingService struct {
	called bool
}

func (s *recordingService) Call(ctx context.Context, req *Request, ext *Extensions) *Response {
	s.called = true
	return &Response{ID: req.ID, Result: []byte(`"ok"`)}
}

func (s *recordingService) Batch(ctx context.Context, reqs []*Request, ext *Extensions) []*Response {
	s.called = true
	out := make([]*Response, len(reqs))
	for i, r := range reqs {
		out[i] = &Response{ID: r.ID, Result: []byte(`"ok"`)}
	}
	return out
}

func (s *recordingService) Notification(ctx context.Context, n *Notification, ext *Extensions) *Response {
	s.called = true
	return nil
}

// orderRecordingLayer appends its tag to a shared log on entry, so tests can
// assert Chain's outermost-first ordering.
type orderRecordingLayer struct {
	tag string
	log *[]string
}

func (l orderRecordingLayer) Wrap(next Service) Service {
	return &orderRecordingService{tag: l.tag, log: l.log, next: next}
}

type orderRecordingService struct {
	tag  string
	log  *[]string
	next Service
}

func (s *orderRecordingService) Call(ctx context.Context, req *Request, ext *Extensions) *Response {
	*s.log = append(*s.log, s.tag)
	return s.next.Call(ctx, req, ext)
}

func (s *orderRecordingService) Batch(ctx context.Context, reqs []*Request, ext *Extensions) []*Response {
	*s.log = append(*s.log, s.tag)
	return s.next.Batch(ctx, reqs, ext)
}

func (s *orderRecordingService) Notification(ctx context.Context, n *Notification, ext *Extensions) *Response {
	*s.log = append(*s.log, s.tag)
	return s.next.Notification(ctx, n, ext)
}

func TestChainOrdersOutermostFirst(t *testing.T) {
	var log []string
	base := &recordingService{}
	chain := Chain(
		orderRecordingLayer{tag: "a", log: &log},
		orderRecordingLayer{tag: "b", log: &log},
	)
	svc := chain.Wrap(base)

	svc.Call(context.Background(), &Request{ID: NumericID(1), Method: "m"}, NewExtensions())

	require.Equal(t, []string{"a", "b"}, log)
	require.True(t, base.called)
}

type fixedRateLimiter struct{ allow bool }

func (f fixedRateLimiter) Allow(ctx context.Context, method string) bool { return f.allow }

func TestRateLimitLayerAllows(t *testing.T) {
	base := &recordingService{}
	svc := RateLimitLayer(fixedRateLimiter{allow: true}).Wrap(base)

	resp := svc.Call(context.Background(), &Request{ID: NumericID(1), Method: "m"}, NewExtensions())
	require.True(t, base.called)
	require.False(t, resp.IsError())
}

func TestRateLimitLayerDeniesWithoutInvokingInner(t *testing.T) {
	base := &recordingService{}
	svc := RateLimitLayer(fixedRateLimiter{allow: false}).Wrap(base)

	resp := svc.Call(context.Background(), &Request{ID: NumericID(1), Method: "m"}, NewExtensions())
	require.False(t, base.called, "denied call must not reach the inner service")
	require.True(t, resp.IsError())
	require.Equal(t, ErrCodeResourceLimit, ErrorCode(resp.Error))
}

func TestRateLimitLayerDeniesNotificationSilently(t *testing.T) {
	base := &recordingService{}
	svc := RateLimitLayer(fixedRateLimiter{allow: false}).Wrap(base)

	resp := svc.Notification(context.Background(), &Notification{Method: "m"}, NewExtensions())
	require.False(t, base.called)
	require.Nil(t, resp)
}

func TestExtensionInjectorLayerSetsValue(t *testing.T) {
	base := &recordingService{}
	svc := ExtensionInjectorLayer("conn_id", func(ctx context.Context) any { return uint64(42) }).Wrap(base)

	ext := NewExtensions()
	svc.Call(context.Background(), &Request{ID: NumericID(1), Method: "m"}, ext)

	v, ok := ext.Get("conn_id")
	require.True(t, ok)
	require.Equal(t, uint64(42), v)
}
