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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newCountingSubscriptionServer(t *testing.T, count int) *Server {
	registry := NewServiceRegistry()
	err := registry.RegisterSubscription("sub_subscribe", "sub_unsubscribe", "sub_notify",
		func(ctx context.Context, id ID, params json.RawMessage, sink *Sink, ext *Extensions) error {
			for i := 0; i < count; i++ {
				select {
				case <-sink.Closed():
					return nil
				default:
				}
				if err := sink.Send(i); err != nil {
					return err
				}
			}
			return nil
		})
	require.NoError(t, err)
	srv, err := NewServer(registry, ServerConfig{})
	require.NoError(t, err)
	return srv
}

func TestClientSubscribe(t *testing.T) {
	server := newCountingSubscriptionServer(t, 5)
	defer server.Stop()
	client := DialInProc(server, NewNumericIDProvider())
	defer client.Close()

	sub, err := client.Subscribe(context.Background(), "sub_subscribe", "sub_unsubscribe", nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		raw, ok := sub.Next(context.Background())
		require.True(t, ok)
		var got int
		require.NoError(t, json.Unmarshal(raw, &got))
		require.Equal(t, i, got)
	}
}

func TestClientSubscribeUnsubscribe(t *testing.T) {
	registry := NewServiceRegistry()
	started := make(chan struct{})
	err := registry.RegisterSubscription("sub_subscribe", "sub_unsubscribe", "sub_notify",
		func(ctx context.Context, id ID, params json.RawMessage, sink *Sink, ext *Extensions) error {
			close(started)
			<-sink.Closed()
			return nil
		})
	require.NoError(t, err)
	server, err := NewServer(registry, ServerConfig{})
	require.NoError(t, err)
	defer server.Stop()
	client := DialInProc(server, NewNumericIDProvider())
	defer client.Close()

	sub, err := client.Subscribe(context.Background(), "sub_subscribe", "sub_unsubscribe", nil)
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("subscription handler never started")
	}

	sub.Unsubscribe()

	select {
	case _, ok := <-sub.items:
		require.False(t, ok, "channel should be closed after unsubscribe")
	case <-time.After(time.Second):
		t.Fatal("channel not closed within 1s after unsubscribe")
	}
}

func TestBoundedSubscriptionsCap(t *testing.T) {
	bounds := NewBoundedSubscriptions(1)
	p1, ok := bounds.TryAcquire()
	require.True(t, ok)
	_, ok = bounds.TryAcquire()
	require.False(t, ok)

	p1.Release()
	_, ok = bounds.TryAcquire()
	require.True(t, ok)
}

func TestSinkDropOldest(t *testing.T) {
	out := newOutbox(1)
	sink := newSink(NumericID(1), "sub_notify", out, &SubscriptionPermit{}, 0, SinkDropOldest)

	require.NoError(t, sink.TrySend(1))
	require.NoError(t, sink.TrySend(2))

	msg := <-out.ch
	var env wireMessage
	require.NoError(t, json.Unmarshal(msg, &env))
	var params subscriptionNotificationParams
	require.NoError(t, json.Unmarshal(env.Params, &params))
	var val int
	require.NoError(t, json.Unmarshal(params.Result, &val))
	require.Equal(t, 2, val)
}
