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

type echoParams struct {
	Text string `json:"text"`
}

type echoResult struct {
	Text string `json:"text"`
}

func newTestServer(t *testing.T) *Server {
	registry := NewServiceRegistry()
	require.NoError(t, registry.RegisterMethod("service_echo", func(id ID, params json.RawMessage, maxResponseSize int, ext *Extensions) (any, error) {
		var p echoParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, newInvalidParams(err.Error())
		}
		return echoResult{Text: p.Text}, nil
	}, nil))
	srv, err := NewServer(registry, ServerConfig{})
	require.NoError(t, err)
	return srv
}

func newTestClient(t *testing.T) (*Server, *Client) {
	srv := newTestServer(t)
	return srv, DialInProc(srv, NewNumericIDProvider())
}

func TestClientCall(t *testing.T) {
	server, client := newTestClient(t)
	defer server.Stop()
	defer client.Close()

	raw, err := client.Call(context.Background(), "service_echo", echoParams{Text: "hello"})
	require.NoError(t, err)

	var result echoResult
	require.NoError(t, json.Unmarshal(raw, &result))
	require.Equal(t, "hello", result.Text)
}

func TestClientCallMethodNotFound(t *testing.T) {
	server, client := newTestClient(t)
	defer server.Stop()
	defer client.Close()

	_, err := client.Call(context.Background(), "no_such_method", nil)
	require.Error(t, err)
	require.Equal(t, ErrCodeMethodNotFound, ErrorCode(err))
}

func TestClientBatchCall(t *testing.T) {
	server, client := newTestClient(t)
	defer server.Stop()
	defer client.Close()

	batch := []BatchElem{
		{Method: "service_echo", Params: echoParams{Text: "a"}, Result: new(echoResult)},
		{Method: "service_echo", Params: echoParams{Text: "b"}, Result: new(echoResult)},
		{Method: "no_such_method", Result: new(echoResult)},
	}
	require.NoError(t, client.BatchCall(context.Background(), batch))

	require.NoError(t, batch[0].Error)
	require.Equal(t, "a", batch[0].Result.(*echoResult).Text)
	require.NoError(t, batch[1].Error)
	require.Equal(t, "b", batch[1].Result.(*echoResult).Text)
	require.Error(t, batch[2].Error)
}

func TestClientCallTimeout(t *testing.T) {
	registry := NewServiceRegistry()
	block := make(chan struct{})
	require.NoError(t, registry.RegisterAsyncMethod("service_block", func(ctx context.Context, id ID, params json.RawMessage, connID uint64, maxResponseSize int, ext *Extensions) (any, error) {
		<-block
		return "done", nil
	}, nil))
	srv, err := NewServer(registry, ServerConfig{})
	require.NoError(t, err)
	defer srv.Stop()
	defer close(block)

	client := DialInProc(srv, NewNumericIDProvider())
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Call(ctx, "service_block", nil)
	require.Error(t, err)
}

func TestClientNotify(t *testing.T) {
	server, client := newTestClient(t)
	defer server.Stop()
	defer client.Close()

	require.NoError(t, client.Notify(context.Background(), "service_echo", echoParams{Text: "ignored"}))
}
