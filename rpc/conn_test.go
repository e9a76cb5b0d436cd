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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type bigParams struct {
	Size int `json:"size"`
}

type bigResult struct {
	Payload string `json:"payload"`
}

func newOversizableTestServer(t *testing.T, cfg ServerConfig) *Server {
	registry := NewServiceRegistry()
	require.NoError(t, registry.RegisterMethod("service_big", func(id ID, params json.RawMessage, maxResponseSize int, ext *Extensions) (any, error) {
		var p bigParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, newInvalidParams(err.Error())
		}
		return bigResult{Payload: strings.Repeat("x", p.Size)}, nil
	}, nil))
	srv, err := NewServer(registry, cfg)
	require.NoError(t, err)
	return srv
}

func TestMaxResponseSizeRejectsOversizedResult(t *testing.T) {
	server := newOversizableTestServer(t, ServerConfig{MaxResponseSize: 64})
	client := DialInProc(server, NewNumericIDProvider())
	defer server.Stop()
	defer client.Close()

	_, err := client.Call(context.Background(), "service_big", bigParams{Size: 128})
	require.Error(t, err)
	require.Equal(t, ErrCodeOversizedResponse, ErrorCode(err))

	// The connection survives an oversized response: a follow-up call still works.
	raw, err := client.Call(context.Background(), "service_big", bigParams{Size: 4})
	require.NoError(t, err)
	var result bigResult
	require.NoError(t, json.Unmarshal(raw, &result))
	require.Equal(t, "xxxx", result.Payload)
}

func TestMaxResponseSizeAllowsResultAtLimit(t *testing.T) {
	server := newOversizableTestServer(t, ServerConfig{MaxResponseSize: 64})
	client := DialInProc(server, NewNumericIDProvider())
	defer server.Stop()
	defer client.Close()

	// {"payload":"<50 x>"} marshals to exactly 64 bytes.
	raw, err := client.Call(context.Background(), "service_big", bigParams{Size: 50})
	require.NoError(t, err)
	var result bigResult
	require.NoError(t, json.Unmarshal(raw, &result))
	require.Equal(t, strings.Repeat("x", 50), result.Payload)
}

func TestMaxBatchSizeRejectsOversizedBatch(t *testing.T) {
	server := newTestServer(t)
	server.cfg.MaxBatchSize = 2
	client := DialInProc(server, NewNumericIDProvider())
	defer server.Stop()
	defer client.Close()

	batch := []BatchElem{
		{Method: "service_echo", Params: echoParams{Text: "a"}, Result: new(echoResult)},
		{Method: "service_echo", Params: echoParams{Text: "b"}, Result: new(echoResult)},
		{Method: "service_echo", Params: echoParams{Text: "c"}, Result: new(echoResult)},
	}
	// The server's batch-size-exceeded reply carries a null id rather than
	// per-request ids, so this client's own pending-batch bookkeeping never
	// resolves it; bound the wait the same way TestClientCallTimeout does.
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := client.BatchCall(ctx, batch)
	require.Error(t, err)
}

func TestMaxBatchSizeAllowsBatchAtLimit(t *testing.T) {
	server := newTestServer(t)
	server.cfg.MaxBatchSize = 2
	client := DialInProc(server, NewNumericIDProvider())
	defer server.Stop()
	defer client.Close()

	batch := []BatchElem{
		{Method: "service_echo", Params: echoParams{Text: "a"}, Result: new(echoResult)},
		{Method: "service_echo", Params: echoParams{Text: "b"}, Result: new(echoResult)},
	}
	require.NoError(t, client.BatchCall(context.Background(), batch))
	require.NoError(t, batch[0].Error)
	require.Equal(t, "a", batch[0].Result.(*echoResult).Text)
}
