// Copyright 2015 The go-ethereum Authors
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
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHostAllowedWildcard(t *testing.T) {
	require.True(t, hostAllowed("anything.example:8545", []string{"*"}))
}

func TestHostAllowedExactMatch(t *testing.T) {
	allowed := []string{"localhost:8545"}
	require.True(t, hostAllowed("localhost:8545", allowed))
	require.False(t, hostAllowed("localhost:9999", allowed))
	require.False(t, hostAllowed("evil.example:8545", allowed))
}

func TestHostAllowedPatternWithoutPortMatchesAnyPort(t *testing.T) {
	allowed := []string{"localhost"}
	require.True(t, hostAllowed("localhost:8545", allowed))
	require.True(t, hostAllowed("localhost:9999", allowed))
	require.False(t, hostAllowed("localhost.evil.example:8545", allowed))
}

func newHostFilteredTestServer(t *testing.T, allowedHosts []string) *Server {
	registry := NewServiceRegistry()
	srv, err := NewServer(registry, ServerConfig{AllowedHosts: allowedHosts})
	require.NoError(t, err)
	return srv
}

func TestNewHTTPHandlerRejectsDisallowedHost(t *testing.T) {
	srv := newHostFilteredTestServer(t, []string{"trusted.example"})
	handler := NewHTTPHandler(srv, HTTPServerConfig{MaxRequestBodySize: 1024})

	req := httptest.NewRequest("POST", "http://untrusted.example/", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"rpc_modules"}`))
	req.Host = "untrusted.example"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, 403, rec.Code)
}

func TestNewHTTPHandlerAllowsAllowedHost(t *testing.T) {
	srv := newHostFilteredTestServer(t, []string{"trusted.example"})
	handler := NewHTTPHandler(srv, HTTPServerConfig{MaxRequestBodySize: 1024})

	req := httptest.NewRequest("POST", "http://trusted.example/", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"rpc_modules"}`))
	req.Host = "trusted.example"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
}

func TestNewHTTPHandlerWithNoAllowedHostsAcceptsAnyHost(t *testing.T) {
	srv := newHostFilteredTestServer(t, nil)
	handler := NewHTTPHandler(srv, HTTPServerConfig{MaxRequestBodySize: 1024})

	req := httptest.NewRequest("POST", "http://anything.example/", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"rpc_modules"}`))
	req.Host = "anything.example"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
}
