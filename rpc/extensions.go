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

import "sync"

// Extensions is the per-request, typed key/value context that flows
// through the middleware pipeline (spec §4.5, §9 "Extensions container").
// The source language keys this by type identity; Go has no stable type
// identity usable as a map key across packages without reflection, so we
// key by a small stable string tag instead, per spec §9's suggested
// re-expression.
type Extensions struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewExtensions returns an empty Extensions container.
func NewExtensions() *Extensions {
	return &Extensions{values: make(map[string]any, 4)}
}

// Set stores a value under key, overwriting any previous value.
func (e *Extensions) Set(key string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.values[key] = value
}

// Get retrieves the value stored under key.
func (e *Extensions) Get(key string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.values[key]
	return v, ok
}

// Known extension keys used by this package. Host applications may use any
// other string tag for their own per-request context.
const (
	extConnID = "rpc.conn_id"
	extMethod = "rpc.method"
)

// ConnID returns the connection id stored in ext by the server connection
// loop (spec §4.8), or 0 with ok=false on the client side, where there is
// no connection id.
func ConnID(ext *Extensions) (uint64, bool) {
	if ext == nil {
		return 0, false
	}
	v, ok := ext.Get(extConnID)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}
