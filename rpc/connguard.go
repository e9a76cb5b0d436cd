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

import "golang.org/x/sync/semaphore"

// ConnectionGuard is a counting semaphore sized to the server's
// max_connections (spec §3). Each accepted connection holds a permit for
// its lifetime; TryAcquire never blocks, since admission must be rejected
// immediately rather than queued.
type ConnectionGuard struct {
	sem *semaphore.Weighted
	max int64
}

// NewConnectionGuard builds a guard with the given capacity. A capacity of
// 0 means unlimited.
func NewConnectionGuard(max int) *ConnectionGuard {
	if max <= 0 {
		return &ConnectionGuard{max: 0}
	}
	return &ConnectionGuard{sem: semaphore.NewWeighted(int64(max)), max: int64(max)}
}

// ConnectionPermit is held for the lifetime of one connection; Release
// frees the slot.
type ConnectionPermit struct {
	sem *semaphore.Weighted
}

// TryAcquire reserves one permit, or reports false if the guard is at
// capacity.
func (g *ConnectionGuard) TryAcquire() (*ConnectionPermit, bool) {
	if g.sem == nil {
		return &ConnectionPermit{}, true
	}
	if !g.sem.TryAcquire(1) {
		return nil, false
	}
	return &ConnectionPermit{sem: g.sem}, true
}

// Release returns the permit to the guard. Calls after the first are
// no-ops.
func (p *ConnectionPermit) Release() {
	if p == nil || p.sem == nil {
		return
	}
	p.sem.Release(1)
	p.sem = nil
}
