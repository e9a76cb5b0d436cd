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

// stopSignal is the graceful-shutdown signal distributed to every
// connection task (spec §4.9 "Stop coordination"). It generalizes the
// teacher's atomic run flag (rpc/server.go Server.run) into a broadcast
// channel so connection loops can select on it instead of polling.
type stopSignal struct {
	once sync.Once
	ch   chan struct{}
}

func newStopSignal() *stopSignal {
	return &stopSignal{ch: make(chan struct{})}
}

// Stop broadcasts the shutdown signal. Safe to call more than once.
func (s *stopSignal) Stop() {
	s.once.Do(func() { close(s.ch) })
}

// Stopped reports whether Stop has been called.
func (s *stopSignal) Stopped() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// C returns the channel that closes when Stop is called.
func (s *stopSignal) C() <-chan struct{} { return s.ch }
