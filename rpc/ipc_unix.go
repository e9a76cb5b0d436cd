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

//go:build !windows

package rpc

import (
	"context"
	"net"
	"os"
	"time"
)

// ipcListen creates a Unix socket listener at endpoint, removing a stale
// socket file left behind by a crashed previous instance first.
func ipcListen(endpoint string) (net.Listener, error) {
	if _, err := os.Stat(endpoint); err == nil {
		os.Remove(endpoint)
	}
	l, err := net.Listen("unix", endpoint)
	if err != nil {
		return nil, err
	}
	os.Chmod(endpoint, 0600)
	return l, nil
}

// newIPCConnection dials the Unix socket at endpoint, honoring ctx's
// deadline if one is set.
func newIPCConnection(ctx context.Context, endpoint string) (net.Conn, error) {
	timeout := defaultDialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout < 0 {
			timeout = 0
		}
	}
	return net.DialTimeout("unix", endpoint, timeout)
}
