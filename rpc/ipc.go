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
	"bufio"
	"context"
	"net"
	"time"
)

const defaultDialTimeout = 10 * time.Second

// CreateIPCListener creates a listener: a Unix socket on Unix platforms, a
// named pipe on Windows (spec §6 "local transport").
func CreateIPCListener(endpoint string) (net.Listener, error) {
	return ipcListen(endpoint)
}

// DialIPC connects to a JSON-RPC server over the platform's native IPC
// mechanism. On Unix endpoint is a filesystem path to a Unix socket; on
// Windows it names a pipe.
func DialIPC(ctx context.Context, endpoint string, idProvider IDProvider, requestTimeout time.Duration) (*Client, error) {
	conn, err := newIPCConnection(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return NewClient(newNetConnTransport(conn), idProvider, requestTimeout, nil), nil
}

// ServeIPC accepts connections off listener and serves each one as a Server
// connection until the listener is closed.
func ServeIPC(ctx context.Context, srv *Server, listener net.Listener) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			return err
		}
		if err := srv.Accept(ctx, newNetConnTransport(conn)); err != nil {
			conn.Close()
		}
	}
}

// netConnTransport frames messages as newline-delimited JSON over a raw
// net.Conn, the same framing the teacher's NewJSONCodec used for stream
// transports (rpc/http.go httpReadWriteNopCloser callers).
type netConnTransport struct {
	conn   net.Conn
	reader *bufio.Reader
}

func newNetConnTransport(conn net.Conn) *netConnTransport {
	return &netConnTransport{conn: conn, reader: bufio.NewReader(conn)}
}

func (t *netConnTransport) Send(ctx context.Context, msg []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		t.conn.SetWriteDeadline(deadline)
	}
	if _, err := t.conn.Write(append(msg, '\n')); err != nil {
		return &TransportError{Err: err}
	}
	return nil
}

func (t *netConnTransport) Receive(ctx context.Context) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		t.conn.SetReadDeadline(deadline)
	}
	line, err := t.reader.ReadBytes('\n')
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	return line[:len(line)-1], nil
}

func (t *netConnTransport) Close() error { return t.conn.Close() }
