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
	"context"
	"sync"
)

// inProcTransport connects a Client directly to a Server without any byte
// framing, the same role the teacher's DialInProc played (rpc/client.go) for
// tests and same-process callers that don't need a real socket.
type inProcTransport struct {
	send   chan []byte
	recv   chan []byte
	closed chan struct{}
	once   *sync.Once
}

func newInProcPair() (client *inProcTransport, server *inProcTransport) {
	a := make(chan []byte, 16)
	b := make(chan []byte, 16)
	closed := make(chan struct{})
	once := &sync.Once{}
	client = &inProcTransport{send: a, recv: b, closed: closed, once: once}
	server = &inProcTransport{send: b, recv: a, closed: closed, once: once}
	return client, server
}

func (t *inProcTransport) Send(ctx context.Context, msg []byte) error {
	select {
	case t.send <- msg:
		return nil
	case <-t.closed:
		return &TransportError{Err: ErrClientQuit}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *inProcTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-t.recv:
		return msg, nil
	case <-t.closed:
		return nil, &TransportError{Err: ErrClientQuit}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *inProcTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

// DialInProc creates an in-process Client wired directly to srv, without
// going through any network or IPC transport.
func DialInProc(srv *Server, idProvider IDProvider) *Client {
	clientSide, serverSide := newInProcPair()
	srv.Accept(context.Background(), serverSide)
	return NewClient(clientSide, idProvider, 0, nil)
}
