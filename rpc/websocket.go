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
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorilla/websocket"
)

// wsOriginValidator reports whether origin is allowed, the same allowlist
// logic the teacher implemented around gopkg.in/fatih/set.v0
// (wsHandshakeValidator, rpc/websocket.go), modernized onto
// deckarep/golang-set/v2 to match the rest of this module's set usage.
func wsOriginValidator(allowedOrigins []string) func(*http.Request) bool {
	origins := mapset.NewSet[string]()
	allowAll := false
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		if o != "" {
			origins.Add(o)
		}
	}
	if origins.Cardinality() == 0 {
		origins.Add("http://localhost")
		if hostname, err := os.Hostname(); err == nil {
			origins.Add("http://" + hostname)
		}
	}
	return func(r *http.Request) bool {
		if allowAll {
			return true
		}
		return origins.Contains(r.Header.Get("Origin"))
	}
}

// wsTransport wraps a *websocket.Conn as a Transport: one JSON-RPC message
// per frame (spec §6), with a background ping loop for keep-alive when
// pingInterval is positive.
type wsTransport struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

func newWSTransport(conn *websocket.Conn, pingInterval time.Duration) *wsTransport {
	t := &wsTransport{conn: conn, closed: make(chan struct{})}
	if pingInterval > 0 {
		go t.pingLoop(pingInterval)
	}
	return t
}

func (t *wsTransport) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.writeMu.Lock()
			err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			t.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-t.closed:
			return
		}
	}
}

func (t *wsTransport) Send(ctx context.Context, msg []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		t.conn.SetWriteDeadline(deadline)
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return &TransportError{Err: err}
	}
	return nil
}

func (t *wsTransport) Receive(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	return data, nil
}

func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		t.writeMu.Lock()
		t.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		t.writeMu.Unlock()
		err = t.conn.Close()
	})
	return err
}

// NewWSHandler upgrades HTTP connections to WebSocket and serves each one as
// a Server connection, replacing the teacher's golang.org/x/net/websocket
// Server with gorilla/websocket (spec §6, the "jsonrpc" subprotocol).
func NewWSHandler(srv *Server, allowedOrigins []string, pingInterval time.Duration) http.Handler {
	upgrader := websocket.Upgrader{
		CheckOrigin:  wsOriginValidator(allowedOrigins),
		Subprotocols: []string{"jsonrpc"},
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		transport := newWSTransport(conn, pingInterval)
		if err := srv.Accept(r.Context(), transport); err != nil {
			transport.Close()
		}
	})
}

// ListenWS starts an HTTP server at addr serving the WebSocket upgrade
// handler, mirroring the teacher's own ListenWS (rpc/websocket.go).
func ListenWS(s *Server, addr string, allowedOrigins []string, pingInterval time.Duration) (net.Listener, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	hs := &http.Server{Handler: NewWSHandler(s, allowedOrigins, pingInterval)}
	go hs.Serve(listener)
	return listener, nil
}

// DialWS dials a JSON-RPC server over WebSocket.
func DialWS(ctx context.Context, endpoint string, idProvider IDProvider, requestTimeout time.Duration) (*Client, error) {
	dialer := websocket.Dialer{Subprotocols: []string{"jsonrpc"}}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	transport := newWSTransport(conn, 0)
	return NewClient(transport, idProvider, requestTimeout, nil), nil
}
