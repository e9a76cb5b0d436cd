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
	"encoding/json"
	"sync"
	"sync/atomic"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethrpc/jsonrpc2/internal/rpclog"
)

// MetadataApi is the namespace the server's own introspection methods are
// registered under, the same convention the teacher used (rpc/server.go).
const MetadataApi = "rpc"

// ServerConfig bundles the admission-control and sizing knobs spec §3
// attaches to a server: connection/subscription caps, request/response size
// ceilings, and the strategy used when a subscription's outbox is full.
type ServerConfig struct {
	MaxConnections          int
	MaxSubscriptionsPerConn int
	MaxRequestSize          int
	MaxResponseSize         int
	MaxBatchSize            int
	SinkStrategy            SinkStrategy
	Resources               []ResourceConfig
	SubscriptionIDProvider  IDProvider
	Log                     *rpclog.Logger

	// AllowedHosts, when non-empty, restricts HTTP requests to Host headers
	// matching one of these entries (spec §6 allow_hosts; SPEC_FULL §5
	// host-filtering supplement). Enforced by NewHTTPHandler. Empty means
	// no Host filtering.
	AllowedHosts []string
}

// Server is a JSON-RPC server: a method registry, a set of admission-control
// guards, and a middleware pipeline shared by every accepted connection
// (spec §3, §4.8). It generalizes the teacher's reflection-based Server
// (rpc/server.go), which discovered methods on a registered receiver value,
// into one driven by a pre-built ServiceRegistry.
type Server struct {
	registry   *ServiceRegistry
	resources  *Resources
	connGuard  *ConnectionGuard
	subsMax    int
	idProvider IDProvider
	cfg        ServerConfig
	layers     []Layer
	log        *rpclog.Logger

	stop *stopSignal

	mu    sync.Mutex
	conns mapset.Set[*Conn]

	nextConnID uint64
}

// NewServer builds a server around registry, wiring up the rpc_modules
// introspection method the way the teacher's NewServer installs RPCService.
func NewServer(registry *ServiceRegistry, cfg ServerConfig, layers ...Layer) (*Server, error) {
	resources, err := NewResources(cfg.Resources)
	if err != nil {
		return nil, err
	}
	idp := cfg.SubscriptionIDProvider
	if idp == nil {
		idp = NewRandomStringIDProvider(16)
	}
	log := cfg.Log
	if log == nil {
		log = rpclog.Default
	}
	s := &Server{
		registry:   registry,
		resources:  resources,
		connGuard:  NewConnectionGuard(cfg.MaxConnections),
		subsMax:    cfg.MaxSubscriptionsPerConn,
		idProvider: idp,
		cfg:        cfg,
		layers:     layers,
		log:        log,
		stop:       newStopSignal(),
		conns:      mapset.NewSet[*Conn](),
	}
	registry.RegisterMethod(MetadataApi+"_modules", s.handleModules, nil)
	return s, nil
}

func (s *Server) handleModules(id ID, params json.RawMessage, maxResponseSize int, ext *Extensions) (any, error) {
	return s.registry.Modules(), nil
}

// Accept admits a new connection over transport, refusing it outright if
// MaxConnections has no free permit (spec §4.8 "Admission"). It returns
// immediately; the connection runs on its own goroutine until its transport
// closes or the server stops.
func (s *Server) Accept(ctx context.Context, transport Transport) error {
	permit, ok := s.connGuard.TryAcquire()
	if !ok {
		transport.Close()
		return &Error{Code: ErrCodeTooManyConnections, Message: "too many connections"}
	}

	connID := atomic.AddUint64(&s.nextConnID, 1)
	out := newOutbox(0)
	subs := NewBoundedSubscriptions(s.subsMax)
	dispatch := newDispatcher(s.registry, s.resources, subs, out, connID, s.cfg.MaxResponseSize, s.cfg.SinkStrategy, s.idProvider, s.log)

	base := &baseService{dispatch: dispatch}
	svc := Chain(s.layers...).Wrap(base)

	conn := newConn(connID, transport, svc, dispatch, permit, s.cfg.MaxRequestSize, s.cfg.MaxBatchSize, s.stop, s.log)

	s.mu.Lock()
	s.conns.Add(conn)
	s.mu.Unlock()

	go s.serveOutbox(ctx, conn, out)
	go func() {
		conn.Serve(ctx)
		s.mu.Lock()
		s.conns.Remove(conn)
		s.mu.Unlock()
	}()
	return nil
}

// serveOutbox drains the per-connection outbox populated by subscription
// sinks, the write side of the paired read/write loop spec §4.8 describes.
func (s *Server) serveOutbox(ctx context.Context, conn *Conn, out *outbox) {
	for {
		select {
		case msg, ok := <-out.ch:
			if !ok {
				return
			}
			if err := conn.transport.Send(ctx, msg); err != nil {
				s.log.Debug("failed to deliver subscription notification", "conn", conn.id, "err", err)
				return
			}
		case <-conn.stop.C():
			return
		}
	}
}

// Stop signals every connection to wind down. It does not block for
// connections to finish; callers that need that should track connections
// externally (spec §4.9 leaves drain timing to the embedder).
func (s *Server) Stop() {
	s.stop.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns.Each(func(c *Conn) bool {
		c.transport.Close()
		return false
	})
}

// Stopped reports whether Stop has been called.
func (s *Server) Stopped() bool { return s.stop.Stopped() }

// RegisterMethod is a convenience forward to the underlying registry.
func (s *Server) RegisterMethod(name string, h SyncHandler, costs MethodCost) error {
	return s.registry.RegisterMethod(name, h, costs)
}

// RegisterAsyncMethod is a convenience forward to the underlying registry.
func (s *Server) RegisterAsyncMethod(name string, h AsyncHandler, costs MethodCost) error {
	return s.registry.RegisterAsyncMethod(name, h, costs)
}

// RegisterSubscription is a convenience forward to the underlying registry.
func (s *Server) RegisterSubscription(subscribeMethod, unsubscribeMethod, notificationMethod string, h SubscriptionHandler) error {
	return s.registry.RegisterSubscription(subscribeMethod, unsubscribeMethod, notificationMethod, h)
}
