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
	"fmt"
	"sync"
)

// maxResourceDimensions bounds the Resources table at 8 named dimensions
// (spec §3), grounded on
// original_source/core/src/server/resource_limiting.rs, which caps its table
// at the same 8 dimensions; here the table is a slice checked against this
// bound.
const maxResourceDimensions = 8

// ResourceConfig declares one named dimension's capacity and the default
// cost a call claims against it.
type ResourceConfig struct {
	Name        string
	Capacity    int
	DefaultCost int
}

type resourceSlot struct {
	name        string
	capacity    int
	defaultCost int
	inUse       int
}

// Resources is a fixed table of up to 8 capacity-limited dimensions shared
// by all connections on a Server. Claim/Release run under one short
// critical section, per spec §5.
type Resources struct {
	mu    sync.Mutex
	slots []resourceSlot
	index map[string]int
}

// NewResources builds a Resources table from the given dimension configs.
// It fails if there are more than 8 dimensions or a duplicate name.
func NewResources(cfgs []ResourceConfig) (*Resources, error) {
	if len(cfgs) > maxResourceDimensions {
		return nil, fmt.Errorf("rpc: at most %d resource dimensions allowed, got %d", maxResourceDimensions, len(cfgs))
	}
	r := &Resources{index: make(map[string]int, len(cfgs))}
	for _, c := range cfgs {
		if _, dup := r.index[c.Name]; dup {
			return nil, fmt.Errorf("rpc: duplicate resource dimension %q", c.Name)
		}
		r.index[c.Name] = len(r.slots)
		r.slots = append(r.slots, resourceSlot{name: c.Name, capacity: c.Capacity, defaultCost: c.DefaultCost})
	}
	return r, nil
}

// MethodCost overrides the default cost for one dimension on one method; it
// is stored on the registered handler, not here (see registry.go).
type MethodCost map[string]int

// ResourceGuard is held by one in-flight call; dropping it (via Release)
// returns the claimed costs.
type ResourceGuard struct {
	r      *Resources
	claims map[string]int
}

// Claim attempts to reserve cost units across every configured dimension
// atomically: either every dimension has room and all are claimed, or none
// are, and ErrCodeResourceLimit is returned (spec §3: "a call is rejected
// ... when any dimension would exceed its capacity"). Each dimension falls
// back to its configured DefaultCost when costs doesn't override it, so a
// method registered with a nil/empty MethodCost still claims the default
// cost on every dimension (spec §3 "each dimension ... with a default
// cost"); unknown names in costs (no matching dimension) are ignored.
func (r *Resources) Claim(costs MethodCost) (*ResourceGuard, error) {
	if r == nil || len(r.slots) == 0 {
		return &ResourceGuard{}, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	type resolvedClaim struct {
		idx  int
		cost int
	}
	claims := make([]resolvedClaim, 0, len(r.slots))
	for idx, slot := range r.slots {
		cost := slot.defaultCost
		if override, ok := costs[slot.name]; ok {
			cost = override
		}
		if cost == 0 {
			continue
		}
		claims = append(claims, resolvedClaim{idx: idx, cost: cost})
	}

	for _, cl := range claims {
		slot := r.slots[cl.idx]
		if slot.capacity > 0 && slot.inUse+cl.cost > slot.capacity {
			return nil, &Error{Code: ErrCodeResourceLimit, Message: fmt.Sprintf("resource %q at capacity", slot.name)}
		}
	}
	claimed := make(map[string]int, len(claims))
	for _, cl := range claims {
		r.slots[cl.idx].inUse += cl.cost
		claimed[r.slots[cl.idx].name] = cl.cost
	}
	return &ResourceGuard{r: r, claims: claimed}, nil
}

// Release returns every unit this guard claimed. Safe to call at most once.
func (g *ResourceGuard) Release() {
	if g == nil || g.r == nil {
		return
	}
	g.r.mu.Lock()
	defer g.r.mu.Unlock()
	for name, cost := range g.claims {
		if idx, ok := g.r.index[name]; ok {
			g.r.slots[idx].inUse -= cost
		}
	}
	g.claims = nil
	g.r = nil
}

// Usage reports current usage per dimension; used by tests to assert the
// accounting invariant in spec §8.
func (r *Resources) Usage() map[string]int {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.slots))
	for _, s := range r.slots {
		out[s.name] = s.inUse
	}
	return out
}
