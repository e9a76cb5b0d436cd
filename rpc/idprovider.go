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
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDProvider generates correlation ids for calls made by a Client, and
// subscription ids assigned by a Server (spec §4.2). Implementations must
// be safe for concurrent use and must never repeat an id for the lifetime
// of the connection it names.
type IDProvider interface {
	NextID() ID
}

// numericIDProvider is a monotonic counter, the simplest and cheapest
// provider; it is what the teacher's Client.nextID used (rpc/client.go).
type numericIDProvider struct {
	counter uint64
}

// NewNumericIDProvider returns an IDProvider that hands out a monotonically
// increasing sequence of unsigned integers starting at 1.
func NewNumericIDProvider() IDProvider {
	return &numericIDProvider{}
}

func (p *numericIDProvider) NextID() ID {
	return NumericID(atomic.AddUint64(&p.counter, 1))
}

// randomIntIDProvider hands out a random 53-bit integer, masked into the
// JavaScript-safe-integer range so numeric ids still round-trip through
// clients that decode JSON numbers as float64.
type randomIntIDProvider struct{}

// NewRandomIntIDProvider returns an IDProvider that hands out random
// integers in [0, 2^53).
func NewRandomIntIDProvider() IDProvider {
	return randomIntIDProvider{}
}

func (randomIntIDProvider) NextID() ID {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing is catastrophic for the process; fall back to
		// a uuid-derived value rather than panicking a live connection.
		u := uuid.New()
		return NumericID(binary.BigEndian.Uint64(u[:8]) & maxSafeInteger)
	}
	return NumericID(binary.BigEndian.Uint64(b[:]) & maxSafeInteger)
}

// randomStringIDProvider hands out random alphanumeric strings of a fixed
// length, built on top of a UUIDv4 (the teacher's own rpc/subscription.go
// NewID hex-encodes random bytes the same way; we ground the randomness
// source on google/uuid, used elsewhere in the example pack for the same
// "opaque unique token" role).
type randomStringIDProvider struct {
	length int
}

// NewRandomStringIDProvider returns an IDProvider that hands out random
// hex strings of the given length (minimum 8, maximum 64).
func NewRandomStringIDProvider(length int) IDProvider {
	if length < 8 {
		length = 8
	}
	if length > 64 {
		length = 64
	}
	return &randomStringIDProvider{length: length}
}

func (p *randomStringIDProvider) NextID() ID {
	out := make([]byte, 0, p.length)
	for len(out) < p.length {
		u := uuid.New()
		out = append(out, []byte(fmt.Sprintf("%x", u[:]))...)
	}
	return StringID(string(out[:p.length]))
}
