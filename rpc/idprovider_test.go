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
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNumericIDProviderIsMonotonic(t *testing.T) {
	p := NewNumericIDProvider()
	first := p.NextID()
	second := p.NextID()
	require.NotEqual(t, first.String(), second.String())

	var want string
	for i := 0; i < 2; i++ {
		want = p.NextID().String()
	}
	require.Equal(t, "4", want)
}

func TestNumericIDProviderConcurrentUnique(t *testing.T) {
	p := NewNumericIDProvider()
	const n = 200
	seen := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- p.NextID().String()
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[string]struct{}, n)
	for s := range seen {
		unique[s] = struct{}{}
	}
	require.Len(t, unique, n)
}

func TestRandomIntIDProviderInSafeRange(t *testing.T) {
	p := NewRandomIntIDProvider()
	for i := 0; i < 50; i++ {
		id := p.NextID()
		num, err := strconv.ParseUint(id.String(), 10, 64)
		require.NoError(t, err)
		require.LessOrEqual(t, num, uint64(maxSafeInteger))
	}
}

func TestRandomStringIDProviderLengthClamped(t *testing.T) {
	require.Len(t, NewRandomStringIDProvider(0).NextID().String(), 8)
	require.Len(t, NewRandomStringIDProvider(1000).NextID().String(), 64)
	require.Len(t, NewRandomStringIDProvider(16).NextID().String(), 16)
}

func TestRandomStringIDProviderUnique(t *testing.T) {
	p := NewRandomStringIDProvider(16)
	a := p.NextID().String()
	b := p.NextID().String()
	require.NotEqual(t, a, b)
}
