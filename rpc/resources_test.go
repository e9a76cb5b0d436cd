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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResourcesRejectsTooManyDimensions(t *testing.T) {
	cfgs := make([]ResourceConfig, maxResourceDimensions+1)
	for i := range cfgs {
		cfgs[i] = ResourceConfig{Name: string(rune('a' + i)), Capacity: 10}
	}
	_, err := NewResources(cfgs)
	require.Error(t, err)
}

func TestResourcesRejectsDuplicateName(t *testing.T) {
	_, err := NewResources([]ResourceConfig{
		{Name: "conns", Capacity: 10},
		{Name: "conns", Capacity: 20},
	})
	require.Error(t, err)
}

func TestResourcesClaimAndRelease(t *testing.T) {
	r, err := NewResources([]ResourceConfig{{Name: "conns", Capacity: 2}})
	require.NoError(t, err)

	g1, err := r.Claim(MethodCost{"conns": 1})
	require.NoError(t, err)
	require.Equal(t, 1, r.Usage()["conns"])

	g2, err := r.Claim(MethodCost{"conns": 1})
	require.NoError(t, err)
	require.Equal(t, 2, r.Usage()["conns"])

	_, err = r.Claim(MethodCost{"conns": 1})
	require.Error(t, err)
	require.Equal(t, ErrCodeResourceLimit, ErrorCode(err))

	g1.Release()
	require.Equal(t, 1, r.Usage()["conns"])

	g3, err := r.Claim(MethodCost{"conns": 1})
	require.NoError(t, err)
	require.Equal(t, 2, r.Usage()["conns"])

	g2.Release()
	g3.Release()
	require.Equal(t, 0, r.Usage()["conns"])
}

func TestResourcesClaimIsAllOrNothing(t *testing.T) {
	r, err := NewResources([]ResourceConfig{
		{Name: "conns", Capacity: 10},
		{Name: "subs", Capacity: 1},
	})
	require.NoError(t, err)

	_, err = r.Claim(MethodCost{"subs": 1})
	require.NoError(t, err)

	_, err = r.Claim(MethodCost{"conns": 1, "subs": 1})
	require.Error(t, err)
	require.Equal(t, 0, r.Usage()["conns"], "conns must not be claimed when subs rejects the atomic claim")
}

func TestResourcesNilIsPermissive(t *testing.T) {
	var r *Resources
	g, err := r.Claim(MethodCost{"conns": 1})
	require.NoError(t, err)
	require.NotNil(t, g)
	g.Release()
}

func TestResourcesClaimAppliesDefaultCost(t *testing.T) {
	r, err := NewResources([]ResourceConfig{{Name: "conns", Capacity: 2, DefaultCost: 1}})
	require.NoError(t, err)

	g1, err := r.Claim(nil)
	require.NoError(t, err)
	require.Equal(t, 1, r.Usage()["conns"])

	g2, err := r.Claim(MethodCost{})
	require.NoError(t, err)
	require.Equal(t, 2, r.Usage()["conns"])

	_, err = r.Claim(nil)
	require.Error(t, err)
	require.Equal(t, ErrCodeResourceLimit, ErrorCode(err))

	g1.Release()
	g2.Release()
}

func TestResourcesClaimOverrideWinsOverDefaultCost(t *testing.T) {
	r, err := NewResources([]ResourceConfig{{Name: "conns", Capacity: 5, DefaultCost: 1}})
	require.NoError(t, err)

	g, err := r.Claim(MethodCost{"conns": 3})
	require.NoError(t, err)
	require.Equal(t, 3, r.Usage()["conns"])
	g.Release()
}
