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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIDRoundTrip(t *testing.T) {
	cases := []ID{NumericID(1), NumericID(maxSafeInteger), StringID("abc"), NullID}
	for _, id := range cases {
		b, err := json.Marshal(id)
		require.NoError(t, err)

		var out ID
		require.NoError(t, json.Unmarshal(b, &out))
		require.True(t, id.Equal(out), "id %s did not round-trip, got %s", id.String(), out.String())
	}
}

func TestIDRejectsOutOfRangeNumber(t *testing.T) {
	var id ID
	err := id.UnmarshalJSON([]byte("18446744073709551615"))
	require.Error(t, err)
}

func TestIDRejectsObject(t *testing.T) {
	var id ID
	err := id.UnmarshalJSON([]byte(`{"a":1}`))
	require.Error(t, err)
}

func TestDecodeIncomingSingle(t *testing.T) {
	msgs, batch, err := DecodeIncoming([]byte(`{"jsonrpc":"2.0","id":1,"method":"foo","params":[1,2]}`))
	require.NoError(t, err)
	require.False(t, batch)
	require.Len(t, msgs, 1)
	require.True(t, msgs[0].isRequest())
}

func TestDecodeIncomingBatch(t *testing.T) {
	msgs, batch, err := DecodeIncoming([]byte(`[{"jsonrpc":"2.0","id":1,"method":"foo"},{"jsonrpc":"2.0","id":2,"method":"bar"}]`))
	require.NoError(t, err)
	require.True(t, batch)
	require.Len(t, msgs, 2)
}

func TestDecodeIncomingEmptyBatchRejected(t *testing.T) {
	_, _, err := DecodeIncoming([]byte(`[]`))
	require.Error(t, err)
}

func TestDecodeIncomingWrongVersionRejected(t *testing.T) {
	_, _, err := DecodeIncoming([]byte(`{"jsonrpc":"1.0","id":1,"method":"foo"}`))
	require.Error(t, err)
}

func TestDecodeIncomingResponseBothResultAndErrorRejected(t *testing.T) {
	_, _, err := DecodeIncoming([]byte(`{"jsonrpc":"2.0","id":1,"result":1,"error":{"code":-32000,"message":"x"}}`))
	require.Error(t, err)
}

func TestIsBatch(t *testing.T) {
	require.True(t, isBatch([]byte("  [1,2]")))
	require.False(t, isBatch([]byte("  {\"a\":1}")))
}
