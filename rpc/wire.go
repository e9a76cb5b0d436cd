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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Version is the only JSON-RPC protocol version this package understands.
const Version = "2.0"

// maxSafeInteger is the largest integer that round-trips through an IEEE754
// double without loss, i.e. the same bound JavaScript clients apply to
// numeric ids.
const maxSafeInteger = 1<<53 - 1

// ID is a correlation value: null, an unsigned integer, or a string. It
// round-trips bitwise through JSON by keeping the raw encoding around.
type ID struct {
	raw json.RawMessage
}

// NumericID builds an ID from an unsigned integer.
func NumericID(v uint64) ID {
	if v > maxSafeInteger {
		v = maxSafeInteger
	}
	return ID{raw: json.RawMessage(fmt.Sprintf("%d", v))}
}

// StringID builds an ID from a string.
func StringID(v string) ID {
	b, _ := json.Marshal(v)
	return ID{raw: b}
}

// NullID is the id used by responses that cannot be correlated
// (e.g. a parse error on the way in).
var NullID = ID{raw: json.RawMessage("null")}

// IsNull reports whether the id is the JSON null id.
func (id ID) IsNull() bool {
	return id.raw == nil || bytes.Equal(bytes.TrimSpace(id.raw), []byte("null"))
}

// String renders the id for logging; it does not unquote string ids.
func (id ID) String() string {
	if id.raw == nil {
		return "null"
	}
	return string(id.raw)
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.raw == nil {
		return []byte("null"), nil
	}
	return id.raw, nil
}

// UnmarshalJSON implements json.Unmarshaler. It accepts null, a JSON number
// within the safe-integer range, or a JSON string; anything else is rejected.
func (id *ID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0:
		return errors.New("rpc: empty id")
	case bytes.Equal(trimmed, []byte("null")):
		*id = ID{raw: append(json.RawMessage(nil), trimmed...)}
		return nil
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return fmt.Errorf("rpc: invalid string id: %w", err)
		}
		*id = ID{raw: append(json.RawMessage(nil), trimmed...)}
		return nil
	case trimmed[0] == '-' || (trimmed[0] >= '0' && trimmed[0] <= '9'):
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return fmt.Errorf("rpc: invalid numeric id: %w", err)
		}
		if iv, err := n.Int64(); err != nil || iv < 0 || uint64(iv) > maxSafeInteger {
			return fmt.Errorf("rpc: numeric id %s out of safe integer range", n)
		}
		*id = ID{raw: append(json.RawMessage(nil), trimmed...)}
		return nil
	default:
		return fmt.Errorf("rpc: invalid id %q", trimmed)
	}
}

// Equal reports whether two ids are bitwise identical on the wire.
func (id ID) Equal(other ID) bool {
	return bytes.Equal(id.raw, other.raw)
}

// Request is a JSON-RPC call expecting a Response.
type Request struct {
	ID     ID              `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Notification is a JSON-RPC request with no id and therefore no Response.
type Notification struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response carries exactly one of Result or Error.
type Response struct {
	ID     ID              `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// IsError reports whether the response carries an error.
func (r *Response) IsError() bool { return r.Error != nil }

// MarshalJSON implements json.Marshaler, writing the "jsonrpc":"2.0" member
// that every response on the wire carries.
func (r Response) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireMessage{Version: Version, ID: json.RawMessage(r.ID.String()), Result: r.Result, Error: r.Error})
}

// subscriptionNotificationParams is the envelope carried as the params of a
// server-originated Notification for an active subscription (spec §3, §6):
//
//	{"subscription": <id>, "result": <payload>}
type subscriptionNotificationParams struct {
	Subscription ID              `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

// wireMessage is the superset shape used to decode any single incoming
// message before it is classified. Keeping one decode-shape for all four
// wire forms is the teacher's own jsonrpcMessage trick (rpc/client.go); we
// keep the trick and split out typed accessors around it.
type wireMessage struct {
	Version string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

func (m *wireMessage) hasID() bool {
	return len(m.ID) > 0 && !bytes.Equal(bytes.TrimSpace(m.ID), []byte("null"))
}

func (m *wireMessage) isNotification() bool {
	return !m.hasID() && m.Method != ""
}

func (m *wireMessage) isRequest() bool {
	return m.hasID() && m.Method != ""
}

func (m *wireMessage) isResponse() bool {
	return m.hasID() && m.Method == "" && (m.Result != nil || m.Error != nil)
}

func (m *wireMessage) id() ID {
	if len(m.ID) == 0 {
		return NullID
	}
	return ID{raw: append(json.RawMessage(nil), m.ID...)}
}

// firstNonWhitespace scans up to a bounded prefix for the first
// non-whitespace byte, per spec §4.1's discrimination rule.
const maxWhitespaceScan = 4096

func firstNonWhitespace(b []byte) (byte, bool) {
	for i := 0; i < len(b) && i < maxWhitespaceScan; i++ {
		switch b[i] {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			return b[i], true
		}
	}
	return 0, false
}

// isBatch reports whether raw is a batch (JSON array) rather than a single
// object, based purely on the first non-whitespace byte.
func isBatch(raw []byte) bool {
	c, ok := firstNonWhitespace(raw)
	return ok && c == '['
}

// DecodeIncoming classifies and parses one top-level piece of wire data,
// which may be a single message or a batch. It never returns a nil slice on
// success: a well-formed single message yields a one-element slice.
func DecodeIncoming(raw []byte) (msgs []wireMessage, batch bool, err error) {
	c, ok := firstNonWhitespace(raw)
	if !ok {
		return nil, false, &WireError{Code: ErrCodeParse, Message: "empty request"}
	}
	switch c {
	case '{':
		var m wireMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, false, &WireError{Code: ErrCodeParse, Message: "invalid JSON: " + err.Error()}
		}
		if err := validateMessage(&m); err != nil {
			return nil, false, err
		}
		return []wireMessage{m}, false, nil
	case '[':
		var ms []wireMessage
		if err := json.Unmarshal(raw, &ms); err != nil {
			return nil, false, &WireError{Code: ErrCodeParse, Message: "invalid JSON: " + err.Error()}
		}
		if len(ms) == 0 {
			return nil, true, &WireError{Code: ErrCodeInvalidRequest, Message: "empty batch"}
		}
		for i := range ms {
			if err := validateMessage(&ms[i]); err != nil {
				return nil, true, err
			}
		}
		return ms, true, nil
	default:
		return nil, false, &WireError{Code: ErrCodeParse, Message: "request must start with '{' or '['"}
	}
}

// validateMessage enforces the wire invariants from spec §4.1: exact
// "jsonrpc":"2.0", exactly one of result/error on responses, no id on
// notifications.
func validateMessage(m *wireMessage) error {
	if m.Version != Version {
		return &WireError{Code: ErrCodeInvalidRequest, Message: fmt.Sprintf("invalid or missing jsonrpc version, want %q", Version)}
	}
	if m.Result != nil && m.Error != nil {
		return &WireError{Code: ErrCodeInvalidRequest, Message: "response carries both result and error"}
	}
	if m.Method == "" && m.Result == nil && m.Error == nil {
		return &WireError{Code: ErrCodeInvalidRequest, Message: "message has neither method nor result/error"}
	}
	return nil
}
