package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// RequestID is a JSON-RPC id that may be a string or a number. The original
// wire form is preserved: a numeric id never turns into a string and vice
// versa, so correlation by String() key is exact.
type RequestID struct {
	value any
}

// NewRequestID wraps a string or numeric value as a request id. Unsupported
// types yield a nil-valued id, which callers should treat as absent.
func NewRequestID(value any) *RequestID {
	switch value.(type) {
	case string, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return &RequestID{value: value}
	default:
		return &RequestID{}
	}
}

// String returns the correlation key for the id. Numeric ids format without
// an exponent so that 7 and "7" remain distinguishable only by wire type,
// never by key collision within one session (the client allocates numeric
// ids exclusively).
func (id *RequestID) String() string {
	if id == nil || id.value == nil {
		return ""
	}
	switch v := id.value.(type) {
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Value returns the underlying string or numeric value.
func (id *RequestID) Value() any {
	if id == nil {
		return nil
	}
	return id.value
}

// IsNil reports whether the id is absent.
func (id *RequestID) IsNil() bool {
	return id == nil || id.value == nil
}

func (id *RequestID) MarshalJSON() ([]byte, error) {
	if id == nil || id.value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(id.value)
}

func (id *RequestID) UnmarshalJSON(data []byte) error {
	// Numbers first: a bare integer must round-trip as a number.
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		if num == float64(int64(num)) {
			id.value = int64(num)
		} else {
			id.value = num
		}
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		id.value = str
		return nil
	}
	return fmt.Errorf("request id must be a string or number, got: %s", string(data))
}
