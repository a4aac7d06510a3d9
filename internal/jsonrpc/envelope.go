// Package jsonrpc implements the JSON-RPC 2.0 envelope codec used on both
// the submission channel and the event stream. Wire bytes are decoded once
// at the boundary into a tagged Envelope; nothing downstream handles raw
// maps.
package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Version is the supported JSON-RPC protocol version.
const Version = "2.0"

// ErrMalformedEnvelope indicates wire bytes that do not form a valid
// JSON-RPC message: bad JSON, wrong version, or a shape that is neither a
// request, notification, response, nor error.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Kind discriminates the envelope union.
type Kind int

const (
	KindRequest Kind = iota
	KindNotification
	KindResponse
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	case KindResponse:
		return "response"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Error is a JSON-RPC error object. It implements error so a well-formed
// server error can be returned to the caller directly.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Envelope is the decoded form of one wire message. Exactly one Kind
// applies; the populated fields follow from it:
//
//	KindRequest       Method, Params, ID
//	KindNotification  Method, Params
//	KindResponse      ID, Result
//	KindError         ID, Err
type Envelope struct {
	Kind   Kind
	Method string
	Params json.RawMessage
	Result json.RawMessage
	Err    *Error
	ID     *RequestID
}

// wireMessage is the raw superset shape used for encoding and decoding.
type wireMessage struct {
	Version string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Err     *Error          `json:"error,omitempty"`
	ID      *RequestID      `json:"id,omitempty"`
}

// EncodeRequest produces the wire bytes for a request with the given id.
func EncodeRequest(id *RequestID, method string, params any) ([]byte, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireMessage{Version: Version, Method: method, Params: raw, ID: id})
}

// EncodeNotification produces the wire bytes for a notification. No id is
// attached, so no reply is expected.
func EncodeNotification(method string, params any) ([]byte, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireMessage{Version: Version, Method: method, Params: raw})
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return raw, nil
}

// Decode parses wire bytes into an Envelope. An object carrying an error
// field always decodes as KindError, even if a result key is also present:
// a server that sends both is reporting a failure, and treating it as
// success would hand the caller a result the server disowned.
func Decode(data []byte) (*Envelope, error) {
	var raw wireMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if raw.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %q", ErrMalformedEnvelope, raw.Version)
	}

	if raw.Method != "" {
		if len(raw.Result) > 0 || raw.Err != nil {
			return nil, fmt.Errorf("%w: request mixes method with result or error", ErrMalformedEnvelope)
		}
		env := &Envelope{Method: raw.Method, Params: raw.Params, ID: raw.ID}
		if raw.ID.IsNil() {
			env.Kind = KindNotification
			env.ID = nil
		} else {
			env.Kind = KindRequest
		}
		return env, nil
	}

	if raw.Err != nil {
		return &Envelope{Kind: KindError, Err: raw.Err, ID: raw.ID}, nil
	}
	if len(raw.Result) > 0 {
		return &Envelope{Kind: KindResponse, Result: raw.Result, ID: raw.ID}, nil
	}
	return nil, fmt.Errorf("%w: message has neither method, result, nor error", ErrMalformedEnvelope)
}
