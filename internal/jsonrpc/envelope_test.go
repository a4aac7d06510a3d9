package jsonrpc

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEncodeRequestRoundTrip(t *testing.T) {
	t.Parallel()

	id := NewRequestID(int64(7))
	data, err := EncodeRequest(id, "tools/list", map[string]any{"cursor": "abc"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	env, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Kind != KindRequest {
		t.Fatalf("expected request, got %s", env.Kind)
	}
	if env.Method != "tools/list" {
		t.Fatalf("method = %q", env.Method)
	}
	if env.ID.String() != "7" {
		t.Fatalf("id = %q", env.ID.String())
	}
	var params map[string]any
	if err := json.Unmarshal(env.Params, &params); err != nil {
		t.Fatalf("unmarshal params: %v", err)
	}
	if params["cursor"] != "abc" {
		t.Fatalf("params = %v", params)
	}
}

func TestEncodeRequestOmitsNilParams(t *testing.T) {
	t.Parallel()

	data, err := EncodeRequest(NewRequestID(1), "ping", nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := raw["params"]; ok {
		t.Fatalf("params key should be absent: %s", data)
	}
}

func TestEncodeNotificationHasNoID(t *testing.T) {
	t.Parallel()

	data, err := EncodeNotification("notifications/initialized", struct{}{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := raw["id"]; ok {
		t.Fatalf("id key should be absent: %s", data)
	}

	env, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Kind != KindNotification {
		t.Fatalf("expected notification, got %s", env.Kind)
	}
}

func TestDecodeResponse(t *testing.T) {
	t.Parallel()

	env, err := Decode([]byte(`{"jsonrpc":"2.0","id":1,"result":{"tools":[]}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Kind != KindResponse {
		t.Fatalf("expected response, got %s", env.Kind)
	}
	if env.ID.String() != "1" {
		t.Fatalf("id = %q", env.ID.String())
	}
	if string(env.Result) != `{"tools":[]}` {
		t.Fatalf("result = %s", env.Result)
	}
}

func TestDecodeError(t *testing.T) {
	t.Parallel()

	env, err := Decode([]byte(`{"jsonrpc":"2.0","id":"req-1","error":{"code":-32601,"message":"method not found"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Kind != KindError {
		t.Fatalf("expected error, got %s", env.Kind)
	}
	if env.Err.Code != -32601 || env.Err.Message != "method not found" {
		t.Fatalf("err = %+v", env.Err)
	}
}

func TestDecodeErrorTakesPrecedenceOverResult(t *testing.T) {
	t.Parallel()

	env, err := Decode([]byte(`{"jsonrpc":"2.0","id":1,"result":{"ok":true},"error":{"code":-32000,"message":"boom"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Kind != KindError {
		t.Fatalf("expected error kind when both keys present, got %s", env.Kind)
	}
	if env.Err.Code != -32000 {
		t.Fatalf("err = %+v", env.Err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		data string
	}{
		{"bad json", `{"jsonrpc":`},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"result":{}}`},
		{"missing version", `{"id":1,"result":{}}`},
		{"method with result", `{"jsonrpc":"2.0","id":1,"method":"x","result":{}}`},
		{"method with error", `{"jsonrpc":"2.0","id":1,"method":"x","error":{"code":1,"message":"m"}}`},
		{"no method result or error", `{"jsonrpc":"2.0","id":1}`},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Decode([]byte(tc.data)); !errors.Is(err, ErrMalformedEnvelope) {
				t.Fatalf("expected ErrMalformedEnvelope, got %v", err)
			}
		})
	}
}

func TestRequestIDPreservesWireForm(t *testing.T) {
	t.Parallel()

	var numeric RequestID
	if err := json.Unmarshal([]byte(`7`), &numeric); err != nil {
		t.Fatalf("unmarshal numeric: %v", err)
	}
	out, err := json.Marshal(&numeric)
	if err != nil {
		t.Fatalf("marshal numeric: %v", err)
	}
	if string(out) != `7` {
		t.Fatalf("numeric id re-marshaled as %s", out)
	}

	var str RequestID
	if err := json.Unmarshal([]byte(`"7"`), &str); err != nil {
		t.Fatalf("unmarshal string: %v", err)
	}
	out, err = json.Marshal(&str)
	if err != nil {
		t.Fatalf("marshal string: %v", err)
	}
	if string(out) != `"7"` {
		t.Fatalf("string id re-marshaled as %s", out)
	}

	if numeric.String() != str.String() {
		t.Fatalf("correlation keys differ: %q vs %q", numeric.String(), str.String())
	}
}

func TestRequestIDRejectsInvalid(t *testing.T) {
	t.Parallel()

	var id RequestID
	if err := json.Unmarshal([]byte(`{"nested":true}`), &id); err == nil {
		t.Fatal("expected error for object id")
	}
	if err := json.Unmarshal([]byte(`true`), &id); err == nil {
		t.Fatal("expected error for boolean id")
	}
}

func TestRequestIDNil(t *testing.T) {
	t.Parallel()

	var id *RequestID
	if !id.IsNil() {
		t.Fatal("nil pointer should be nil id")
	}
	if id.String() != "" {
		t.Fatalf("nil id key = %q", id.String())
	}
	empty := &RequestID{}
	if !empty.IsNil() {
		t.Fatal("zero value should be nil id")
	}
}
