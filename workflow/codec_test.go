package workflow

import (
	"testing"

	"github.com/microsoft/agent-framework-go/workflow/checkpoint"
)

type codecOrder struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

func TestCodecRoundTripsRegisteredType(t *testing.T) {
	RegisterMessageType[codecOrder]()

	env, err := encodeValue(codecOrder{Item: "widget", Count: 3})
	if err != nil {
		t.Fatalf("encodeValue: %v", err)
	}
	if env.Type != "workflow.codecOrder" {
		t.Errorf("envelope type = %q", env.Type)
	}

	v, err := decodeValue(env)
	if err != nil {
		t.Fatalf("decodeValue: %v", err)
	}
	order, ok := v.(codecOrder)
	if !ok {
		t.Fatalf("decoded type = %T, want codecOrder", v)
	}
	if order.Item != "widget" || order.Count != 3 {
		t.Errorf("decoded = %+v", order)
	}
}

func TestCodecAutoRegistersOnEncode(t *testing.T) {
	type autoType struct {
		N int `json:"n"`
	}
	env, err := encodeValue(autoType{N: 7})
	if err != nil {
		t.Fatal(err)
	}
	v, err := decodeValue(env)
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := v.(autoType); !ok || got.N != 7 {
		t.Errorf("decoded = %#v, want typed value via auto-registration", v)
	}
}

func TestCodecUnknownTypeFallsBackToGenericJSON(t *testing.T) {
	env := checkpoint.Envelope{
		Type: "otherpkg.Unknown",
		Data: []byte(`{"field":"value"}`),
	}
	v, err := decodeValue(env)
	if err != nil {
		t.Fatalf("decodeValue: %v", err)
	}
	m, ok := v.(map[string]any)
	if !ok || m["field"] != "value" {
		t.Errorf("decoded = %#v, want generic map", v)
	}
}

func TestCodecBuiltinsAlwaysRegistered(t *testing.T) {
	for _, v := range []any{"s", 1, true, 1.5, RequestInfoMessage{RequestID: "r"}} {
		env, err := encodeValue(v)
		if err != nil {
			t.Fatalf("encodeValue(%T): %v", v, err)
		}
		got, err := decodeValue(env)
		if err != nil {
			t.Fatalf("decodeValue(%T): %v", v, err)
		}
		switch want := v.(type) {
		case RequestInfoMessage:
			req, ok := got.(RequestInfoMessage)
			if !ok || req.RequestID != want.RequestID {
				t.Errorf("request round trip = %#v", got)
			}
		default:
			if got != v {
				t.Errorf("round trip of %T: got %v, want %v", v, got, v)
			}
		}
	}
}

func TestCodecMessageRoundTrip(t *testing.T) {
	msg := Message{Data: codecOrder{Item: "x", Count: 1}, SourceID: "a", TargetID: "b"}
	cm, err := encodeMessage(msg)
	if err != nil {
		t.Fatalf("encodeMessage: %v", err)
	}
	if cm.SourceID != "a" || cm.TargetID != "b" {
		t.Errorf("encoded message = %+v", cm)
	}
	back, err := decodeMessage(cm)
	if err != nil {
		t.Fatalf("decodeMessage: %v", err)
	}
	if back.SourceID != "a" || back.TargetID != "b" {
		t.Errorf("decoded message = %+v", back)
	}
	if order, ok := back.Data.(codecOrder); !ok || order.Item != "x" {
		t.Errorf("decoded payload = %#v", back.Data)
	}
}
