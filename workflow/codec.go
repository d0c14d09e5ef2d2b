package workflow

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/microsoft/agent-framework-go/workflow/checkpoint"
)

// The payload codec serializes message payloads and shared-state values for
// checkpointing. Values are wrapped in a self-describing envelope carrying
// the registered type name, so a restored run rehydrates payloads to their
// original Go types and handler dispatch keeps working after resume.
//
// Types seen by the codec during a run are registered automatically, which
// covers resume within the same process. A process restoring a checkpoint it
// did not write must register the payload types up front with
// RegisterMessageType; unregistered payloads decode as generic JSON values.

type typeRegistry struct {
	mu     sync.RWMutex
	byName map[string]reflect.Type
}

var registry = &typeRegistry{byName: make(map[string]reflect.Type)}

// RegisterMessageType registers T with the payload codec so checkpointed
// values of T are restored to their concrete type on load.
func RegisterMessageType[T any]() {
	registry.register(reflect.TypeOf((*T)(nil)).Elem())
}

func (r *typeRegistry) register(t reflect.Type) {
	if t == nil {
		return
	}
	name := t.String()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[name] = t
}

func (r *typeRegistry) lookup(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

func init() {
	// The runtime's own wire types are always restorable.
	RegisterMessageType[RequestInfoMessage]()
	RegisterMessageType[RequestResponse]()
	RegisterMessageType[string]()
	RegisterMessageType[int]()
	RegisterMessageType[bool]()
	RegisterMessageType[float64]()
}

// encodeValue wraps v in a typed envelope, registering its dynamic type.
func encodeValue(v any) (checkpoint.Envelope, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return checkpoint.Envelope{}, fmt.Errorf("encode value of type %T: %w", v, err)
	}
	env := checkpoint.Envelope{Data: data}
	if t := reflect.TypeOf(v); t != nil {
		registry.register(t)
		env.Type = t.String()
	}
	return env, nil
}

// decodeValue rehydrates an envelope, preferring the registered concrete
// type and falling back to generic JSON decoding.
func decodeValue(env checkpoint.Envelope) (any, error) {
	if env.Type != "" {
		if t, ok := registry.lookup(env.Type); ok {
			ptr := reflect.New(t)
			if err := json.Unmarshal(env.Data, ptr.Interface()); err != nil {
				return nil, fmt.Errorf("decode value of type %s: %w", env.Type, err)
			}
			return ptr.Elem().Interface(), nil
		}
	}
	var v any
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return nil, fmt.Errorf("decode untyped value: %w", err)
	}
	return v, nil
}

// encodeMessage converts a runtime message to its checkpoint form.
func encodeMessage(msg Message) (checkpoint.Message, error) {
	env, err := encodeValue(msg.Data)
	if err != nil {
		return checkpoint.Message{}, err
	}
	return checkpoint.Message{
		SourceID: msg.SourceID,
		TargetID: msg.TargetID,
		Data:     env,
	}, nil
}

// decodeMessage converts a checkpointed message back to its runtime form.
func decodeMessage(cm checkpoint.Message) (Message, error) {
	data, err := decodeValue(cm.Data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		SourceID: cm.SourceID,
		TargetID: cm.TargetID,
		Data:     data,
	}, nil
}
