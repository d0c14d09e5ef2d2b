package workflow

import "sync"

// SharedState is the process-scoped key/value store visible to every executor
// in one run.
//
// Access to individual keys is serialized by an internal mutex, so concurrent
// reads and writes are safe. Writes from executors running in parallel within
// a single superstep race under last-writer-wins: cross-executor coordination
// must flow through the message graph, not through shared-state races.
// Reads and writes are not transactional across keys.
//
// Entries persist for the lifetime of a run and across checkpoint/restore.
type SharedState struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewSharedState returns an empty SharedState.
func NewSharedState() *SharedState {
	return &SharedState{values: make(map[string]any)}
}

// Get returns the value for key and whether it exists.
func (s *SharedState) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key, replacing any previous value.
func (s *SharedState) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Update applies fn to the current value of key under the state lock and
// stores the result. The existing value (or nil) and its presence are passed
// to fn. Use this for read-modify-write sequences such as counters.
func (s *SharedState) Update(key string, fn func(current any, ok bool) any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	s.values[key] = fn(v, ok)
}

// Delete removes key. Deleting a missing key is a no-op.
func (s *SharedState) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Keys returns a snapshot of the stored keys in unspecified order.
func (s *SharedState) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of stored entries.
func (s *SharedState) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Snapshot returns a shallow copy of the store. Values are shared, so callers
// must not mutate values reachable from the snapshot.
func (s *SharedState) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Restore replaces the store contents with values. Used when resuming from a
// checkpoint.
func (s *SharedState) Restore(values map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]any, len(values))
	for k, v := range values {
		s.values[k] = v
	}
}
