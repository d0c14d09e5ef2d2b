package workflow

import (
	"sync"
	"testing"
)

func TestSharedStateBasicOps(t *testing.T) {
	s := NewSharedState()

	if _, ok := s.Get("missing"); ok {
		t.Error("Get on empty state should report absence")
	}

	s.Set("a", 1)
	s.Set("b", "two")
	if v, ok := s.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %v, %v; want 1, true", v, ok)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}

	s.Delete("a")
	if _, ok := s.Get("a"); ok {
		t.Error("deleted key should be absent")
	}
	s.Delete("a") // second delete is a no-op
}

func TestSharedStateUpdateIsAtomic(t *testing.T) {
	s := NewSharedState()
	const writers = 8
	const perWriter = 100

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				s.Update("counter", func(current any, ok bool) any {
					if !ok {
						return 1
					}
					return current.(int) + 1
				})
			}
		}()
	}
	wg.Wait()

	if v, _ := s.Get("counter"); v != writers*perWriter {
		t.Errorf("counter = %v, want %d", v, writers*perWriter)
	}
}

func TestSharedStateSnapshotRestore(t *testing.T) {
	s := NewSharedState()
	s.Set("k", "v")

	snap := s.Snapshot()
	s.Set("k", "changed")
	if snap["k"] != "v" {
		t.Error("snapshot should be detached from later writes")
	}

	restored := NewSharedState()
	restored.Restore(snap)
	if v, _ := restored.Get("k"); v != "v" {
		t.Errorf("restored value = %v, want v", v)
	}
	if got := len(restored.Keys()); got != 1 {
		t.Errorf("restored key count = %d, want 1", got)
	}
}
