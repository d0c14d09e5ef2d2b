package checkpoint

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryStoreConformance(t *testing.T) {
	runStoreConformance(t, NewMemoryStore())
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				id, err := store.Save(ctx, testCheckpoint("wf-conc", time.Now()))
				if err != nil {
					t.Errorf("Save: %v", err)
					return
				}
				if _, err := store.Load(ctx, id); err != nil {
					t.Errorf("Load: %v", err)
					return
				}
				if _, err := store.List(ctx, "wf-conc"); err != nil {
					t.Errorf("List: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	ids, err := store.List(ctx, "wf-conc")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 8*20 {
		t.Errorf("stored %d checkpoints, want %d", len(ids), 8*20)
	}
}
