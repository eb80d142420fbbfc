package election

import (
	"context"
	"sync"
	"testing"
)

func TestKey(t *testing.T) {
	if got := Key("device:leaf1"); got != "P4RT_ELECTION|device:leaf1" {
		t.Errorf("Key() = %q, want %q", got, "P4RT_ELECTION|device:leaf1")
	}
}

func TestMemoryStore_Increasing(t *testing.T) {
	s := NewMemoryStore("test")
	ctx := context.Background()

	var last uint64
	for i := 0; i < 5; i++ {
		id, err := s.Next(ctx, "leaf1")
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if id.GetHigh() != 0 || id.GetLow() <= last {
			t.Fatalf("Next() = %v, want low > %d", id, last)
		}
		last = id.GetLow()
	}

	other, _ := s.Next(ctx, "leaf2")
	if other.GetLow() != 1 {
		t.Errorf("first id of another device = %d, want 1", other.GetLow())
	}
}

func TestMemoryStore_Current(t *testing.T) {
	s := NewMemoryStore("ctl-a")
	ctx := context.Background()

	r, err := s.Current(ctx, "leaf1")
	if err != nil || r != nil {
		t.Fatalf("Current() before Next = %v, %v; want nil, nil", r, err)
	}

	s.Next(ctx, "leaf1")
	s.Next(ctx, "leaf1")
	r, err = s.Current(ctx, "leaf1")
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if r.ID.GetLow() != 2 {
		t.Errorf("Current().ID = %d, want 2", r.ID.GetLow())
	}
	if r.Holder != "ctl-a" {
		t.Errorf("Current().Holder = %q, want %q", r.Holder, "ctl-a")
	}
	if r.Updated.IsZero() {
		t.Error("Current().Updated is zero")
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	s := NewMemoryStore("test")
	ctx := context.Background()

	const n = 50
	ids := make(chan uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, _ := s.Next(ctx, "leaf1")
			ids <- id.GetLow()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint64]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("id %d handed out twice", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Errorf("got %d distinct ids, want %d", len(seen), n)
	}
}
