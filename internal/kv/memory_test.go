package kv

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryStoreSetNXRejectsDuplicate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.SetNX(ctx, "k", []byte("v1"), time.Minute); err != nil {
		t.Fatalf("first SetNX: %v", err)
	}
	if err := s.SetNX(ctx, "k", []byte("v2"), time.Minute); err != ErrExists {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestMemoryStoreGetDelIsOneShot(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.SetNX(ctx, "k", []byte("v"), time.Minute)

	val, _, err := s.GetDelWithTTL(ctx, "k")
	if err != nil || string(val) != "v" {
		t.Fatalf("first GetDel: val=%q err=%v", val, err)
	}

	if _, _, err := s.GetDelWithTTL(ctx, "k"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound on second GetDel, got %v", err)
	}
}

func TestMemoryStoreConcurrentGetDelExactlyOneWinner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.SetNX(ctx, "k", []byte("v"), time.Minute)

	const n = 50
	var wg sync.WaitGroup
	var successes int
	var mu sync.Mutex

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, _, err := s.GetDelWithTTL(ctx, "k"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly 1 successful GetDel, got %d", successes)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.SetNX(ctx, "k", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("SetNX: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if _, _, err := s.GetDelWithTTL(ctx, "k"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestMemoryStoreRestorePreservesRecord(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.SetNX(ctx, "k", []byte("v"), time.Minute)
	val, _, err := s.GetDelWithTTL(ctx, "k")
	if err != nil {
		t.Fatalf("GetDel: %v", err)
	}

	if err := s.Restore(ctx, "k", val, time.Minute); err != nil {
		t.Fatalf("restore: %v", err)
	}

	got, err := s.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("get after restore: val=%q err=%v", got, err)
	}
}
