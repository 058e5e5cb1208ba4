package pool

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
)

func TestBorrowReleaseRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p, err := New(4)
	if err != nil {
		t.Fatal(err)
	}
	defer p.CloseAll()

	path := filepath.Join(dir, "t1.db")
	h, err := p.Borrow(context.Background(), path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.DB.Exec("CREATE TABLE IF NOT EXISTS x (id INTEGER)"); err != nil {
		t.Fatal(err)
	}
	h.Release()

	if p.Len() != 1 {
		t.Fatalf("expected 1 cached entry, got %d", p.Len())
	}
}

func TestColdOpenCoalescing(t *testing.T) {
	dir := t.TempDir()
	p, err := New(4)
	if err != nil {
		t.Fatal(err)
	}
	defer p.CloseAll()

	path := filepath.Join(dir, "t1.db")

	var wg sync.WaitGroup
	handles := make([]*Handle, 20)
	errs := make([]error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = p.Borrow(context.Background(), path, nil)
		}(i)
	}
	wg.Wait()

	var dbPtr *sql.DB
	for i, h := range handles {
		if errs[i] != nil {
			t.Fatalf("borrow %d failed: %v", i, errs[i])
		}
		if dbPtr == nil {
			dbPtr = h.DB
		} else if h.DB != dbPtr {
			t.Fatalf("expected all concurrent borrows of the same key to share one *sql.DB")
		}
	}
	for _, h := range handles {
		h.Release()
	}

	if p.Len() != 1 {
		t.Fatalf("expected exactly one pool entry after coalesced opens, got %d", p.Len())
	}
}

func TestPoolBoundUnderEviction(t *testing.T) {
	dir := t.TempDir()
	p, err := New(2)
	if err != nil {
		t.Fatal(err)
	}
	defer p.CloseAll()

	for i := 0; i < 10; i++ {
		path := filepath.Join(dir, fmt.Sprintf("t%d.db", i))
		h, err := p.Borrow(context.Background(), path, nil)
		if err != nil {
			t.Fatal(err)
		}
		h.Release()
		if p.Len() > 2 {
			t.Fatalf("pool bound violated: Len() = %d > capacity 2", p.Len())
		}
	}
}

func TestEvictionDeferredWhileBorrowed(t *testing.T) {
	dir := t.TempDir()
	p, err := New(1)
	if err != nil {
		t.Fatal(err)
	}
	defer p.CloseAll()

	path1 := filepath.Join(dir, "a.db")
	path2 := filepath.Join(dir, "b.db")

	h1, err := p.Borrow(context.Background(), path1, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Evict path1 by borrowing path2 into a capacity-1 pool while h1
	// is still held; the close must be deferred until Release.
	h2, err := p.Borrow(context.Background(), path2, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer h2.Release()

	if _, err := h1.DB.Exec("SELECT 1"); err != nil {
		t.Fatalf("expected borrowed handle to remain usable during deferred eviction: %v", err)
	}
	h1.Release()
}

func TestCloseAll(t *testing.T) {
	dir := t.TempDir()
	p, err := New(4)
	if err != nil {
		t.Fatal(err)
	}

	h, err := p.Borrow(context.Background(), filepath.Join(dir, "t.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	h.Release()

	p.CloseAll()
	if p.Len() != 0 {
		t.Fatalf("expected empty pool after CloseAll, got %d", p.Len())
	}
}
