// Package pool implements the bounded, per-file SQLite connection
// cache (spec.md 4.C). It is the only component permitted to open
// tenant database files directly; the pragma DSN string and
// sql.Open/Ping sequence are ported from
// hazyhaar-GoClode/internal/core/db.go's Engine constructor, widened
// from "one process-global handle" into "one handle per cache key".
// Cold opens for the same key are coalesced with a
// golang.org/x/sync/singleflight.Group, the idiom
// other_examples/cac5ad2f_AdeptTravel-adept-framework__internal-tenant-cache.go.go
// uses to collapse concurrent loads of the same tenant.
package pool

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
	_ "modernc.org/sqlite"

	"github.com/cinchdb/cinchdb/internal/cincherr"
)

const pragmaDSN = "%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"

// DefaultCapacity is the default pool size, per spec.md 4.C.
const DefaultCapacity = 50

// entry is one cached connection plus its borrow refcount.
type entry struct {
	key      string
	db       *sql.DB
	mu       sync.Mutex
	borrowed int
	evictNow bool // set when eviction was requested while borrowed
}

// Pool is a bounded keyed cache of *sql.DB handles.
type Pool struct {
	mu       sync.Mutex
	cache    *lru.Cache[string, *entry]
	sfg      singleflight.Group
	capacity int
}

// New creates a Pool with the given capacity (DefaultCapacity if <= 0).
func New(capacity int) (*Pool, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	p := &Pool{capacity: capacity}

	cache, err := lru.NewWithEvict(capacity, func(key string, e *entry) {
		p.evict(e)
	})
	if err != nil {
		return nil, cincherr.Wrap("pool.New", err)
	}
	p.cache = cache
	return p, nil
}

// Key builds the cache key for a tenant file path and an optional
// encryption key fingerprint.
func Key(path string, encryptionKey []byte) string {
	if len(encryptionKey) == 0 {
		return path
	}
	sum := sha256.Sum256(encryptionKey)
	return path + "#" + hex.EncodeToString(sum[:8])
}

// Handle is a borrowed connection. Callers must call Release when done.
type Handle struct {
	DB   *sql.DB
	pool *Pool
	e    *entry
}

// Release returns the handle to the pool, allowing a deferred eviction
// to proceed if one was requested while it was borrowed.
func (h *Handle) Release() {
	h.pool.release(h.e)
}

// Borrow returns a live connection for path, opening and priming it
// (pragmas + optional key) on a cache miss. Concurrent cold borrows of
// the same key open exactly one connection.
func (p *Pool) Borrow(ctx context.Context, path string, encryptionKey []byte) (*Handle, error) {
	key := Key(path, encryptionKey)

	p.mu.Lock()
	if e, ok := p.cache.Get(key); ok {
		e.mu.Lock()
		e.borrowed++
		e.mu.Unlock()
		p.mu.Unlock()
		return &Handle{DB: e.db, pool: p, e: e}, nil
	}
	p.mu.Unlock()

	v, err, _ := p.sfg.Do(key, func() (any, error) {
		p.mu.Lock()
		if e, ok := p.cache.Get(key); ok {
			p.mu.Unlock()
			return e, nil
		}
		p.mu.Unlock()

		db, err := open(path, encryptionKey)
		if err != nil {
			return nil, err
		}
		e := &entry{key: key, db: db}
		p.mu.Lock()
		p.cache.Add(key, e)
		p.mu.Unlock()
		return e, nil
	})
	if err != nil {
		return nil, err
	}

	e := v.(*entry)
	e.mu.Lock()
	e.borrowed++
	e.mu.Unlock()
	return &Handle{DB: e.db, pool: p, e: e}, nil
}

func open(path string, encryptionKey []byte) (*sql.DB, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(pragmaDSN, path))
	if err != nil {
		return nil, cincherr.Wrap("pool.open", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, cincherr.Wrap("pool.open", err)
	}
	if len(encryptionKey) > 0 {
		if _, err := db.Exec("PRAGMA key = ?", string(encryptionKey)); err != nil {
			db.Close()
			return nil, cincherr.Wrap("pool.open", err)
		}
	}
	return db, nil
}

func (p *Pool) release(e *entry) {
	e.mu.Lock()
	e.borrowed--
	shouldEvict := e.evictNow && e.borrowed == 0
	e.mu.Unlock()

	if shouldEvict {
		e.db.Close()
	}
}

// evict is the LRU eviction callback. If the entry is currently
// borrowed, the close is deferred until release (spec.md 4.C).
func (p *Pool) evict(e *entry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.borrowed > 0 {
		e.evictNow = true
		return
	}
	e.db.Close()
}

// IsBorrowed reports whether path is currently held by any borrower,
// used by branch deletion's "no tenant connection open" refusal
// (spec.md 4.H property 3).
func (p *Pool) IsBorrowed(path string) bool {
	key := Key(path, nil)
	p.mu.Lock()
	e, ok := p.cache.Peek(key)
	p.mu.Unlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.borrowed > 0
}

// Len returns the number of live cache entries (for the pool-bound
// property test, spec.md §8 property 5).
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cache.Len()
}

// CloseAll closes every cached connection and empties the pool. It is
// the test-teardown/shutdown hook spec.md 4.C and §9 require.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	keys := p.cache.Keys()
	p.mu.Unlock()

	for _, k := range keys {
		p.mu.Lock()
		e, ok := p.cache.Peek(k)
		p.mu.Unlock()
		if !ok {
			continue
		}
		e.db.Close()
	}

	p.mu.Lock()
	p.cache.Purge()
	p.mu.Unlock()
}
