package focus

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

// DefaultTTL keeps a focus for a week.
const DefaultTTL = 7 * 24 * time.Hour

// Cache maps hypothesis keys to focus values. Implementations are pure memoization:
// losing entries only costs another extraction.
type Cache interface {
	Get(key string) (Focus, bool)
	Put(key string, f Focus)
}

type memoryEntry struct {
	focus    Focus
	storedAt time.Time
}

// MemoryCache is a TTL cache, optionally writing through to a persistent cache.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	next    Cache
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates a cache whose entries expire after ttl. next may be nil.
func NewMemoryCache(ttl time.Duration, next Cache) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{ttl: ttl, next: next, entries: make(map[string]memoryEntry), now: time.Now}
}

// Get returns an unexpired entry, consulting the next cache on a miss.
func (c *MemoryCache) Get(key string) (Focus, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && c.now().Sub(e.storedAt) > c.ttl {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()
	if ok {
		return e.focus, true
	}

	if c.next == nil {
		return Focus{}, false
	}
	f, ok := c.next.Get(key)
	if ok {
		c.mu.Lock()
		c.entries[key] = memoryEntry{focus: f, storedAt: c.now()}
		c.mu.Unlock()
	}
	return f, ok
}

// Put stores f in memory and in the next cache.
func (c *MemoryCache) Put(key string, f Focus) {
	c.mu.Lock()
	c.entries[key] = memoryEntry{focus: f, storedAt: c.now()}
	c.mu.Unlock()
	if c.next != nil {
		c.next.Put(key, f)
	}
}

// Prune drops expired entries and returns how many were removed.
func (c *MemoryCache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if c.now().Sub(e.storedAt) > c.ttl {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

var bucketFocus = []byte("focus")

type boltRecord struct {
	Focus    Focus     `json:"focus"`
	StoredAt time.Time `json:"stored_at"`
}

// BoltCache persists focus values in a bbolt file so they survive restarts.
type BoltCache struct {
	db  *bbolt.DB
	ttl time.Duration
	now func() time.Time
}

// OpenBoltCache opens or creates the cache file at path.
func OpenBoltCache(path string, ttl time.Duration) (*BoltCache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening focus cache: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketFocus)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltCache{db: db, ttl: ttl, now: time.Now}, nil
}

// Get returns an unexpired entry.
func (c *BoltCache) Get(key string) (Focus, bool) {
	var rec boltRecord
	found := false
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketFocus).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		log.Printf("Focus cache read failed: %v", err)
		return Focus{}, false
	}
	if !found || c.now().Sub(rec.StoredAt) > c.ttl {
		return Focus{}, false
	}
	return rec.Focus, true
}

// Put stores f. Write failures are logged.
func (c *BoltCache) Put(key string, f Focus) {
	err := c.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(boltRecord{Focus: f, StoredAt: c.now().UTC()})
		if err != nil {
			return err
		}
		return tx.Bucket(bucketFocus).Put([]byte(key), data)
	})
	if err != nil {
		log.Printf("Focus cache write failed: %v", err)
	}
}

// Prune deletes expired entries and returns how many were removed.
func (c *BoltCache) Prune() (int, error) {
	n := 0
	err := c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketFocus)
		var expired [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var rec boltRecord
			if err := json.Unmarshal(v, &rec); err != nil || c.now().Sub(rec.StoredAt) > c.ttl {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		n = len(expired)
		return nil
	})
	return n, err
}

// Len returns the number of stored entries, expired or not.
func (c *BoltCache) Len() int {
	n := 0
	c.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketFocus).Stats().KeyN
		return nil
	})
	return n
}

// Close closes the cache file.
func (c *BoltCache) Close() error {
	return c.db.Close()
}
