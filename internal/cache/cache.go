// Package cache is the content-addressed translation cache. Entries expire
// after a TTL, the oldest are evicted at capacity, and every write is
// persisted asynchronously to an optional Persister.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"

	"github.com/valpere/tlumach/internal/metrics"
)

const (
	DefaultTTL        = 7 * 24 * time.Hour
	DefaultMaxEntries = 5000

	persistTimeout = 30 * time.Second
)

// Entry is one cached translation together with what produced it.
type Entry struct {
	Text        string    `json:"text"`
	SourceLang  string    `json:"source_lang"`
	TargetLang  string    `json:"target_lang"`
	Provider    string    `json:"provider"`
	Translation string    `json:"translation"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record is a persisted (key, entry) pair.
type Record struct {
	Key   string
	Entry Entry
}

// Persister is the durable copy of the cache. Save receives the complete
// current contents.
type Persister interface {
	Load(ctx context.Context) ([]Record, error)
	Save(ctx context.Context, records []Record) error
	Clear(ctx context.Context) error
}

type Options struct {
	TTL        time.Duration
	MaxEntries int
	Persister  Persister
	Logger     log.FieldLogger
	Metrics    *metrics.Metrics
	// Now replaces time.Now in tests.
	Now func() time.Time
}

// Stats is a point-in-time view of the cache counters.
type Stats struct {
	Entries    int           `json:"entries"`
	MaxEntries int           `json:"max_entries"`
	TTL        time.Duration `json:"ttl"`
	Hits       uint64        `json:"hits"`
	Misses     uint64        `json:"misses"`
	Evictions  uint64        `json:"evictions"`
}

type Cache struct {
	mu      sync.Mutex
	entries map[string]*Entry

	ttl        time.Duration
	maxEntries int
	persister  Persister
	log        log.FieldLogger
	metrics    *metrics.Metrics
	now        func() time.Time

	hits, misses, evictions atomic.Uint64

	gen     atomic.Uint64
	saveMu  sync.Mutex
	pending sync.WaitGroup
}

func New(opts Options) *Cache {
	c := &Cache{
		entries:    make(map[string]*Entry),
		ttl:        opts.TTL,
		maxEntries: opts.MaxEntries,
		persister:  opts.Persister,
		log:        opts.Logger,
		metrics:    opts.Metrics,
		now:        opts.Now,
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.maxEntries <= 0 {
		c.maxEntries = DefaultMaxEntries
	}
	if c.log == nil {
		c.log = log.StandardLogger()
	}
	c.log = c.log.WithField("component", "cache")
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Key derives the entry key from the NFC-normalized, trimmed text, the
// language pair and the provider name.
func Key(text, sourceLang, targetLang, provider string) string {
	h := sha256.New()
	for _, part := range []string{normalizeText(text), sourceLang, targetLang, provider} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}

func (c *Cache) expired(e *Entry, now time.Time) bool {
	return now.Sub(e.CreatedAt) >= c.ttl
}

// Get returns the cached translation if present and fresh. A stale entry is
// removed on the way.
func (c *Cache) Get(text, sourceLang, targetLang, provider string) (string, bool) {
	key := Key(text, sourceLang, targetLang, provider)

	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && c.expired(e, c.now()) {
		delete(c.entries, key)
		c.evicted(1)
		ok = false
	}
	c.mu.Unlock()

	c.metrics.CacheLookup(ok)
	if !ok {
		c.misses.Add(1)
		return "", false
	}
	c.hits.Add(1)
	return e.Translation, true
}

// Set stores a translation and schedules persistence. At capacity, expired
// entries go first, then the oldest until one slot is free.
func (c *Cache) Set(text, sourceLang, targetLang, provider, translation string) {
	key := Key(text, sourceLang, targetLang, provider)
	now := c.now()

	c.mu.Lock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.purgeExpiredLocked(now)
		if len(c.entries) >= c.maxEntries {
			c.evictOldestLocked(len(c.entries) - c.maxEntries + 1)
		}
	}
	c.entries[key] = &Entry{
		Text:        normalizeText(text),
		SourceLang:  sourceLang,
		TargetLang:  targetLang,
		Provider:    provider,
		Translation: translation,
		CreatedAt:   now,
	}
	c.mu.Unlock()

	c.persistAsync()
}

func (c *Cache) purgeExpiredLocked(now time.Time) {
	n := 0
	for key, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, key)
			n++
		}
	}
	c.evicted(n)
}

func (c *Cache) evictOldestLocked(n int) {
	if n <= 0 {
		return
	}
	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.entries[keys[i]].CreatedAt.Before(c.entries[keys[j]].CreatedAt)
	})
	if n > len(keys) {
		n = len(keys)
	}
	for _, key := range keys[:n] {
		delete(c.entries, key)
	}
	c.evicted(n)
}

func (c *Cache) evicted(n int) {
	if n == 0 {
		return
	}
	c.evictions.Add(uint64(n))
	c.metrics.CacheEvicted(n)
}

// persistAsync saves a snapshot in the background. Writes that pile up
// behind a running save collapse into the newest one.
func (c *Cache) persistAsync() {
	if c.persister == nil {
		return
	}
	gen := c.gen.Add(1)
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		c.saveMu.Lock()
		defer c.saveMu.Unlock()
		if gen != c.gen.Load() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := c.persister.Save(ctx, c.Records()); err != nil {
			c.log.WithError(err).Warn("failed to persist translation cache")
		}
	}()
}

// Records returns the current entries ordered from oldest to newest.
func (c *Cache) Records() []Record {
	c.mu.Lock()
	records := make([]Record, 0, len(c.entries))
	for key, e := range c.entries {
		records = append(records, Record{Key: key, Entry: *e})
	}
	c.mu.Unlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].Entry.CreatedAt.Before(records[j].Entry.CreatedAt)
	})
	return records
}

// Load restores fresh entries from the persister. Unreadable storage is
// logged and treated as empty. It returns the number of entries restored.
func (c *Cache) Load(ctx context.Context) int {
	if c.persister == nil {
		return 0
	}
	records, err := c.persister.Load(ctx)
	if err != nil {
		c.log.WithError(err).Warn("ignoring unreadable translation cache")
		return 0
	}

	// Newest first so that capacity keeps the most recent entries.
	sort.Slice(records, func(i, j int) bool {
		return records[i].Entry.CreatedAt.After(records[j].Entry.CreatedAt)
	})

	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, r := range records {
		if len(c.entries) >= c.maxEntries {
			break
		}
		e := r.Entry
		if r.Key == "" || c.expired(&e, now) {
			continue
		}
		if _, exists := c.entries[r.Key]; exists {
			continue
		}
		c.entries[r.Key] = &e
		n++
	}
	return n
}

// Clear drops every entry and the durable copy.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]*Entry)
	c.mu.Unlock()
	if c.persister == nil {
		return nil
	}

	// Invalidate saves queued before the clear.
	c.gen.Add(1)
	c.saveMu.Lock()
	defer c.saveMu.Unlock()
	return c.persister.Clear(ctx)
}

// Flush waits for pending persistence or for ctx to end.
func (c *Cache) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes pending writes.
func (c *Cache) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	return c.Flush(ctx)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) Stats() Stats {
	return Stats{
		Entries:    c.Len(),
		MaxEntries: c.maxEntries,
		TTL:        c.ttl,
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Evictions:  c.evictions.Load(),
	}
}
