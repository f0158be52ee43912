package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestCache_SetGet(t *testing.T) {
	c := New(Options{})

	_, ok := c.Get("Hello", "en", "uk", "google")
	assert.False(t, ok)

	c.Set("Hello", "en", "uk", "google", "Привіт")
	got, ok := c.Get("Hello", "en", "uk", "google")
	require.True(t, ok)
	assert.Equal(t, "Привіт", got)

	// Second lookup returns the same value.
	got, ok = c.Get("Hello", "en", "uk", "google")
	require.True(t, ok)
	assert.Equal(t, "Привіт", got)

	_, ok = c.Get("Hello", "en", "uk", "deepl")
	assert.False(t, ok, "provider is part of the key")
	_, ok = c.Get("Hello", "en", "de", "google")
	assert.False(t, ok, "target language is part of the key")

	s := c.Stats()
	assert.Equal(t, 1, s.Entries)
	assert.Equal(t, uint64(2), s.Hits)
	assert.Equal(t, uint64(3), s.Misses)
}

func TestKey_Normalization(t *testing.T) {
	composed := "café"
	decomposed := "café"
	assert.Equal(t, Key(composed, "fr", "en", "google"), Key("  "+decomposed+"\n", "fr", "en", "google"))
	assert.NotEqual(t, Key("a", "b", "c", "d"), Key("a", "bc", "", "d"))
	assert.Len(t, Key("x", "", "", ""), 64)
}

func TestCache_TTLExpiry(t *testing.T) {
	clk := newClock()
	c := New(Options{TTL: time.Hour, Now: clk.Now})

	c.Set("Hello", "en", "fr", "google", "Bonjour")
	clk.Advance(59 * time.Minute)
	_, ok := c.Get("Hello", "en", "fr", "google")
	assert.True(t, ok)

	clk.Advance(time.Minute)
	_, ok = c.Get("Hello", "en", "fr", "google")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "stale entry is removed on read")
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestCache_EvictsOldestAtCapacity(t *testing.T) {
	clk := newClock()
	c := New(Options{MaxEntries: 3, Now: clk.Now})

	for _, word := range []string{"one", "two", "three"} {
		c.Set(word, "en", "de", "google", word+"-de")
		clk.Advance(time.Second)
	}
	c.Set("four", "en", "de", "google", "vier")

	assert.Equal(t, 3, c.Len())
	_, ok := c.Get("one", "en", "de", "google")
	assert.False(t, ok, "oldest entry should be evicted")
	for _, word := range []string{"two", "three", "four"} {
		_, ok := c.Get(word, "en", "de", "google")
		assert.True(t, ok, word)
	}
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestCache_PurgesExpiredBeforeEvicting(t *testing.T) {
	clk := newClock()
	c := New(Options{MaxEntries: 2, TTL: time.Hour, Now: clk.Now})

	c.Set("a", "en", "de", "google", "A")
	clk.Advance(30 * time.Minute)
	c.Set("b", "en", "de", "google", "B")
	clk.Advance(45 * time.Minute)
	c.Set("c", "en", "de", "google", "C")

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("c", "en", "de", "google")
	assert.True(t, ok)
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestCache_OverwriteDoesNotEvict(t *testing.T) {
	c := New(Options{MaxEntries: 2})
	c.Set("a", "en", "de", "google", "A")
	c.Set("b", "en", "de", "google", "B")
	c.Set("a", "en", "de", "google", "A2")

	assert.Equal(t, 2, c.Len())
	got, _ := c.Get("a", "en", "de", "google")
	assert.Equal(t, "A2", got)
	assert.Equal(t, uint64(0), c.Stats().Evictions)
}

func TestCache_ConcurrentSet(t *testing.T) {
	c := New(Options{MaxEntries: 100, Persister: NewFilePersister(filepath.Join(t.TempDir(), "cache.json"))})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				c.Set(fmt.Sprintf("text-%d-%d", w, i), "en", "fr", "google", "x")
				c.Get(fmt.Sprintf("text-%d-%d", w, i), "en", "fr", "google")
			}
		}(w)
	}
	wg.Wait()
	require.NoError(t, c.Flush(context.Background()))
	assert.Equal(t, 100, c.Len())
}

func TestCache_PersistAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "cache.json")
	clk := newClock()

	c := New(Options{Persister: NewFilePersister(path), Now: clk.Now})
	c.Set("Hello", "en", "uk", "google", "Привіт")
	c.Set("World", "en", "uk", "google", "Світ")
	require.NoError(t, c.Close())

	restored := New(Options{Persister: NewFilePersister(path), Now: clk.Now})
	assert.Equal(t, 2, restored.Load(context.Background()))
	got, ok := restored.Get("World", "en", "uk", "google")
	require.True(t, ok)
	assert.Equal(t, "Світ", got)
}

func TestCache_LoadSkipsExpired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	clk := newClock()

	c := New(Options{TTL: time.Hour, Persister: NewFilePersister(path), Now: clk.Now})
	c.Set("old", "en", "uk", "google", "старий")
	clk.Advance(2 * time.Hour)
	c.Set("new", "en", "uk", "google", "новий")
	require.NoError(t, c.Close())

	restored := New(Options{TTL: time.Hour, Persister: NewFilePersister(path), Now: clk.Now})
	assert.Equal(t, 1, restored.Load(context.Background()))
	_, ok := restored.Get("old", "en", "uk", "google")
	assert.False(t, ok)
}

func TestCache_LoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	c := New(Options{Persister: NewFilePersister(path)})
	assert.Equal(t, 0, c.Load(context.Background()))
	assert.Equal(t, 0, c.Len())

	c.Set("Hello", "en", "fr", "google", "Bonjour")
	require.NoError(t, c.Close())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(data), "next write replaces the corrupt file")
}

func TestCache_LoadMissingFile(t *testing.T) {
	c := New(Options{Persister: NewFilePersister(filepath.Join(t.TempDir(), "absent.json"))})
	assert.Equal(t, 0, c.Load(context.Background()))
}

func TestCache_Clear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	c := New(Options{Persister: NewFilePersister(path)})
	c.Set("Hello", "en", "fr", "google", "Bonjour")
	require.NoError(t, c.Flush(context.Background()))
	require.FileExists(t, path)

	require.NoError(t, c.Clear(context.Background()))
	require.NoError(t, c.Flush(context.Background()))
	assert.Equal(t, 0, c.Len())
	assert.NoFileExists(t, path)
}

func TestRecord_JSONPair(t *testing.T) {
	r := Record{Key: "k1", Entry: Entry{Text: "Hi", Translation: "Salut", Provider: "deepl"}}
	data, err := json.Marshal(r)
	require.NoError(t, err)

	var raw []json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw, 2)
	assert.JSONEq(t, `"k1"`, string(raw[0]))

	var back Record
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, r.Key, back.Key)
	assert.Equal(t, r.Entry.Translation, back.Entry.Translation)

	assert.Error(t, json.Unmarshal([]byte(`["only-key"]`), &back))
}

type failingPersister struct {
	saves atomic.Int32
}

func (p *failingPersister) Load(context.Context) ([]Record, error) {
	return nil, errors.New("disk on fire")
}

func (p *failingPersister) Save(context.Context, []Record) error {
	p.saves.Add(1)
	return errors.New("disk on fire")
}

func (p *failingPersister) Clear(context.Context) error { return nil }

func TestCache_PersistenceErrorsAreSwallowed(t *testing.T) {
	p := &failingPersister{}
	c := New(Options{Persister: p})

	assert.Equal(t, 0, c.Load(context.Background()))
	c.Set("Hello", "en", "fr", "google", "Bonjour")
	require.NoError(t, c.Flush(context.Background()))

	got, ok := c.Get("Hello", "en", "fr", "google")
	assert.True(t, ok)
	assert.Equal(t, "Bonjour", got)
	assert.GreaterOrEqual(t, p.saves.Load(), int32(1))
}
