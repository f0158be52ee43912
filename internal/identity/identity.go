// Package identity rotates synthetic client fingerprints (user agent and
// accepted locales) across outbound translation-provider requests.
//
// Only provider traffic goes through a Rotator. Anything else should use
// Fixed so that rotation never leaks into unrelated requests.
package identity

import (
	"fmt"
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"
)

// DefaultPoolSize is the number of identities generated by New when size <= 0.
const DefaultPoolSize = 180

// Identity is a synthetic client signature handed to an outgoing request.
type Identity struct {
	UserAgent      string
	AcceptLanguage string
}

// Apply sets the identity headers plus generic no-cache headers on h.
func (id Identity) Apply(h http.Header) {
	h.Set("User-Agent", id.UserAgent)
	h.Set("Accept-Language", id.AcceptLanguage)
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", "no-cache")
}

// Fixed returns the non-rotated identity used for traffic that is not a
// translation-provider call.
func Fixed() Identity {
	return Identity{
		UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		AcceptLanguage: "en-US,en;q=0.9",
	}
}

// Rotator hands out identities from a shuffled pool in round-robin order.
// Next is safe for concurrent use and never blocks.
type Rotator struct {
	pool   []Identity
	cursor atomic.Uint64
}

// New generates a pool of size identities (DefaultPoolSize when size <= 0)
// shuffled with seed. A zero seed uses the current time.
func New(size int, seed int64) *Rotator {
	if size <= 0 {
		size = DefaultPoolSize
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	pool := generate()
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if size < len(pool) {
		pool = pool[:size]
	}
	return &Rotator{pool: pool}
}

// NewWithPool builds a Rotator over an explicit pool, kept in the given order.
func NewWithPool(pool []Identity) (*Rotator, error) {
	if len(pool) == 0 {
		return nil, fmt.Errorf("identity pool is empty")
	}
	cp := make([]Identity, len(pool))
	copy(cp, pool)
	return &Rotator{pool: cp}, nil
}

// Len returns the pool size.
func (r *Rotator) Len() int {
	return len(r.pool)
}

// Next returns the identity at the cursor and advances it by one, wrapping
// around the pool.
func (r *Rotator) Next() Identity {
	n := r.cursor.Add(1) - 1
	return r.pool[n%uint64(len(r.pool))]
}

// NextHeaders returns a header set for the next identity.
func (r *Rotator) NextHeaders() http.Header {
	h := make(http.Header, 4)
	r.Next().Apply(h)
	return h
}

var (
	chromeVersions  = []int{120, 121, 122, 123, 124, 125, 126, 127, 128, 129, 130, 131}
	firefoxVersions = []int{121, 122, 123, 124, 125, 126, 127, 128, 129, 130, 131, 132, 133}
	safariVersions  = []string{"16.6", "17.0", "17.1", "17.2", "17.3", "17.4", "17.5", "17.6", "18.0", "18.1"}

	platforms = []string{
		"Windows NT 10.0; Win64; x64",
		"Macintosh; Intel Mac OS X 10_15_7",
		"X11; Linux x86_64",
	}

	locales = []string{
		"en-US,en;q=0.9",
		"en-GB,en;q=0.9",
		"en-US,en;q=0.8,de;q=0.6",
		"en-US,en;q=0.9,fr;q=0.7",
		"en-CA,en;q=0.9,fr-CA;q=0.8",
		"en-AU,en;q=0.9",
		"en-US,en;q=0.9,es;q=0.8",
		"en,en-US;q=0.9,zh-CN;q=0.6",
	}
)

// generate builds every distinct (user agent, locale) combination.
func generate() []Identity {
	var agents []string
	for _, p := range platforms {
		for _, v := range chromeVersions {
			agents = append(agents, fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.0.0 Safari/537.36", p, v))
		}
		for _, v := range firefoxVersions {
			agents = append(agents, fmt.Sprintf("Mozilla/5.0 (%s; rv:%d.0) Gecko/20100101 Firefox/%d.0", p, v, v))
		}
	}
	for _, v := range chromeVersions {
		agents = append(agents, fmt.Sprintf("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.0.0 Safari/537.36 Edg/%d.0.0.0", v, v))
	}
	for _, v := range safariVersions {
		agents = append(agents, fmt.Sprintf("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/%s Safari/605.1.15", v))
	}

	pool := make([]Identity, 0, len(agents)*len(locales))
	for _, ua := range agents {
		for _, loc := range locales {
			pool = append(pool, Identity{UserAgent: ua, AcceptLanguage: loc})
		}
	}
	return pool
}
