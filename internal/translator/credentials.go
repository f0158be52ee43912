package translator

import (
	"strings"
	"sync"
)

// Credentials is an ordered list of candidate keys with a "known bad" set.
// At most one key is current. All methods are safe for concurrent use.
type Credentials struct {
	mu      sync.Mutex
	current string
	pending []string
	bad     map[string]bool
}

// NewCredentials takes the first non-empty key as current and keeps the rest
// as candidates in order. Duplicates are dropped.
func NewCredentials(keys []string) *Credentials {
	c := &Credentials{bad: make(map[string]bool)}
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		if c.current == "" {
			c.current = k
			continue
		}
		c.pending = append(c.pending, k)
	}
	return c
}

// Current returns the active credential.
func (c *Credentials) Current() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, c.current != ""
}

// Swap retires failed and promotes the next candidate that is not known bad.
// If a concurrent call already replaced failed, Swap leaves the newer key in
// place. It reports whether a usable credential is current afterwards.
func (c *Credentials) Swap(failed string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if failed != "" && !c.bad[failed] {
		c.bad[failed] = true
	}
	if c.current != failed {
		return c.current != ""
	}

	c.current = ""
	for len(c.pending) > 0 {
		next := c.pending[0]
		c.pending = c.pending[1:]
		if !c.bad[next] {
			c.current = next
			return true
		}
	}
	return false
}

// IsBad reports whether key has been rejected in this process lifetime.
func (c *Credentials) IsBad(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bad[key]
}

// Remaining returns the number of untried candidates behind the current one.
func (c *Credentials) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
