// Package dnscache keeps recently resolved domain addresses for a fixed time.
//
// Expired entries are evicted lazily, when a query hits them. There is no
// background sweep and no capacity limit.
package dnscache

import (
	"net/netip"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Snawoot/tjproxy/logging"
)

const (
	DefaultTTL = 300 * time.Second
)

// Entry is a cached answer for a domain.
type Entry struct {
	Address   netip.Addr
	ExpiresAt time.Time
}

// Cache maps domain names to their resolved address. Keys are taken as is:
// no case folding and no trailing dot normalization. It is safe for
// concurrent use.
type Cache struct {
	mux     sync.Mutex
	entries map[string]Entry
	ttl     time.Duration
	clock   clockwork.Clock
}

// New creates Cache which uses real clock. Time readings of the real clock
// carry monotonic component, so wall clock adjustments do not affect expiry.
func New(ttl time.Duration) *Cache {
	return NewWithClock(ttl, clockwork.NewRealClock())
}

func NewWithClock(ttl time.Duration, clock clockwork.Clock) *Cache {
	return &Cache{
		entries: make(map[string]Entry),
		ttl:     ttl,
		clock:   clock,
	}
}

// Query returns cached address of domain. Expired entry is removed and
// reported as missing.
func (c *Cache) Query(domain string) (netip.Addr, bool) {
	c.mux.Lock()
	defer c.mux.Unlock()

	entry, ok := c.entries[domain]
	if !ok {
		return netip.Addr{}, false
	}

	logging.Debugf("found %s = %s in dns cache", domain, entry.Address)
	if c.clock.Now().Before(entry.ExpiresAt) {
		return entry.Address, true
	}

	logging.Infof("domain %s expired, remove from cache", domain)
	delete(c.entries, domain)
	return netip.Addr{}, false
}

// Update stores address for domain, replacing any previous entry.
func (c *Cache) Update(domain string, addr netip.Addr) {
	logging.Tracef("update dns cache, %s = %s", domain, addr)

	c.mux.Lock()
	defer c.mux.Unlock()

	c.entries[domain] = Entry{
		Address:   addr,
		ExpiresAt: c.clock.Now().Add(c.ttl),
	}
}

// Len returns number of entries, including expired ones not evicted yet.
func (c *Cache) Len() int {
	c.mux.Lock()
	defer c.mux.Unlock()
	return len(c.entries)
}

func (c *Cache) TTL() time.Duration {
	return c.ttl
}
