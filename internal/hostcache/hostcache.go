// Package hostcache remembers which name each resolved IPv4 address came
// from, so a later connection to the address can be redirected by name.
//
// Entries expire after a fixed TTL; lookups do not consume them. The cache
// is safe for concurrent use.
package hostcache

import (
	"net/netip"
	"time"

	"github.com/patrickmn/go-cache"
)

// DefaultTTL is used when New is given a zero TTL.
const DefaultTTL = 10 * time.Minute

type Cache struct {
	c   *cache.Cache
	ttl time.Duration
}

// New returns a cache whose entries live for ttl. A negative ttl keeps
// entries until they are overwritten or forgotten.
func New(ttl time.Duration) *Cache {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	if ttl < 0 {
		return &Cache{c: cache.New(cache.NoExpiration, 0), ttl: cache.NoExpiration}
	}
	return &Cache{c: cache.New(ttl, 2*ttl), ttl: ttl}
}

// Record maps each address to name, replacing earlier names.
func (c *Cache) Record(name string, addrs ...netip.Addr) {
	for _, a := range addrs {
		c.c.Set(key(a), name, c.ttl)
	}
}

// Name returns the name recorded for addr, if it has not expired.
func (c *Cache) Name(addr netip.Addr) (string, bool) {
	v, ok := c.c.Get(key(addr))
	if !ok {
		return "", false
	}
	name, ok := v.(string)
	return name, ok
}

func key(a netip.Addr) string {
	return a.Unmap().String()
}
