package dnscache

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/AdguardTeam/golibs/errors"

	"github.com/Snawoot/tjproxy/resolver"
)

const ErrNoAddress errors.Error = "no address found"

// Resolver answers domain lookups from the Cache and falls back to the
// Lookuper on miss, storing the fresh answer.
type Resolver struct {
	cache  *Cache
	lookup resolver.Lookuper
}

func NewResolver(cache *Cache, lookup resolver.Lookuper) *Resolver {
	return &Resolver{
		cache:  cache,
		lookup: lookup,
	}
}

func (r *Resolver) Resolve(ctx context.Context, domain string) (netip.Addr, error) {
	if addr, ok := r.cache.Query(domain); ok {
		return addr, nil
	}

	addrs, err := r.lookup.LookupAddrs(ctx, domain)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("resolve %s: %w", domain, err)
	}

	addr, ok := resolver.Select(addrs)
	if !ok {
		return netip.Addr{}, fmt.Errorf("resolve %s: %w", domain, ErrNoAddress)
	}

	r.cache.Update(domain, addr)
	return addr, nil
}

func (r *Resolver) Cache() *Cache {
	return r.cache
}
