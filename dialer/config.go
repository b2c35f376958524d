package dialer

import (
	"context"
	"net/netip"
	"time"
)

const (
	DefaultDialTimeout = 10 * time.Second
)

// DomainResolver turns domain name into an address, usually through the DNS
// cache.
type DomainResolver interface {
	Resolve(ctx context.Context, domain string) (netip.Addr, error)
}

type Config struct {
	// Backend is the address DialBackend connects to.
	Backend netip.AddrPort

	// LocalAddr is bound for outbound connections of the same address
	// family. Usually it's the session placeholder address.
	LocalAddr netip.AddrPort

	// Marker is set as SO_MARK of outbound sockets. Zero disables marking.
	Marker uint8

	DialTimeout time.Duration
	Resolver    DomainResolver
}

func (cfg *Config) populateDefaults() {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
}
