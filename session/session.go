// Package session assembles the runtime state shared by all relayed
// connections: backend endpoint, credentials and DNS cache.
package session

import (
	"context"
	"fmt"
	"io"
	"net/netip"
	"time"

	"github.com/AdguardTeam/golibs/errors"

	"github.com/Snawoot/tjproxy/backend"
	"github.com/Snawoot/tjproxy/digest"
	"github.com/Snawoot/tjproxy/dnscache"
	"github.com/Snawoot/tjproxy/logging"
	"github.com/Snawoot/tjproxy/resolver"
)

const (
	ErrNoPasswords     errors.Error = "at least one password is required"
	ErrBadLocalAddress errors.Error = "bad local address"
)

// Session is built once by Setup and then shared between connections. All
// fields are read-only after Setup; DNSCache is the only mutable part and
// synchronizes itself.
type Session struct {
	Mode      backend.Mode
	LocalAddr netip.AddrPort

	// Backend is where relayed traffic goes: plaintext service in server
	// mode, trojan server in proxy mode.
	Backend netip.AddrPort

	// Placeholder is the unspecified address of the Backend family, used
	// to bind outbound sockets.
	Placeholder netip.AddrPort

	IdleTimeout time.Duration
	DNSCacheTTL time.Duration
	Marker      uint8

	CertPath string
	KeyPath  string

	Credentials *digest.Store
	DNSCache    *dnscache.Cache
	Resolver    *dnscache.Resolver

	closer io.Closer
}

// type check
var _ io.Closer = (*Session)(nil)

// Setup validates opts, resolves backend endpoint and builds credentials and
// DNS cache. Nil lookup makes Setup create resolver according to
// opts.DNSUpstream. Errors returned are fatal: the proxy must not serve.
func Setup(ctx context.Context, opts *Options, lookup resolver.Lookuper) (*Session, error) {
	opts.populateDefaults()

	mode, err := backend.ParseMode(opts.Mode)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	if len(opts.Passwords) == 0 {
		return nil, fmt.Errorf("session: %w", ErrNoPasswords)
	}

	localAddr, err := netip.ParseAddrPort(opts.LocalAddr)
	if err != nil {
		return nil, fmt.Errorf("session: %w %q: %w", ErrBadLocalAddress, opts.LocalAddr, err)
	}

	backendCfg := &backend.Config{
		Mode:       mode,
		CertPath:   opts.CertPath,
		KeyPath:    opts.KeyPath,
		RemoteAddr: opts.RemoteAddr,
		Hostname:   opts.Hostname,
		Timeout:    opts.ResolveTimeout,
	}
	if err := backendCfg.Validate(); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	var ownResolver *resolver.Resolver
	if lookup == nil {
		ownResolver, err = resolver.New(opts.DNSUpstream, opts.ResolveTimeout)
		if err != nil {
			return nil, fmt.Errorf("session: can't create resolver: %w", err)
		}
		lookup = ownResolver
	}
	backendCfg.Lookuper = lookup

	ep, err := backend.Resolve(ctx, backendCfg)
	if err != nil {
		if ownResolver != nil {
			ownResolver.Close()
		}
		return nil, fmt.Errorf("session: %w", err)
	}

	s := &Session{
		Mode:        mode,
		LocalAddr:   localAddr,
		Backend:     ep.Addr,
		Placeholder: ep.Placeholder,
		IdleTimeout: time.Duration(opts.IdleTimeout) * time.Second,
		DNSCacheTTL: time.Duration(opts.DNSCacheTime) * time.Second,
		Marker:      opts.Marker,
		CertPath:    opts.CertPath,
		KeyPath:     opts.KeyPath,
		Credentials: digest.NewStore(opts.Passwords),
	}
	if ownResolver != nil {
		s.closer = ownResolver
	}
	s.DNSCache = dnscache.New(s.DNSCacheTTL)
	s.Resolver = dnscache.NewResolver(s.DNSCache, lookup)

	logging.Infof("loaded %d password digests, length = %d", s.Credentials.Len(), s.Credentials.DigestLen())
	return s, nil
}

// Close releases the resolver created by Setup. Lookuper passed to Setup is
// left to its owner.
func (s *Session) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Verify returns the password matching candidate digest.
func (s *Session) Verify(candidate string) (string, bool) {
	return s.Credentials.Verify(candidate)
}

// PassDigestLength is the number of characters of a password digest on the
// wire.
func (s *Session) PassDigestLength() int {
	return s.Credentials.DigestLen()
}
