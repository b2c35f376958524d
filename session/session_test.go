package session

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Snawoot/tjproxy/backend"
	"github.com/Snawoot/tjproxy/digest"
)

type staticLookuper struct {
	addrs []netip.Addr
	calls int
}

func (l *staticLookuper) LookupAddrs(_ context.Context, _ string) ([]netip.Addr, error) {
	l.calls++
	return l.addrs, nil
}

func serverOptions() *Options {
	return &Options{
		Mode:         "server",
		CertPath:     "/etc/tjproxy/cert.pem",
		KeyPath:      "/etc/tjproxy/key.pem",
		RemoteAddr:   "127.0.0.1:80",
		Passwords:    []string{"first", "second"},
		DNSCacheTime: 60,
		IdleTimeout:  120,
		Marker:       DefaultMarker,
	}
}

func TestSetupServer(t *testing.T) {
	s, err := Setup(context.Background(), serverOptions(), &staticLookuper{})
	require.NoError(t, err)

	assert.Equal(t, backend.ModeServer, s.Mode)
	assert.Equal(t, netip.MustParseAddrPort("0.0.0.0:443"), s.LocalAddr)
	assert.Equal(t, netip.MustParseAddrPort("127.0.0.1:80"), s.Backend)
	assert.Equal(t, netip.MustParseAddrPort("0.0.0.0:0"), s.Placeholder)
	assert.Equal(t, time.Minute, s.DNSCacheTTL)
	assert.Equal(t, time.Minute, s.DNSCache.TTL())
	assert.Equal(t, 2*time.Minute, s.IdleTimeout)
	assert.Equal(t, uint8(DefaultMarker), s.Marker)

	assert.Equal(t, 56, s.PassDigestLength())
	for _, p := range []string{"first", "second"} {
		got, ok := s.Verify(digest.Sum(p))
		require.True(t, ok)
		assert.Equal(t, p, got)
	}
	_, ok := s.Verify(digest.Sum("third"))
	assert.False(t, ok)
	assert.Equal(t, digest.Sum("first"), s.Credentials.Primary())
}

func TestSetupDefaults(t *testing.T) {
	opts := &Options{
		CertPath:  "cert.pem",
		KeyPath:   "key.pem",
		Passwords: []string{"pw"},
	}
	s, err := Setup(context.Background(), opts, &staticLookuper{})
	require.NoError(t, err)

	assert.Equal(t, backend.ModeServer, s.Mode)
	assert.Equal(t, netip.MustParseAddrPort(DefaultRemoteAddr), s.Backend)
	assert.Zero(t, s.DNSCacheTTL)
	assert.Zero(t, s.IdleTimeout)
}

func TestSetupZeroCacheTime(t *testing.T) {
	opts := serverOptions()
	opts.DNSCacheTime = 0
	opts.IdleTimeout = 0
	s, err := Setup(context.Background(), opts, &staticLookuper{})
	require.NoError(t, err)

	assert.Zero(t, s.DNSCacheTTL)
	assert.Zero(t, s.IdleTimeout)

	s.DNSCache.Update("www.example.com", netip.MustParseAddr("192.0.2.1"))
	_, ok := s.DNSCache.Query("www.example.com")
	assert.False(t, ok)
}

func TestSetupValidatesBeforeResolver(t *testing.T) {
	opts := serverOptions()
	opts.CertPath = ""
	opts.DNSUpstream = "bogus://"

	s, err := Setup(context.Background(), opts, nil)
	assert.ErrorIs(t, err, backend.ErrMissingKeyMaterial)
	assert.Nil(t, s)

	opts = serverOptions()
	opts.Mode = "proxy"
	opts.DNSUpstream = "bogus://"
	_, err = Setup(context.Background(), opts, nil)
	assert.ErrorIs(t, err, backend.ErrMissingHostname)
}

// closingLookuper is a Lookuper owned by the test.
type closingLookuper struct {
	staticLookuper
	closed bool
}

func (l *closingLookuper) Close() error {
	l.closed = true
	return nil
}

func TestSessionClose(t *testing.T) {
	l := &closingLookuper{}
	s, err := Setup(context.Background(), serverOptions(), l)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.False(t, l.closed)

	// Resolver created by Setup.
	opts := serverOptions()
	opts.DNSUpstream = "127.0.0.1:53"
	s, err = Setup(context.Background(), opts, nil)
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}

func TestSetupProxy(t *testing.T) {
	l := &staticLookuper{addrs: []netip.Addr{
		netip.MustParseAddr("2001:db8::443"),
		netip.MustParseAddr("198.51.100.7"),
	}}
	opts := &Options{
		Mode:       "proxy",
		LocalAddr:  "127.0.0.1:1080",
		RemoteAddr: "127.0.0.1:9999",
		Hostname:   "trojan.example.org",
		Passwords:  []string{"pw"},
	}
	s, err := Setup(context.Background(), opts, l)
	require.NoError(t, err)

	assert.Equal(t, backend.ModeProxy, s.Mode)
	assert.Equal(t, netip.MustParseAddrPort("198.51.100.7:443"), s.Backend)
	assert.Equal(t, netip.MustParseAddrPort("0.0.0.0:0"), s.Placeholder)
	assert.Equal(t, 1, l.calls)
}

func TestSetupProxyIPv6(t *testing.T) {
	l := &staticLookuper{addrs: []netip.Addr{netip.MustParseAddr("2001:db8::443")}}
	s, err := Setup(context.Background(), &Options{
		Mode:      "proxy",
		Hostname:  "trojan.example.org",
		Passwords: []string{"pw"},
	}, l)
	require.NoError(t, err)

	assert.Equal(t, netip.MustParseAddrPort("[2001:db8::443]:443"), s.Backend)
	assert.Equal(t, netip.MustParseAddrPort("[::]:0"), s.Placeholder)
}

func TestSetupResolverSharesCache(t *testing.T) {
	l := &staticLookuper{addrs: []netip.Addr{netip.MustParseAddr("192.0.2.80")}}
	s, err := Setup(context.Background(), serverOptions(), l)
	require.NoError(t, err)

	addr, err := s.Resolver.Resolve(context.Background(), "www.example.com")
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("192.0.2.80"), addr)

	cached, ok := s.DNSCache.Query("www.example.com")
	require.True(t, ok)
	assert.Equal(t, addr, cached)
}

func TestSetupErrors(t *testing.T) {
	cases := []struct {
		name   string
		modify func(*Options)
		err    error
	}{
		{"no passwords", func(o *Options) { o.Passwords = nil }, ErrNoPasswords},
		{"no cert", func(o *Options) { o.CertPath = "" }, backend.ErrMissingKeyMaterial},
		{"no key", func(o *Options) { o.KeyPath = "" }, backend.ErrMissingKeyMaterial},
		{"bad remote", func(o *Options) { o.RemoteAddr = "backend:80" }, backend.ErrBadAddress},
		{"bad local", func(o *Options) { o.LocalAddr = "0.0.0.0" }, ErrBadLocalAddress},
		{"bad mode", func(o *Options) { o.Mode = "client" }, backend.ErrUnknownMode},
		{"no hostname", func(o *Options) { o.Mode = "proxy" }, backend.ErrMissingHostname},
		{"nothing resolved", func(o *Options) {
			o.Mode = "proxy"
			o.Hostname = "void.example"
		}, backend.ErrResolveFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := serverOptions()
			tc.modify(opts)
			s, err := Setup(context.Background(), opts, &staticLookuper{})
			assert.ErrorIs(t, err, tc.err)
			assert.Nil(t, s)
		})
	}
}
