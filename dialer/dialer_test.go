package dialer

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The fake resolver maps names from a table and records requests.
type fakeResolver struct {
	table     map[string]netip.Addr
	requested []string
}

func (r *fakeResolver) Resolve(_ context.Context, domain string) (netip.Addr, error) {
	r.requested = append(r.requested, domain)
	addr, ok := r.table[domain]
	if !ok {
		return netip.Addr{}, errors.New("no such host")
	}
	return addr, nil
}

func listen(t *testing.T) (net.Listener, netip.AddrPort) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	return l, netip.MustParseAddrPort(l.Addr().String())
}

func TestDialDomain(t *testing.T) {
	_, addr := listen(t)
	r := &fakeResolver{table: map[string]netip.Addr{"backend.test": addr.Addr()}}
	d := New(&Config{
		LocalAddr: netip.MustParseAddrPort("0.0.0.0:0"),
		Resolver:  r,
	})

	conn, err := d.DialContext(context.Background(), "tcp", net.JoinHostPort("backend.test", strconv.Itoa(int(addr.Port()))))
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, addr.String(), conn.RemoteAddr().String())
	assert.Equal(t, []string{"backend.test"}, r.requested)
}

func TestDialLiteralSkipsResolver(t *testing.T) {
	_, addr := listen(t)
	r := &fakeResolver{}
	d := New(&Config{Resolver: r})

	conn, err := d.DialContext(context.Background(), "tcp", addr.String())
	require.NoError(t, err)
	conn.Close()
	assert.Empty(t, r.requested)
}

func TestDialPlaceholderOtherFamily(t *testing.T) {
	_, addr := listen(t)
	// IPv6 placeholder must not be bound for IPv4 target
	d := New(&Config{LocalAddr: netip.MustParseAddrPort("[::]:0")})

	conn, err := d.DialContext(context.Background(), "tcp", addr.String())
	require.NoError(t, err)
	conn.Close()
}

func TestDialBackend(t *testing.T) {
	_, addr := listen(t)
	d := New(&Config{
		Backend:   addr,
		LocalAddr: netip.MustParseAddrPort("0.0.0.0:0"),
	})

	conn, err := d.DialBackend(context.Background())
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, addr.String(), conn.RemoteAddr().String())

	_, err = New(&Config{}).DialBackend(context.Background())
	assert.Error(t, err)
}

func TestDialErrors(t *testing.T) {
	d := New(&Config{})
	_, err := d.DialContext(context.Background(), "tcp", "example.com:443")
	assert.ErrorIs(t, err, ErrNoResolver)

	_, err = d.DialContext(context.Background(), "tcp", "example.com")
	assert.Error(t, err)

	_, err = d.DialContext(context.Background(), "tcp", "127.0.0.1:99999")
	assert.Error(t, err)

	d = New(&Config{Resolver: &fakeResolver{}})
	_, err = d.DialContext(context.Background(), "tcp", "unknown.test:443")
	assert.Error(t, err)
}

func TestDefaults(t *testing.T) {
	cfg := &Config{}
	d := New(cfg)
	assert.Equal(t, DefaultDialTimeout, d.dialTimeout)
	assert.Nil(t, d.control)

	d = New(&Config{Marker: 255})
	assert.NotNil(t, d.control)
}
