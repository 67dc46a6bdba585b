package dialer

import (
	"context"
	"fmt"
	"net"

	"github.com/die-net/socksify/internal/redirect"
	"github.com/die-net/socksify/internal/socks5"
)

// SOCKS5ProxyDialer reaches destinations by redirecting through a SOCKS5
// proxy using the no-authentication method.
type SOCKS5ProxyDialer struct {
	cfg       Config
	proxyAddr string
	direct    Dialer
	ctl       *redirect.Controller
}

func NewSOCKS5ProxyDialer(cfg Config, proxyAddr string) *SOCKS5ProxyDialer {
	return &SOCKS5ProxyDialer{
		cfg:       cfg,
		proxyAddr: proxyAddr,
		direct:    NewDirectDialer(cfg),
		ctl: redirect.New(redirect.Config{
			Timeout: cfg.NegotiationTimeout,
			Logger:  cfg.Logger,
		}),
	}
}

// ProxyAddr returns the proxy endpoint as host:port.
func (f *SOCKS5ProxyDialer) ProxyAddr() string { return f.proxyAddr }

// DialContext connects to address through the proxy. Only "tcp" and
// "tcp4" are supported; IPv4 literals are sent by name when cfg.Names
// knows one.
//
// Errors are *net.OpError wrapping the classified socks5 error, so
// errors.Is(err, socks5.ErrUnsupportedAddressFamily) and friends work.
func (f *SOCKS5ProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if network != "tcp" && network != "tcp4" {
		return nil, opError(network, address, fmt.Errorf("%w: network %s", socks5.ErrUnsupportedAddressFamily, network))
	}

	target, err := socks5.ParseTarget(address, f.cfg.Names)
	if err != nil {
		return nil, opError(network, address, err)
	}
	return f.dial(ctx, network, address, target)
}

// DialAddr is DialContext for a socket address. Anything but a TCP address
// carrying IPv4 fails with socks5.ErrUnsupportedAddressFamily.
func (f *SOCKS5ProxyDialer) DialAddr(ctx context.Context, addr net.Addr) (net.Conn, error) {
	target, err := socks5.ResolveAddr(addr, f.cfg.Names)
	if err != nil {
		return nil, opError(addr.Network(), addr.String(), err)
	}
	return f.dial(ctx, addr.Network(), addr.String(), target)
}

func (f *SOCKS5ProxyDialer) dial(ctx context.Context, network, address string, target socks5.Target) (net.Conn, error) {
	c, err := f.direct.DialContext(ctx, "tcp", f.proxyAddr)
	if err != nil {
		return nil, opError(network, address, fmt.Errorf("%w: proxy %w", socks5.ErrTransport, err))
	}

	rc, err := f.ctl.Redirect(ctx, c, target)
	if err != nil {
		return nil, opError(network, address, err)
	}
	return rc, nil
}

func opError(network, address string, err error) error {
	return &net.OpError{Op: "dial", Net: network, Addr: socksAddr(address), Err: err}
}

// socksAddr is the destination as reported in errors.
type socksAddr string

func (socksAddr) Network() string  { return "socks5" }
func (a socksAddr) String() string { return string(a) }
