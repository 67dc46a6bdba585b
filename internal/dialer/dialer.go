package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Dialer mirrors the net.Dialer interface. DialAddr takes a socket
// address as accepted or recovered by a listener.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
	DialAddr(ctx context.Context, addr net.Addr) (net.Conn, error)
}

// New parses upstream and constructs the appropriate outbound Dialer.
//
// Supported schemes:
//   - direct://
//   - socks5://host[:port]
//
// A missing SOCKS5 port defaults to 1080. Credentials are rejected: only
// the no-authentication method is supported.
func New(cfg Config, upstream string) (Dialer, error) {
	u, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)

	if u.Path != "" && u.Path != "/" {
		return nil, errors.New("invalid URL: path should be empty")
	}

	switch u.Scheme {
	case "":
		return nil, errors.New("invalid url: missing scheme")
	case "direct":
		return NewDirectDialer(cfg), nil
	case "socks5", "socks5h":
		if u.User != nil {
			return nil, errors.New("invalid url: socks5 authentication is not supported")
		}
		host := u.Hostname()
		if host == "" {
			return nil, errors.New("invalid url: missing host")
		}
		port := u.Port()
		if port == "" {
			port = defaultPortForScheme(u.Scheme)
		}
		return NewSOCKS5ProxyDialer(cfg, net.JoinHostPort(host, port)), nil
	default:
		return nil, fmt.Errorf("invalid url scheme: %q", u.Scheme)
	}
}

func defaultPortForScheme(scheme string) string {
	switch scheme {
	case "socks5", "socks5h":
		return "1080"
	default:
		return ""
	}
}
