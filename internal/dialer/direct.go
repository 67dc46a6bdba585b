package dialer

import (
	"context"
	"fmt"
	"net"

	"github.com/die-net/socksify/internal/conn"
)

type directDialer struct {
	cfg Config
}

func NewDirectDialer(cfg Config) Dialer {
	return &directDialer{cfg: cfg}
}

func (f *directDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	dd := net.Dialer{Timeout: f.cfg.DialTimeout}

	c, err := dd.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dial %s %s: %w", network, address, err)
	}

	conn.ApplyKeepAlive(c, f.cfg.KeepAlive)

	return c, nil
}

func (f *directDialer) DialAddr(ctx context.Context, addr net.Addr) (net.Conn, error) {
	return f.DialContext(ctx, addr.Network(), addr.String())
}
