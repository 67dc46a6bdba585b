package dialer

import (
	"log/slog"
	"net"
	"time"

	"github.com/die-net/socksify/internal/socks5"
)

type Config struct {
	// DialTimeout bounds the TCP connect to the proxy (or destination, for
	// direct dials).
	DialTimeout time.Duration
	// NegotiationTimeout bounds each send and receive of the SOCKS5
	// exchange.
	NegotiationTimeout time.Duration
	KeepAlive          net.KeepAliveConfig

	// Names, if set, supplies names for IPv4 destinations so they are sent
	// to the proxy by name.
	Names socks5.NameLookup

	Logger *slog.Logger
}
