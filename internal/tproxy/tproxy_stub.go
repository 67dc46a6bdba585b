//go:build !linux && !freebsd && !openbsd

package tproxy

import (
	"errors"
	"net"
)

// IsSupported is false where no transparent listener is implemented.
const IsSupported = false

func ListenTransparentTCP(_ string, _ net.KeepAliveConfig) (net.Listener, error) {
	return nil, errors.New("transparent proxy is only supported on linux, freebsd and openbsd")
}

func OriginalDst(_ net.Conn) (*net.TCPAddr, bool) {
	return nil, false
}
