//go:build linux

package tproxy

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/die-net/socksify/internal/conn"
)

// IsSupported is true on TPROXY-supporting OSes.
const IsSupported = true

// ip6tSOOriginalDst is IP6T_SO_ORIGINAL_DST from linux/netfilter_ipv6/ip6_tables.h,
// which golang.org/x/sys/unix does not export.
const ip6tSOOriginalDst = 80

// ListenTransparentTCP listens on addr and enables IP_TRANSPARENT so the
// socket can accept redirected connections (typical TPROXY setup).
//
// This requires CAP_NET_ADMIN. Note: you still need appropriate
// iptables/nft rules.
func ListenTransparentTCP(addr string, keepAliveConfig net.KeepAliveConfig) (net.Listener, error) {
	lc := net.ListenConfig{Control: func(_, _ string, c syscall.RawConn) error {
		var ctrlErr error
		err := c.Control(func(fd uintptr) {
			ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_IP, unix.IP_TRANSPARENT, 1)
		})
		if err != nil {
			return err
		}
		return ctrlErr
	}}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen tproxy %s: %w", addr, err)
	}
	return &conn.KeepAliveListener{Listener: ln, KeepAliveConfig: keepAliveConfig}, nil
}

// OriginalDst returns the original destination for a TCP connection
// redirected to this listener.
//
// For REDIRECT rules this is SO_ORIGINAL_DST (IP6T_SO_ORIGINAL_DST on IPv6
// sockets). TPROXY rules leave no NAT entry; there the accepted socket's
// local address already is the original destination. That fallback is
// only taken for IPv4 connections: an IPv6 connection without a NAT entry
// reports false rather than the listener's own address.
func OriginalDst(c net.Conn) (*net.TCPAddr, bool) {
	tc, ok := c.(*net.TCPConn)
	if !ok {
		return nil, false
	}
	la, ok := tc.LocalAddr().(*net.TCPAddr)
	if !ok {
		return nil, false
	}
	rc, err := tc.SyscallConn()
	if err != nil {
		return nil, false
	}

	is4 := la.IP.To4() != nil

	var (
		dst    *net.TCPAddr
		optErr error
	)
	err = rc.Control(func(fd uintptr) {
		if is4 {
			// A sockaddr_in fits in IPv6Mreq; this is the usual way to read
			// SO_ORIGINAL_DST through x/sys.
			var mreq *unix.IPv6Mreq
			mreq, optErr = unix.GetsockoptIPv6Mreq(int(fd), unix.IPPROTO_IP, unix.SO_ORIGINAL_DST)
			if optErr == nil {
				dst, optErr = sockaddr4(mreq.Multiaddr)
			}
			return
		}
		// Likewise a sockaddr_in6 fits in IPv6MTUInfo.
		var info *unix.IPv6MTUInfo
		info, optErr = unix.GetsockoptIPv6MTUInfo(int(fd), unix.SOL_IPV6, ip6tSOOriginalDst)
		if optErr == nil {
			dst, optErr = sockaddr6(&info.Addr)
		}
	})
	if err != nil {
		return nil, false
	}
	if optErr != nil {
		if is4 {
			return la, true
		}
		return nil, false
	}
	return dst, true
}

func sockaddr4(raw [16]byte) (*net.TCPAddr, error) {
	if binary.NativeEndian.Uint16(raw[0:2]) != unix.AF_INET {
		return nil, unix.EAFNOSUPPORT
	}
	port := int(binary.BigEndian.Uint16(raw[2:4]))
	return &net.TCPAddr{IP: net.IPv4(raw[4], raw[5], raw[6], raw[7]), Port: port}, nil
}

func sockaddr6(sa *unix.RawSockaddrInet6) (*net.TCPAddr, error) {
	if sa.Family != unix.AF_INET6 {
		return nil, unix.EAFNOSUPPORT
	}
	// Port is stored in network byte order.
	var p [2]byte
	binary.NativeEndian.PutUint16(p[:], sa.Port)
	ip := make(net.IP, net.IPv6len)
	copy(ip, sa.Addr[:])
	return &net.TCPAddr{IP: ip, Port: int(binary.BigEndian.Uint16(p[:]))}, nil
}
