package tproxy

import "golang.org/x/sys/unix"

// setBindAny enables IP_BINDANY, or IPV6_BINDANY on tcp6 sockets.
func setBindAny(network string, fd int) error {
	if network == "tcp6" {
		return unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_BINDANY, 1)
	}
	return unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_BINDANY, 1)
}
