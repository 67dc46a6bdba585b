package tproxy

import "golang.org/x/sys/unix"

// setBindAny enables SO_BINDANY, a socket-level option on OpenBSD.
func setBindAny(_ string, fd int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_BINDANY, 1)
}
