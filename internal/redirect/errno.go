//go:build unix

package redirect

import (
	"context"
	"errors"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/die-net/socksify/internal/socks5"
)

var replyErrno = [...]unix.Errno{
	socks5.ReplyGeneralFailure:      unix.EHOSTUNREACH,
	socks5.ReplyNotAllowed:          unix.EACCES,
	socks5.ReplyNetworkUnreachable:  unix.ENETUNREACH,
	socks5.ReplyHostUnreachable:     unix.EHOSTUNREACH,
	socks5.ReplyConnectionRefused:   unix.ECONNREFUSED,
	socks5.ReplyTTLExpired:          unix.ETIMEDOUT,
	socks5.ReplyCommandNotSupported: unix.EOPNOTSUPP,
	socks5.ReplyAddressNotSupported: unix.EAFNOSUPPORT,
}

// Errno maps a redirection error to the errno a connect(2) caller would
// expect. Unclassified failures map to EHOSTUNREACH. It returns 0 for a
// nil error.
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}

	var re *socks5.ReplyError
	if errors.As(err, &re) {
		if int(re.Code) < len(replyErrno) && replyErrno[re.Code] != 0 {
			return replyErrno[re.Code]
		}
		return unix.EHOSTUNREACH
	}

	switch {
	case errors.Is(err, context.Canceled):
		return unix.ECANCELED
	case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return unix.ETIMEDOUT
	case errors.Is(err, socks5.ErrUnsupportedAddressFamily):
		return unix.EAFNOSUPPORT
	case errors.Is(err, socks5.ErrInvalidName):
		return unix.EINVAL
	case errors.Is(err, socks5.ErrNoAcceptableMethod):
		return unix.EACCES
	case errors.Is(err, socks5.ErrProtocol):
		return unix.EPROTO
	}

	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return unix.EHOSTUNREACH
}
