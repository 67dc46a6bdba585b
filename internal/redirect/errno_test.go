//go:build unix

package redirect

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/die-net/socksify/internal/socks5"
)

func TestErrno(t *testing.T) {
	t.Parallel()

	wrap := func(err error) error {
		return &Error{Target: socks5.NewIPv4Target([4]byte{1, 2, 3, 4}, 80), State: RequestSent, Err: err}
	}

	tests := []struct {
		name string
		err  error
		want unix.Errno
	}{
		{name: "nil", err: nil, want: 0},
		{name: "refused", err: wrap(&socks5.ReplyError{Code: socks5.ReplyConnectionRefused}), want: unix.ECONNREFUSED},
		{name: "host unreachable", err: wrap(&socks5.ReplyError{Code: socks5.ReplyHostUnreachable}), want: unix.EHOSTUNREACH},
		{name: "network unreachable", err: wrap(&socks5.ReplyError{Code: socks5.ReplyNetworkUnreachable}), want: unix.ENETUNREACH},
		{name: "not allowed", err: wrap(&socks5.ReplyError{Code: socks5.ReplyNotAllowed}), want: unix.EACCES},
		{name: "ttl expired", err: wrap(&socks5.ReplyError{Code: socks5.ReplyTTLExpired}), want: unix.ETIMEDOUT},
		{name: "unknown code", err: wrap(&socks5.ReplyError{Code: 0x42}), want: unix.EHOSTUNREACH},
		{name: "unsupported family", err: socks5.ErrUnsupportedAddressFamily, want: unix.EAFNOSUPPORT},
		{name: "invalid name", err: fmt.Errorf("x: %w", socks5.ErrInvalidName), want: unix.EINVAL},
		{name: "protocol", err: wrap(socks5.ErrProtocol), want: unix.EPROTO},
		{name: "deadline", err: wrap(fmt.Errorf("%w: read: %w", socks5.ErrTransport, os.ErrDeadlineExceeded)), want: unix.ETIMEDOUT},
		{name: "canceled", err: wrap(context.Canceled), want: unix.ECANCELED},
		{name: "syscall errno", err: fmt.Errorf("%w: dial: %w", socks5.ErrTransport, unix.ECONNRESET), want: unix.ECONNRESET},
		{name: "other", err: errors.New("boom"), want: unix.EHOSTUNREACH},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Errno(tt.err); got != tt.want {
				t.Fatalf("got %v want %v", got, tt.want)
			}
		})
	}
}
