package socks5

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedAddressFamily is returned for destinations that are not
	// IPv4 (IPv6, unix sockets, ...). Callers normally pass those through
	// untouched instead of redirecting them.
	ErrUnsupportedAddressFamily = errors.New("socks5: unsupported address family")

	// ErrInvalidName is returned for a destination name that is empty or
	// longer than 255 bytes.
	ErrInvalidName = errors.New("socks5: invalid destination name")

	// ErrProtocol is returned when the proxy sends a malformed message.
	ErrProtocol = errors.New("socks5: protocol error")

	// ErrNoAcceptableMethod is returned when the proxy answers the method
	// negotiation with 0xFF.
	ErrNoAcceptableMethod = errors.New("socks5: no acceptable authentication method")

	// ErrTransport is returned when sending to or receiving from the proxy
	// fails, including short reads and deadline expiry.
	ErrTransport = errors.New("socks5: transport error")

	// ErrRejected matches a *ReplyError carrying one of the standard
	// non-zero reply codes.
	ErrRejected = errors.New("socks5: request rejected")

	// ErrUnknownReplyCode matches a *ReplyError whose code is outside the
	// standard table.
	ErrUnknownReplyCode = errors.New("socks5: unknown reply code")
)

// ReplyError reports a CONNECT reply with a non-success code.
type ReplyError struct {
	Code ReplyCode
}

func (e *ReplyError) Error() string {
	return "socks5: connect rejected: " + e.Code.String()
}

// Is reports ErrRejected for codes 1..8 and ErrUnknownReplyCode otherwise.
func (e *ReplyError) Is(target error) bool {
	switch target {
	case ErrRejected:
		return e.Code.Known() && e.Code != ReplySucceeded
	case ErrUnknownReplyCode:
		return !e.Code.Known()
	}
	return false
}

func transportError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}
