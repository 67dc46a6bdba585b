package socks5

import (
	"errors"
	"fmt"
	"io"

	txsocks5 "github.com/txthinking/socks5"
)

// methodNoAcceptable is the RFC 1928 method value meaning none of the
// offered methods is acceptable.
const methodNoAcceptable = 0xff

// WriteNegotiation sends 05 01 00.
func WriteNegotiation(w io.Writer) error {
	if _, err := txsocks5.NewNegotiationRequest([]byte{txsocks5.MethodNone}).WriteTo(w); err != nil {
		return transportError("write negotiation", err)
	}
	return nil
}

// ReadNegotiationReply reads the 2-byte method selection.
func ReadNegotiationReply(r io.Reader) error {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: short negotiation reply: %w", ErrProtocol, err)
		}
		return transportError("read negotiation", err)
	}

	switch {
	case buf[0] != txsocks5.Ver:
		return fmt.Errorf("%w: negotiation version %d", ErrProtocol, buf[0])
	case buf[1] == methodNoAcceptable:
		return ErrNoAcceptableMethod
	case buf[1] != txsocks5.MethodNone:
		return fmt.Errorf("%w: unexpected method %d", ErrProtocol, buf[1])
	}
	return nil
}

// ReadConnectReply reads a reply and turns a non-zero code into a
// *ReplyError.
func ReadConnectReply(r io.Reader) (*Reply, error) {
	rep, err := ReadReply(r)
	if err != nil {
		return nil, err
	}
	if rep.Code != ReplySucceeded {
		return rep, &ReplyError{Code: rep.Code}
	}
	return rep, nil
}
