package socks5

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"strconv"

	txsocks5 "github.com/txthinking/socks5"
)

// ReplyCode is the REP field of a CONNECT reply.
type ReplyCode byte

// Reply codes from RFC 1928 section 6.
const (
	ReplySucceeded           ReplyCode = 0x00
	ReplyGeneralFailure      ReplyCode = 0x01
	ReplyNotAllowed          ReplyCode = 0x02
	ReplyNetworkUnreachable  ReplyCode = 0x03
	ReplyHostUnreachable     ReplyCode = 0x04
	ReplyConnectionRefused   ReplyCode = 0x05
	ReplyTTLExpired          ReplyCode = 0x06
	ReplyCommandNotSupported ReplyCode = 0x07
	ReplyAddressNotSupported ReplyCode = 0x08
)

var replyReasons = [...]string{
	ReplySucceeded:           "succeeded",
	ReplyGeneralFailure:      "general failure",
	ReplyNotAllowed:          "connection not allowed by ruleset",
	ReplyNetworkUnreachable:  "network unreachable",
	ReplyHostUnreachable:     "host unreachable",
	ReplyConnectionRefused:   "connection refused",
	ReplyTTLExpired:          "TTL expired",
	ReplyCommandNotSupported: "command not supported",
	ReplyAddressNotSupported: "address type not supported",
}

// Known reports whether c is in the standard table.
func (c ReplyCode) Known() bool {
	return int(c) < len(replyReasons)
}

func (c ReplyCode) String() string {
	if c.Known() {
		return replyReasons[c]
	}
	return fmt.Sprintf("unknown reply code 0x%02x", byte(c))
}

// Reply is a decoded CONNECT reply.
type Reply struct {
	Version   byte
	Code      ReplyCode
	Atyp      byte
	BoundAddr []byte // raw address, or the name without its length byte
	BoundPort uint16
}

// BoundAddress returns the bound address as host:port.
func (r *Reply) BoundAddress() string {
	var host string
	switch r.Atyp {
	case txsocks5.ATYPDomain:
		host = string(r.BoundAddr)
	default:
		if ip, ok := netip.AddrFromSlice(r.BoundAddr); ok {
			host = ip.String()
		}
	}
	return net.JoinHostPort(host, strconv.Itoa(int(r.BoundPort)))
}

// ReadReply reads one CONNECT reply. The fixed header is read first and
// the bound address is then sized by the ATYP it declares.
//
// A failure reply is classified by its code alone: once the header is in,
// a short or malformed bound address is ignored and the reply is returned
// with whatever was read.
func ReadReply(r io.Reader) (*Reply, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, transportError("read reply header", err)
	}
	if hdr[0] != txsocks5.Ver {
		return nil, fmt.Errorf("%w: reply version %d", ErrProtocol, hdr[0])
	}

	rep := &Reply{Version: hdr[0], Code: ReplyCode(hdr[1]), Atyp: hdr[3]}

	if err := readBound(r, rep); err != nil && rep.Code == ReplySucceeded {
		return nil, err
	}
	return rep, nil
}

func readBound(r io.Reader, rep *Reply) error {
	addr, err := readAddr(r, rep.Atyp)
	if err != nil {
		return err
	}
	rep.BoundAddr = addr

	var port [2]byte
	if _, err := io.ReadFull(r, port[:]); err != nil {
		return transportError("read bound port", err)
	}
	rep.BoundPort = binary.BigEndian.Uint16(port[:])
	return nil
}

var errUnknownAtyp = errors.New("unknown address type")

// readAddr reads an address field of the given type. Domain names are
// returned without their length byte.
func readAddr(r io.Reader, atyp byte) ([]byte, error) {
	var n int
	switch atyp {
	case txsocks5.ATYPIPv4:
		n = net.IPv4len
	case txsocks5.ATYPIPv6:
		n = net.IPv6len
	case txsocks5.ATYPDomain:
		var l [1]byte
		if _, err := io.ReadFull(r, l[:]); err != nil {
			return nil, transportError("read address length", err)
		}
		n = int(l[0])
	default:
		return nil, fmt.Errorf("%w: %w %d", ErrProtocol, errUnknownAtyp, atyp)
	}

	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, transportError("read address", err)
	}
	return b, nil
}
