package socks5

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	txsocks5 "github.com/txthinking/socks5"
)

// WriteRequest writes a CONNECT request for t in a single Write.
func WriteRequest(w io.Writer, t Target) error {
	port := binary.BigEndian.AppendUint16(nil, t.port)

	var req *txsocks5.Request
	switch t.form {
	case FormIPv4:
		req = txsocks5.NewRequest(txsocks5.CmdConnect, txsocks5.ATYPIPv4, t.ip[:], port)
	case FormName:
		if err := ValidateName(t.name); err != nil {
			return err
		}
		// NewRequest prepends the length byte for domain names.
		req = txsocks5.NewRequest(txsocks5.CmdConnect, txsocks5.ATYPDomain, []byte(t.name), port)
	default:
		return fmt.Errorf("%w: form %s", ErrUnsupportedAddressFamily, t.form)
	}

	var buf bytes.Buffer
	if _, err := req.WriteTo(&buf); err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return transportError("write request", err)
	}
	return nil
}

// ReadRequest reads a CONNECT request as written by WriteRequest. It is
// the proxy-side inverse and rejects anything WriteRequest would not
// produce.
func ReadRequest(r io.Reader) (Target, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Target{}, transportError("read request header", err)
	}
	if hdr[0] != txsocks5.Ver {
		return Target{}, fmt.Errorf("%w: request version %d", ErrProtocol, hdr[0])
	}
	if hdr[1] != txsocks5.CmdConnect {
		return Target{}, fmt.Errorf("%w: command %d", ErrProtocol, hdr[1])
	}

	atyp := hdr[3]
	if atyp == txsocks5.ATYPIPv6 {
		return Target{}, fmt.Errorf("%w: ipv6 destination", ErrUnsupportedAddressFamily)
	}
	addr, err := readAddr(r, atyp)
	if err != nil {
		return Target{}, err
	}

	var port [2]byte
	if _, err := io.ReadFull(r, port[:]); err != nil {
		return Target{}, transportError("read request port", err)
	}
	p := binary.BigEndian.Uint16(port[:])

	if atyp == txsocks5.ATYPDomain {
		return NewNameTarget(string(addr), p)
	}
	return NewIPv4Target([4]byte(addr), p), nil
}
