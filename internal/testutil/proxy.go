package testutil

import (
	"context"
	"io"
	"net"
	"testing"

	txsocks5 "github.com/txthinking/socks5"

	"github.com/die-net/socksify/internal/socks5"
)

// ZeroIPv4Reply returns a reply with the given code and a 0.0.0.0:0 bound
// address.
func ZeroIPv4Reply(code socks5.ReplyCode) []byte {
	return []byte{0x05, byte(code), 0x00, 0x01, 0, 0, 0, 0, 0, 0}
}

// ScriptedProxy plays the proxy side of one CONNECT exchange on c: it reads
// the greeting, writes handshakeReply, and if that accepted no-auth, reads
// the request and writes whatever reply returns for it. The received
// request's target is returned.
func ScriptedProxy(c net.Conn, handshakeReply []byte, reply func(socks5.Target) []byte) (socks5.Target, error) {
	if _, err := txsocks5.NewNegotiationRequestFrom(c); err != nil {
		return socks5.Target{}, err
	}
	if _, err := c.Write(handshakeReply); err != nil {
		return socks5.Target{}, err
	}
	if len(handshakeReply) != 2 || handshakeReply[0] != 0x05 || handshakeReply[1] != 0x00 {
		return socks5.Target{}, nil
	}

	target, err := socks5.ReadRequest(c)
	if err != nil {
		return socks5.Target{}, err
	}
	if _, err := c.Write(reply(target)); err != nil {
		return target, err
	}
	return target, nil
}

// StartSOCKS5Proxy starts a loopback no-auth SOCKS5 proxy that accepts any
// number of connections. Each CONNECT is dialed directly; once the reply
// is sent, bytes are relayed until either side closes.
func StartSOCKS5Proxy(t *testing.T, ctx context.Context) net.Listener {
	t.Helper()

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go serveSOCKS5Connect(ctx, c)
		}
	}()

	return ln
}

func serveSOCKS5Connect(ctx context.Context, c net.Conn) {
	defer c.Close()

	if _, err := txsocks5.NewNegotiationRequestFrom(c); err != nil {
		return
	}
	if _, err := txsocks5.NewNegotiationReply(txsocks5.MethodNone).WriteTo(c); err != nil {
		return
	}

	req, err := txsocks5.NewRequestFrom(c)
	if err != nil {
		return
	}
	if req.Cmd != txsocks5.CmdConnect {
		_, _ = c.Write(ZeroIPv4Reply(socks5.ReplyCommandNotSupported))
		return
	}

	d := net.Dialer{}
	dst, err := d.DialContext(ctx, "tcp", req.Address())
	if err != nil {
		_, _ = c.Write(ZeroIPv4Reply(socks5.ReplyConnectionRefused))
		return
	}
	defer dst.Close()

	a, addr, port, err := txsocks5.ParseAddress(dst.LocalAddr().String())
	if err != nil {
		return
	}
	if a == txsocks5.ATYPDomain {
		addr = addr[1:]
	}
	if _, err := txsocks5.NewReply(txsocks5.RepSuccess, a, addr, port).WriteTo(c); err != nil {
		return
	}

	go func() {
		_, _ = io.Copy(dst, c)
		_ = dst.Close()
	}()
	_, _ = io.Copy(c, dst)
}
