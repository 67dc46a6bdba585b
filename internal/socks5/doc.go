// Package socks5 implements the client side of the SOCKS5 CONNECT exchange
// used by socksify to redirect a connection through a forwarding proxy.
//
// It covers the no-authentication method negotiation, encoding of the
// CONNECT request for IPv4 literal and domain-name destinations, and
// incremental decoding of the proxy's reply. Failures are classified into
// the sentinel errors in errors.go so callers can map them with errors.Is.
//
// Wire encoders come from github.com/txthinking/socks5; reply decoding is
// done here so the bound address is sized by its declared type.
package socks5
