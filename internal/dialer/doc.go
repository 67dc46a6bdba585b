// Package dialer provides the outbound dialers socksify uses to reach a
// destination: directly, or redirected through a SOCKS5 forwarding proxy.
//
// Dialers implement a small interface (DialContext) so listeners can use
// either without caring how the connection is made.
package dialer
