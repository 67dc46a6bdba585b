// Package tproxy intercepts outbound TCP connections that the firewall has
// redirected to a local listener, and sends each one on through the
// SOCKS5 proxy to its original destination.
//
// On Linux, it listens with IP_TRANSPARENT and retrieves the original
// destination of redirected TCP connections via SO_ORIGINAL_DST (getsockopt).
// This is designed for use with iptables/nftables REDIRECT or TPROXY rules.
//
// On FreeBSD, it listens with IP_BINDANY (protocol-level) and retrieves the
// original destination from the socket's local address (which IPFW fwd and
// PF rdr-to preserve).
//
// On OpenBSD, it listens with SO_BINDANY (socket-level) and retrieves the
// original destination from the socket's local address (which PF rdr-to
// preserves).
//
// On other platforms, the listener and original-destination lookup are stubbed
// out and return errors.
package tproxy
