// Package redirect drives one SOCKS5 redirection attempt over an
// established proxy connection: method negotiation, CONNECT, reply
// validation. Each attempt walks a fixed state sequence and ends either
// Established, with the connection handed back, or Failed, with the
// connection closed exactly once.
package redirect
