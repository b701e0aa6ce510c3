package socks5

// Package socks5 provides a small server-side SOCKS5 handshake implementation
// built on the protocol types in github.com/txthinking/socks5.
//
// The tunnel dialer's client side is handled by the socks client library;
// this package exists so tests can run in-process SOCKS5 endpoints (plain,
// authenticated, or under a TLS listener) and observe the handshake the
// dialer performs against them.
//
// It is not a full SOCKS5 server: one CONNECT per connection, TCP only.
