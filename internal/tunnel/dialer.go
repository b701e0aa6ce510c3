package tunnel

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"
)

// Dial connects to destination (the SFTP server's host:port) through the
// proxy described by cfg and returns the tunneled connection.
//
// The proxy type selects the strategy: http and https issue an HTTP CONNECT
// request (https adds a TLS handshake to the proxy first); socks4 and socks5
// delegate the handshake to the socks client, over a TLS-wrapped hop when
// cfg.TLS is set. An unknown type fails with *UnsupportedTypeError before any
// connection to the proxy is attempted.
//
// On failure no connection is left open.
func Dial(ctx context.Context, cfg Config, destination string) (net.Conn, error) {
	switch cfg.Type {
	case TypeHTTP, TypeHTTPS:
		return dialHTTPConnect(ctx, cfg, destination)
	case TypeSOCKS4, TypeSOCKS5:
		return dialSOCKS(ctx, cfg, destination)
	default:
		return nil, &UnsupportedTypeError{Type: cfg.Type}
	}
}

// dialProxy opens the transport to the proxy itself: plain TCP, or TCP
// wrapped in TLS when secure is set. The TLS handshake completes before
// dialProxy returns, so callers never write protocol bytes into an
// unestablished TLS session.
func dialProxy(ctx context.Context, cfg Config, secure bool) (net.Conn, error) {
	d := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", cfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("proxy transport %s: %w", cfg.Addr(), err)
	}

	if !secure {
		return conn, nil
	}

	tlsConn := tls.Client(conn, &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: !cfg.VerifyTLS, //nolint:gosec // Permissive by default; see Config.VerifyTLS.
		MinVersion:         tls.VersionTLS12,
	})
	_ = tlsConn.SetDeadline(time.Now().Add(cfg.negotiationTimeout()))
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = tlsConn.Close()
		return nil, fmt.Errorf("proxy transport %s: tls handshake: %w", cfg.Addr(), err)
	}
	_ = tlsConn.SetDeadline(time.Time{})
	return tlsConn, nil
}
